package evm

import x402 "github.com/x402core/x402"

// Register wires the exact scheme against every network in NetworkConfigs
// (or networks, if non-empty) into whichever of client, facilitator, and
// server are non-nil. Pass nil for a core that should not carry EVM
// support, e.g. a pure Resource Server has no FacilitatorSigner.
func Register(client *x402.PaymentClient, facilitator *x402.Facilitator, server *x402.ResourceServer, clientSigner ClientSigner, facilitatorSigner FacilitatorSigner, networks []string) {
	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}

	if client != nil && clientSigner != nil {
		h := NewEvmClientHandler(clientSigner)
		for _, network := range networks {
			client.Register(network, h)
		}
	}
	if facilitator != nil && facilitatorSigner != nil {
		h := NewEvmFacilitatorHandler(facilitatorSigner)
		for _, network := range networks {
			facilitator.Register(network, h)
		}
	}
	if server != nil {
		h := NewEvmServerHandler()
		for _, network := range networks {
			server.Register(network, h)
		}
	}
}
