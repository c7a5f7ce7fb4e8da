package svm

import x402 "github.com/x402core/x402"

// Register wires the exact scheme against every network in NetworkConfigs
// (or networks, if non-empty) into whichever of client, facilitator, and
// server are non-nil.
func Register(client *x402.PaymentClient, facilitator *x402.Facilitator, server *x402.ResourceServer, clientSigner ClientSigner, submitter FacilitatorSubmitter, networks []string) {
	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}

	if client != nil && clientSigner != nil {
		h := NewSvmClientHandler(clientSigner)
		for _, network := range networks {
			client.Register(network, h)
		}
	}
	if facilitator != nil && submitter != nil {
		h := NewSvmFacilitatorHandler(submitter)
		for _, network := range networks {
			facilitator.Register(network, h)
		}
	}
	if server != nil {
		h := NewSvmServerHandler()
		for _, network := range networks {
			server.Register(network, h)
		}
	}
}
