package httpadapter

import (
	"fmt"
	"html"
	"strings"

	x402 "github.com/x402core/x402"
)

// PaywallConfig configures the built-in HTML paywall shown to browsers
// that receive a 402 instead of a JSON-consuming client.
type PaywallConfig struct {
	AppName    string
	AppLogo    string
	CurrentURL string
	Testnet    bool
}

// PaywallNetworkHandler renders paywall HTML for one network family. The
// package ships EVM and Solana handlers, which are the only ones
// RenderPaywall dispatches to.
type PaywallNetworkHandler interface {
	Supports(requirement x402.PaymentRequirements) bool
	GenerateHTML(requirement x402.PaymentRequirements, required x402.PaymentRequired, config *PaywallConfig) string
}

// PaywallBuilder collects PaywallNetworkHandlers via WithNetwork. It has no
// render method, and RenderPaywall does not consult it: handlers added
// here are not used by RenderPaywall.
type PaywallBuilder struct {
	handlers []PaywallNetworkHandler
}

func NewPaywallBuilder() *PaywallBuilder { return &PaywallBuilder{} }

func (b *PaywallBuilder) WithNetwork(h PaywallNetworkHandler) *PaywallBuilder {
	b.handlers = append(b.handlers, h)
	return b
}

var defaultHandlers = []PaywallNetworkHandler{&evmPaywallHandler{}, &svmPaywallHandler{}}

// RenderPaywall renders HTML for the first accepted requirement whose
// network family has a registered handler, using the default EVM/Solana
// handlers. Returns "" if nothing in required.Accepts is supported,
// signaling the caller to fall back to a plain JSON 402.
func RenderPaywall(required x402.PaymentRequired, config *PaywallConfig) string {
	for _, req := range required.Accepts {
		for _, h := range defaultHandlers {
			if h.Supports(req) {
				return h.GenerateHTML(req, required, config)
			}
		}
	}
	return ""
}

type evmPaywallHandler struct{}

func (evmPaywallHandler) Supports(r x402.PaymentRequirements) bool {
	return r.Network.Namespace() == "eip155"
}

func (evmPaywallHandler) GenerateHTML(r x402.PaymentRequirements, required x402.PaymentRequired, config *PaywallConfig) string {
	return renderTemplate("EVM wallet", r, required, config)
}

type svmPaywallHandler struct{}

func (svmPaywallHandler) Supports(r x402.PaymentRequirements) bool {
	return r.Network.Namespace() == "solana"
}

func (svmPaywallHandler) GenerateHTML(r x402.PaymentRequirements, required x402.PaymentRequired, config *PaywallConfig) string {
	return renderTemplate("Solana wallet", r, required, config)
}

// renderTemplate builds a minimal standalone paywall page. Every piece of
// data originating from the payment requirements is escaped before
// interpolation since it can echo values a resource owner configured, not
// raw user input, but the page is still served to arbitrary browsers.
func renderTemplate(walletKind string, r x402.PaymentRequirements, required x402.PaymentRequired, config *PaywallConfig) string {
	appName := "this resource"
	testnetNote := ""
	if config != nil {
		if config.AppName != "" {
			appName = config.AppName
		}
		if config.Testnet {
			testnetNote = "<p><em>Testnet payment — no real funds are transferred.</em></p>"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>Payment required</title></head><body>")
	fmt.Fprintf(&b, "<h1>%s requires payment</h1>", html.EscapeString(appName))
	fmt.Fprintf(&b, "<p>Connect a %s to pay <strong>%s %s</strong> to <code>%s</code> on <code>%s</code>.</p>",
		html.EscapeString(walletKind),
		html.EscapeString(r.Amount), html.EscapeString(r.Asset),
		html.EscapeString(r.PayTo), html.EscapeString(string(r.Network)))
	if required.Error != "" {
		fmt.Fprintf(&b, "<p class=\"error\">%s</p>", html.EscapeString(required.Error))
	}
	b.WriteString(testnetNote)
	b.WriteString("</body></html>")
	return b.String()
}
