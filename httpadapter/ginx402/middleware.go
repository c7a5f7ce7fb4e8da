// Package ginx402 wraps one Gin route with the x402 payment flow: a
// RouteBinding declares what the route accepts, and Middleware translates
// each inbound gin.Context into the httpadapter request/response shapes
// the framework-agnostic core already knows how to process.
package ginx402

import (
	"math/big"
	"strings"

	"github.com/gin-gonic/gin"

	x402 "github.com/x402core/x402"
	"github.com/x402core/x402/httpadapter"
)

// Config configures Middleware.
type Config struct {
	// Server is the ResourceServer the route is registered on.
	Server *x402.ResourceServer
	// Binding identifies which registered route this middleware guards.
	// Method and Path must match a binding passed to Server.RegisterRoute.
	Binding x402.RouteBinding
	// Paywall, if non-nil, renders an HTML challenge for browser clients
	// instead of the bare JSON PaymentRequired body.
	Paywall *httpadapter.PaywallConfig
}

// Middleware returns a gin.HandlerFunc enforcing cfg's payment requirements
// in front of the next handler in the chain. It aborts the chain with a 402
// (JSON or HTML) when payment is missing or invalid, and settles the
// verified payment only after the downstream handler completes without
// aborting and with a status below 400, attaching X-PAYMENT-RESPONSE to the
// response actually sent. A handler status of 400 or above is passed
// through unsettled and without that header.
func Middleware(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqCtx := &x402.RequestContext{
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			Header:      flattenHeader(c.Request.Header),
			AcceptsHTML: strings.Contains(c.GetHeader("Accept"), "text/html"),
		}

		resp, result, err := httpadapter.ProcessRequest(c.Request.Context(), cfg.Server, cfg.Binding, reqCtx, httpadapter.Options{Paywall: cfg.Paywall})
		if err != nil {
			c.AbortWithStatus(500)
			return
		}
		if resp != nil {
			writeResponse(c, resp)
			c.Abort()
			return
		}

		buffered := &responseWriter{ResponseWriter: c.Writer, body: &strings.Builder{}, statusCode: 200}
		c.Writer = buffered

		c.Next()

		c.Writer = buffered.ResponseWriter

		if c.IsAborted() || buffered.statusCode >= 400 {
			flush(c, buffered)
			return
		}

		headerValue, failure, err := httpadapter.SettleAndRespond(c.Request.Context(), cfg.Server, result)
		if err != nil {
			c.AbortWithStatus(500)
			return
		}
		if failure != nil {
			writeResponse(c, failure)
			return
		}
		if headerValue != "" {
			c.Header(httpadapter.PaymentResponseHeader, headerValue)
		}
		flush(c, buffered)
	}
}

func flattenHeader(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func writeResponse(c *gin.Context, resp *httpadapter.HTTPResponse) {
	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	c.Data(resp.StatusCode, resp.Headers["Content-Type"], resp.Body)
}

// responseWriter buffers the downstream handler's output so settlement can
// run, and fail, before anything is written to the real connection.
type responseWriter struct {
	gin.ResponseWriter
	body       *strings.Builder
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
}

func (w *responseWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func flush(c *gin.Context, w *responseWriter) {
	c.Writer.WriteHeader(w.statusCode)
	c.Writer.WriteString(w.body.String())
}

// AmountToAssetUnits converts a human-facing decimal amount into the
// smallest unit of an asset with the given number of decimals, e.g. 1.5
// USDC (6 decimals) becomes 1500000.
func AmountToAssetUnits(amount *big.Float, decimals int) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaleFloat := new(big.Float).SetPrec(256).SetInt(scale)
	amountFloat := new(big.Float).SetPrec(256).Set(amount)
	result, _ := new(big.Float).Mul(amountFloat, scaleFloat).Int(nil)
	return result
}
