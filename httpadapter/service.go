package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	x402 "github.com/x402core/x402"
)

// HTTPResponse is the framework-agnostic instruction an adapter (net/http,
// gin, ...) turns into an actual response write.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// jsonResponse marshals v as the body of an application/json HTTPResponse.
func jsonResponse(status int, v interface{}) (*HTTPResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &HTTPResponse{StatusCode: status, Headers: map[string]string{"Content-Type": "application/json"}, Body: body}, nil
}

// ExtractPaymentHeaderValue reads whichever of X-PAYMENT / payment-signature
// is present, case-insensitively, preferring X-PAYMENT.
func ExtractPaymentHeaderValue(header map[string]string) string {
	lower := make(map[string]string, len(header))
	for k, v := range header {
		lower[strings.ToLower(k)] = v
	}
	for _, name := range paymentHeaderNames {
		if v, ok := lower[strings.ToLower(name)]; ok && v != "" {
			return v
		}
	}
	return ""
}

// AcceptsHTML reports whether an Accept header value mentions text/html,
// used to decide whether a 402 response should render the browser paywall
// instead of a bare JSON document. Media-type order and q-values are not
// considered.
func AcceptsHTML(acceptHeader string) bool {
	return strings.Contains(acceptHeader, "text/html")
}

// Options configures ProcessRequest's HTML paywall behavior.
type Options struct {
	Paywall *PaywallConfig // nil disables HTML rendering even if the client requests it
}

// ProcessRequest runs one inbound request against binding through server,
// translating the core's ProcessResult into a concrete HTTPResponse when
// the caller should respond immediately (no payment or payment error: 402;
// conflict: 409) or nil when the caller should invoke the protected
// handler and then settle via SettleAndRespond (payment verified or access
// granted).
func ProcessRequest(ctx context.Context, server *x402.ResourceServer, binding x402.RouteBinding, reqCtx *x402.RequestContext, opts Options) (*HTTPResponse, *x402.ProcessResult, error) {
	headerValue := ExtractPaymentHeaderValue(reqCtx.Header)

	var payload *x402.PaymentPayload
	if headerValue != "" {
		decoded, err := DecodePaymentHeader(headerValue)
		if err != nil {
			pr, buildErr := server.CreatePaymentRequiredResponse(ctx, binding, reqCtx, 2, "invalid_payload")
			if buildErr != nil {
				return nil, nil, buildErr
			}
			resp, respErr := buildChallengeResponse(pr, reqCtx, opts)
			return resp, &x402.ProcessResult{Outcome: x402.OutcomePaymentError, PaymentRequired: &pr}, respErr
		}
		payload = decoded
	}

	result, err := server.ProcessPaymentRequest(ctx, binding, reqCtx, payload)
	if err != nil {
		return nil, nil, err
	}

	switch result.Outcome {
	case x402.OutcomeNoPayment, x402.OutcomePaymentError:
		resp, err := buildChallengeResponse(*result.PaymentRequired, reqCtx, opts)
		return resp, result, err
	case x402.OutcomeConflict:
		resp, err := jsonResponse(http.StatusConflict, map[string]string{"error": result.ConflictReason})
		return resp, result, err
	default:
		return nil, result, nil
	}
}

func buildChallengeResponse(pr x402.PaymentRequired, reqCtx *x402.RequestContext, opts Options) (*HTTPResponse, error) {
	if opts.Paywall != nil && (reqCtx.AcceptsHTML || AcceptsHTML(reqCtx.HeaderValue("Accept"))) {
		html := RenderPaywall(pr, opts.Paywall)
		if html != "" {
			return &HTTPResponse{
				StatusCode: http.StatusPaymentRequired,
				Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
				Body:       []byte(html),
			}, nil
		}
	}
	return jsonResponse(http.StatusPaymentRequired, pr)
}

// SettleAndRespond calls server.SettlePayment for the verified (payload,
// requirement) pair result carries, returning the X-PAYMENT-RESPONSE
// header value to attach to the protected handler's successful response.
// If settlement fails, it returns a 402-shaped HTTPResponse the caller
// should send instead of the protected handler's output. For a result
// that was granted access by an onProtectedRequest hook instead of going
// through verify/settle, it reports the hook's CachedSettleResponse (if
// any) without calling SettlePayment again.
func SettleAndRespond(ctx context.Context, server *x402.ResourceServer, result *x402.ProcessResult) (headerValue string, failure *HTTPResponse, err error) {
	if result.Outcome == x402.OutcomeAccessGranted {
		if result.CachedSettleResponse == nil {
			return "", nil, nil
		}
		encoded, err := EncodeSettleResponse(*result.CachedSettleResponse)
		return encoded, nil, err
	}
	if result.Outcome != x402.OutcomePaymentVerified {
		return "", nil, nil
	}
	settleResp, err := server.SettlePayment(ctx, *result.MatchedPayload, *result.Requirement)
	if err != nil {
		return "", nil, err
	}
	if !settleResp.Success {
		resp, jsonErr := jsonResponse(http.StatusPaymentRequired, x402.PaymentRequired{
			X402Version: result.MatchedPayload.X402Version,
			Error:       string(settleResp.ErrorReason),
			Accepts:     []x402.PaymentRequirements{*result.Requirement},
		})
		return "", resp, jsonErr
	}
	encoded, err := EncodeSettleResponse(settleResp)
	return encoded, nil, err
}
