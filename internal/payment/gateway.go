package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPGateway charges through a remote payment gateway.  It POSTs JSON to
// {base}/charges and {base}/refunds.  A 2xx answer is success, 402 and 422
// are declines and anything else means the gateway is unavailable.
type HTTPGateway struct {
	base   string
	client *http.Client
}

// NewHTTPGateway creates a gateway client rooted at baseURL.
func NewHTTPGateway(baseURL string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{base: strings.TrimRight(baseURL, "/"), client: client}
}

type gatewayError struct {
	Message string `json:"message"`
}

// Charge implements Provider.
func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	var receipt Receipt
	if err := g.post(ctx, "/charges", req.IdempotencyKey, req, &receipt); err != nil {
		return Receipt{}, err
	}
	if receipt.Reference == "" {
		return Receipt{}, &ProviderError{Code: CodeUnavailable, Err: errors.New("gateway returned no reference")}
	}
	return receipt, nil
}

// Refund implements Refunder.
func (g *HTTPGateway) Refund(ctx context.Context, reference string, amount int64) error {
	body := struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	}{reference, amount}
	return g.post(ctx, "/refunds", "refund-"+reference, body, nil)
}

func (g *HTTPGateway) post(ctx context.Context, path, idemKey string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ProviderError{Code: CodeUnavailable, Err: fmt.Errorf("decode gateway response: %w", err)}
		}
		return nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		var ge gatewayError
		_ = json.NewDecoder(resp.Body).Decode(&ge)
		if ge.Message == "" {
			ge.Message = resp.Status
		}
		return &ProviderError{Code: CodeDeclined, Err: errors.New(ge.Message)}
	default:
		return &ProviderError{Code: CodeUnavailable, Err: fmt.Errorf("gateway returned %s", resp.Status)}
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ProviderError{Code: CodeTimeout, Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &ProviderError{Code: CodeAbandoned, Err: err}
	default:
		return &ProviderError{Code: CodeUnavailable, Err: err}
	}
}
