package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderError_Is(t *testing.T) {
	err := error(&ProviderError{Code: CodeDeclined, Err: errors.New("insufficient funds")})
	assert.ErrorIs(t, err, ErrProvider)
	assert.Equal(t, "payment declined: insufficient funds", err.Error())

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeDeclined, pe.Code)
}

func TestAutoApprove(t *testing.T) {
	r, err := AutoApprove{}.Charge(context.Background(), ChargeRequest{Amount: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, r.Reference)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = AutoApprove{}.Charge(ctx, ChargeRequest{})
	assert.ErrorIs(t, err, ErrProvider)
}

func TestHTTPGateway_Charge(t *testing.T) {
	var got ChargeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charges", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Receipt{Reference: "txn-9"})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL+"/", srv.Client())
	r, err := gw.Charge(context.Background(), ChargeRequest{IdempotencyKey: "key-1", Amount: 180000, Method: "CARD"})
	require.NoError(t, err)
	assert.Equal(t, "txn-9", r.Reference)
	assert.EqualValues(t, 180000, got.Amount)
}

func TestHTTPGateway_Declined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"message":"card expired"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, srv.Client()).Charge(context.Background(), ChargeRequest{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeDeclined, pe.Code)
	assert.Contains(t, pe.Error(), "card expired")
}

func TestHTTPGateway_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPGateway(srv.URL, srv.Client()).Refund(context.Background(), "txn", 10)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeUnavailable, pe.Code)
}

func TestHTTPGateway_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTPGateway(srv.URL, srv.Client()).Charge(ctx, ChargeRequest{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeTimeout, pe.Code)
}
