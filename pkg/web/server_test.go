package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fgrzl/claims"
	"github.com/fgrzl/claims/jwtkit"
	"github.com/fgrzl/gridkit/internal/cache"
	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/gridkit/pkg/market"
	"github.com/fgrzl/gridkit/pkg/payment"
	"github.com/fgrzl/gridkit/pkg/storage/pebble"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var secret = []byte("top-secret")
var tester = claims.NewClaimsList("tenant_id", uuid.NewString()).Add("scopes", "gridkit::*")

type webNode struct {
	bus    *bus.Bus
	server *httptest.Server
	client *http.Client
	token  string
}

func (n *webNode) url(path string) string {
	return n.server.URL + path
}

func newWebHarness(t *testing.T) (provider, requestor *webNode) {
	t.Helper()
	resolver := bus.NewLoopbackResolver()

	newNode := func() *webNode {
		b := bus.New(uuid.New(), resolver)
		resolver.Add(b)

		store, err := pebble.NewPebbleStore(t.TempDir(), cache.NewExpiringCache(time.Minute, time.Minute))
		require.NoError(t, err)
		t.Cleanup(store.Close)

		marketService, err := market.NewService(b, store)
		require.NoError(t, err)
		t.Cleanup(marketService.Close)

		paymentService, err := payment.NewService(b, store, nil)
		require.NoError(t, err)
		t.Cleanup(paymentService.Close)

		router, err := NewRouter(&Options{
			Secret:  secret,
			Bus:     b,
			Market:  marketService,
			Payment: paymentService,
		})
		require.NoError(t, err)

		server := httptest.NewServer(router)
		t.Cleanup(server.Close)

		signer := jwtkit.HMAC256Signer{Secret: secret}
		ttl := time.Minute
		token, err := signer.CreateToken(claims.NewPrincipalFromList(tester), ttl)
		require.NoError(t, err)

		return &webNode{bus: b, server: server, client: server.Client(), token: token}
	}
	return newNode(), newNode()
}

func (n *webNode) do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthzIsAnonymous(t *testing.T) {
	provider, _ := newWebHarness(t)

	resp, err := provider.client.Get(provider.url("/healthz"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutesRequireAuthentication(t *testing.T) {
	provider, _ := newWebHarness(t)

	resp, err := provider.client.Get(provider.url("/api/market/agreement?id=" + uuid.NewString()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetUnknownAgreementIsNotFound(t *testing.T) {
	provider, _ := newWebHarness(t)

	resp := provider.do(t, http.MethodGet, provider.url("/api/market/agreement?id="+uuid.NewString()), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNegotiationAndInvoiceOverRest(t *testing.T) {
	provider, requestor := newWebHarness(t)

	// Requestor drafts and proposes the agreement.
	resp := requestor.do(t, http.MethodPost, requestor.url("/api/market/agreements"), map[string]any{
		"provider_id": provider.bus.NodeID(),
		"offer":       `{"cpu":2}`,
		"demand":      `{"price":"0.1"}`,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	agreement := decode[*api.Agreement](t, resp)
	require.Equal(t, api.AgreementProposal, agreement.State)

	resp = requestor.do(t, http.MethodPost, requestor.url("/api/market/agreement/propose?id="+agreement.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Provider approves through its own surface.
	resp = provider.do(t, http.MethodPost, provider.url("/api/market/agreement/approve?id="+agreement.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approved := decode[*api.Agreement](t, resp)
	require.Equal(t, api.AgreementApproved, approved.State)

	// Provider bills, requestor accepts.
	resp = provider.do(t, http.MethodPost, provider.url("/api/payment/invoices"), map[string]any{
		"agreement_id": agreement.ID,
		"amount":       "3.50",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	invoice := decode[*api.Invoice](t, resp)
	require.Equal(t, api.StatusIssued, invoice.Status)

	resp = provider.do(t, http.MethodPost, provider.url("/api/payment/invoice/send?id="+invoice.ID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = requestor.do(t, http.MethodPost, requestor.url("/api/payment/invoice/accept?id="+invoice.ID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = provider.do(t, http.MethodGet, provider.url("/api/payment/invoice?id="+invoice.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	settledCopy := decode[*api.Invoice](t, resp)
	require.Equal(t, api.StatusAccepted, settledCopy.Status)

	resp = provider.do(t, http.MethodGet, provider.url("/api/payment/invoices/issued"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	issued := decode[[]*api.Invoice](t, resp)
	require.Len(t, issued, 1)
}

func TestLifecycleViolationIsBadRequest(t *testing.T) {
	provider, requestor := newWebHarness(t)

	resp := requestor.do(t, http.MethodPost, requestor.url("/api/market/agreements"), map[string]any{
		"provider_id": provider.bus.NodeID(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	agreement := decode[*api.Agreement](t, resp)

	// Terminating a draft skips the approval step.
	resp = requestor.do(t, http.MethodPost, requestor.url(fmt.Sprintf("/api/market/agreement/terminate?id=%s", agreement.ID)), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
