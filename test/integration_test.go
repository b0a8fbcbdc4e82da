package test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/fgrzl/claims"
	"github.com/fgrzl/claims/jwtkit"
	"github.com/fgrzl/gridkit"
	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/gridkit/pkg/market"
	"github.com/fgrzl/gridkit/pkg/payment"
	"github.com/fgrzl/gridkit/pkg/storage"
	"github.com/fgrzl/gridkit/pkg/storage/pebble"
	"github.com/fgrzl/gridkit/pkg/transfer"
	"github.com/fgrzl/gridkit/pkg/transport/wskit"
	"github.com/fgrzl/gridkit/pkg/web"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var secret = []byte("top-secret")
var tester = claims.NewClaimsList("tenant_id", uuid.NewString()).Add("scopes", "gridkit::*")

type meshNode struct {
	Bus      *bus.Bus
	Store    storage.Store
	Market   *market.Service
	Payment  *payment.Service
	Provider *transfer.Provider
	Pool     *gridkit.NodeClientPool
	Server   *httptest.Server
}

// newMesh wires two nodes that reach each other over real websocket
// connections through their HTTP servers.
func newMesh(t *testing.T) (provider, requestor *meshNode) {
	t.Helper()

	signer := jwtkit.HMAC256Signer{Secret: secret}
	ttl := time.Minute
	token, err := signer.CreateToken(claims.NewPrincipalFromList(tester), ttl)
	require.NoError(t, err)

	// Filled in as servers come up; resolvers share it.
	directory := wskit.StaticDirectory{}

	newNode := func() *meshNode {
		resolver := wskit.NewResolver(directory, token)
		b := bus.New(uuid.New(), resolver)

		factory, err := pebble.NewStoreFactory(&pebble.PebbleStoreOptions{Path: t.TempDir()})
		require.NoError(t, err)

		store, err := factory.NewStore(t.Context(), "node")
		require.NoError(t, err)
		t.Cleanup(store.Close)

		marketService, err := market.NewService(b, store)
		require.NoError(t, err)
		t.Cleanup(marketService.Close)

		paymentService, err := payment.NewService(b, store, nil)
		require.NoError(t, err)
		t.Cleanup(paymentService.Close)

		router, err := web.NewRouter(&web.Options{
			Secret:  secret,
			Bus:     b,
			Market:  marketService,
			Payment: paymentService,
		})
		require.NoError(t, err)

		server := httptest.NewServer(router)
		t.Cleanup(server.Close)

		serverURL, err := url.Parse(server.URL)
		require.NoError(t, err)
		directory[b.NodeID()] = "ws://" + serverURL.Host + "/rpc"

		return &meshNode{
			Bus:      b,
			Store:    store,
			Market:   marketService,
			Payment:  paymentService,
			Provider: transfer.NewProvider(b, nil),
			Pool:     gridkit.NewNodeClientPool(b),
			Server:   server,
		}
	}
	return newNode(), newNode()
}

func TestHealthz(t *testing.T) {
	provider, _ := newMesh(t)

	resp, err := provider.Server.Client().Get(provider.Server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPingOverWebSocket(t *testing.T) {
	provider, requestor := newMesh(t)

	client := requestor.Pool.GetClient(provider.Bus.NodeID())
	reply, err := client.Ping(t.Context(), "hello grid")

	require.NoError(t, err)
	require.Equal(t, "hello grid", reply)
}

func TestDownloadSharedFile(t *testing.T) {
	provider, requestor := newMesh(t)

	path, hash := writeTestFile(t, 300_000)
	share, err := provider.Provider.Share(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = share.Close() })

	client := requestor.Pool.GetClient(provider.Bus.NodeID())

	meta, err := client.GetMetadata(t.Context(), share.URL())
	require.NoError(t, err)
	require.Equal(t, int64(300_000), meta.Size)
	require.Equal(t, hash, meta.Hash)

	var buf bytes.Buffer
	require.NoError(t, client.Download(t.Context(), share.URL(), &buf))
	require.Equal(t, hash, hashBytes(buf.Bytes()))
}

func TestUploadToPeer(t *testing.T) {
	provider, requestor := newMesh(t)

	dst := t.TempDir() + "/upload.bin"
	upload, err := provider.Provider.ShareUpload(dst)
	require.NoError(t, err)
	t.Cleanup(func() { _ = upload.Close() })

	content := make([]byte, 150_000)
	for i := range content {
		content[i] = byte(i % 251)
	}

	client := requestor.Pool.GetClient(provider.Bus.NodeID())
	require.NoError(t, client.Upload(t.Context(), upload.URL(), bytes.NewReader(content)))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, upload.Wait(ctx))
	require.Equal(t, int64(len(content)), upload.Received())

	written, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, hashBytes(content), hashBytes(written))
}

func TestNegotiationAndSettlementOverWebSocket(t *testing.T) {
	provider, requestor := newMesh(t)
	ctx := t.Context()

	agreement, err := requestor.Market.CreateAgreement(ctx, provider.Bus.NodeID(), `{"cpu":8}`, `{"price":"0.25"}`, 0)
	require.NoError(t, err)
	require.NoError(t, requestor.Market.ProposeAgreement(ctx, agreement.ID))
	require.NoError(t, provider.Market.ApproveAgreement(ctx, agreement.ID))

	approved, err := requestor.Store.GetAgreement(ctx, agreement.ID)
	require.NoError(t, err)
	require.Equal(t, api.AgreementApproved, approved.State)

	invoice, err := provider.Payment.IssueInvoice(ctx, agreement.ID, "2.00", 0)
	require.NoError(t, err)
	require.NoError(t, provider.Payment.SendInvoice(ctx, invoice.ID))
	require.NoError(t, requestor.Payment.AcceptInvoice(ctx, invoice.ID))

	settled, err := provider.Store.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, api.StatusAccepted, settled.Status)
}

func TestUnknownTokenFailsFast(t *testing.T) {
	provider, requestor := newMesh(t)

	client := requestor.Pool.GetClient(provider.Bus.NodeID())
	badURL := transfer.URL{Node: provider.Bus.NodeID(), Token: uuid.NewString()}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	_, err := client.GetMetadata(ctx, badURL.String())
	require.Error(t, err)
	require.True(t, api.IsTransport(err), "expected a transport error, got %v", err)
}
