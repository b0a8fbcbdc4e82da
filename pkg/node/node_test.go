package node

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/gridkit/pkg/storage/pebble"
	"github.com/fgrzl/gridkit/pkg/transport/wskit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testOptions(t *testing.T) *Options {
	t.Helper()
	factory, err := pebble.NewStoreFactory(&pebble.PebbleStoreOptions{Path: t.TempDir()})
	require.NoError(t, err)
	return &Options{
		Secret:       []byte("test-secret"),
		StoreFactory: factory,
	}
}

func TestNewNodeAssemblesServices(t *testing.T) {
	n, err := New(t.Context(), testOptions(t))
	require.NoError(t, err)
	t.Cleanup(n.Close)

	require.NotEqual(t, uuid.Nil, n.ID())
	require.NotNil(t, n.Bus())
	require.NotNil(t, n.Market())
	require.NotNil(t, n.Payment())
	require.NotNil(t, n.Transfer())
	require.NotNil(t, n.Router())
}

func TestNewNodeRequiresStoreFactory(t *testing.T) {
	_, err := New(t.Context(), &Options{Secret: []byte("x")})
	require.Error(t, err)
}

func TestMintedTokenReachesPeers(t *testing.T) {
	directory := wskit.StaticDirectory{}

	newNode := func() *Node {
		factory, err := pebble.NewStoreFactory(&pebble.PebbleStoreOptions{Path: t.TempDir()})
		require.NoError(t, err)

		// No Token: each node mints its own from the shared secret.
		n, err := New(t.Context(), &Options{
			Secret:       []byte("mesh-secret"),
			Directory:    directory,
			StoreFactory: factory,
		})
		require.NoError(t, err)
		t.Cleanup(n.Close)

		server := httptest.NewServer(n.Router())
		t.Cleanup(server.Close)

		serverURL, err := url.Parse(server.URL)
		require.NoError(t, err)
		directory[n.ID()] = "ws://" + serverURL.Host + "/rpc"
		return n
	}

	a, b := newNode(), newNode()

	endpoint := a.Bus().Endpoint(b.ID(), api.PingAddress)
	reply, err := bus.Call[*api.Ping](t.Context(), endpoint, &api.Ping{Message: "minted"})
	require.NoError(t, err)
	require.Equal(t, "minted", reply.Message)
}

func TestSuppliedLinkTokenIsVerified(t *testing.T) {
	options := testOptions(t)
	options.Directory = wskit.StaticDirectory{}
	options.Token = "not-a-jwt"

	_, err := New(t.Context(), options)
	require.Error(t, err)
	require.ErrorContains(t, err, "link token")
}

func TestManagerReusesNodes(t *testing.T) {
	m := NewManager(testOptions(t))
	t.Cleanup(m.Close)

	id := uuid.New()
	first, err := m.GetOrCreate(t.Context(), id)
	require.NoError(t, err)

	second, err := m.GetOrCreate(t.Context(), id)
	require.NoError(t, err)
	require.Same(t, first, second)

	m.Remove(t.Context(), id)
	third, err := m.GetOrCreate(t.Context(), id)
	require.NoError(t, err)
	require.NotSame(t, first, third)
}
