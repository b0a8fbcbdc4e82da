package market

import (
	"context"
	"testing"
	"time"

	"github.com/fgrzl/gridkit/internal/cache"
	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/gridkit/pkg/storage"
	"github.com/fgrzl/gridkit/pkg/storage/pebble"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	bus     *bus.Bus
	store   storage.Store
	service *Service
}

func newTestMesh(t *testing.T) (requestor, provider *testNode) {
	t.Helper()
	resolver := bus.NewLoopbackResolver()

	newNode := func() *testNode {
		b := bus.New(uuid.New(), resolver)
		resolver.Add(b)

		store, err := pebble.NewPebbleStore(t.TempDir(), cache.NewExpiringCache(time.Minute, time.Minute))
		require.NoError(t, err)
		t.Cleanup(store.Close)

		service, err := NewService(b, store)
		require.NoError(t, err)
		t.Cleanup(service.Close)

		return &testNode{bus: b, store: store, service: service}
	}
	return newNode(), newNode()
}

func TestAgreementNegotiation(t *testing.T) {
	requestor, provider := newTestMesh(t)
	ctx := context.Background()

	agreement, err := requestor.service.CreateAgreement(ctx, provider.bus.NodeID(), `{"cpu":4}`, `{"price":"0.1"}`, 0)
	require.NoError(t, err)
	require.Equal(t, api.AgreementProposal, agreement.State)
	require.Equal(t, requestor.bus.NodeID(), agreement.RequestorID)

	require.NoError(t, requestor.service.ProposeAgreement(ctx, agreement.ID))

	// Both sides now hold the agreement in Pending.
	local, err := requestor.store.GetAgreement(ctx, agreement.ID)
	require.NoError(t, err)
	require.Equal(t, api.AgreementPending, local.State)

	remote, err := provider.store.GetAgreement(ctx, agreement.ID)
	require.NoError(t, err)
	require.Equal(t, api.AgreementPending, remote.State)

	require.NoError(t, provider.service.ApproveAgreement(ctx, agreement.ID))

	local, err = requestor.store.GetAgreement(ctx, agreement.ID)
	require.NoError(t, err)
	require.Equal(t, api.AgreementApproved, local.State)
	require.NotZero(t, local.ApprovedTimestamp)

	remote, err = provider.store.GetAgreement(ctx, agreement.ID)
	require.NoError(t, err)
	require.Equal(t, api.AgreementApproved, remote.State)
}

func TestCreateAgreementRequiresProvider(t *testing.T) {
	requestor, _ := newTestMesh(t)

	_, err := requestor.service.CreateAgreement(context.Background(), uuid.Nil, "", "", 0)
	require.ErrorIs(t, err, api.ErrMissingIdentity)
}

func TestTerminateRequiresApproval(t *testing.T) {
	requestor, provider := newTestMesh(t)
	ctx := context.Background()

	agreement, err := requestor.service.CreateAgreement(ctx, provider.bus.NodeID(), "", "", 0)
	require.NoError(t, err)

	err = requestor.service.TerminateAgreement(ctx, agreement.ID)
	require.ErrorIs(t, err, storage.ErrInvalidTransition)

	require.NoError(t, requestor.service.ProposeAgreement(ctx, agreement.ID))
	require.NoError(t, provider.service.ApproveAgreement(ctx, agreement.ID))
	require.NoError(t, requestor.service.TerminateAgreement(ctx, agreement.ID))
}

func TestHandleProposeRejectsMissingIdentity(t *testing.T) {
	requestor, provider := newTestMesh(t)

	endpoint := requestor.bus.Endpoint(provider.bus.NodeID(), api.MarketAddress)
	_, err := bus.Call[*api.Ack](context.Background(), endpoint, &api.ProposeAgreement{
		Agreement: &api.Agreement{ID: uuid.NewString(), State: api.AgreementPending},
	})
	require.True(t, api.IsBadRequest(err))
}

func TestApproveRejectsWrongApprover(t *testing.T) {
	requestor, provider := newTestMesh(t)
	ctx := context.Background()

	agreement, err := requestor.service.CreateAgreement(ctx, provider.bus.NodeID(), "", "", 0)
	require.NoError(t, err)
	require.NoError(t, requestor.service.ProposeAgreement(ctx, agreement.ID))

	endpoint := provider.bus.Endpoint(requestor.bus.NodeID(), api.MarketAddress)
	_, err = bus.Call[*api.Ack](ctx, endpoint, &api.ApproveAgreement{
		AgreementID: agreement.ID,
		ApprovedBy:  uuid.New(),
	})
	require.True(t, api.IsBadRequest(err))
}
