package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/gridkit/pkg/storage"
	"github.com/fgrzl/timestamp"
	"github.com/google/uuid"
)

// Service negotiates agreements between a requestor and a provider node.
// It binds the market address on construction and handles the peer half of
// every negotiation step.
type Service struct {
	bus   *bus.Bus
	store storage.Store
}

func NewService(b *bus.Bus, store storage.Store) (*Service, error) {
	s := &Service{
		bus:   b,
		store: store,
	}
	if err := b.Bind(api.MarketAddress, s.handle); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Close() {
	s.bus.Unbind(api.MarketAddress)
}

// CreateAgreement drafts a new agreement on the requestor side. The local
// node is the requestor; both identities are fixed at creation time.
func (s *Service) CreateAgreement(ctx context.Context, provider uuid.UUID, offer, demand string, validTo int64) (*api.Agreement, error) {
	if provider == uuid.Nil {
		return nil, api.ErrMissingIdentity
	}

	agreement := &api.Agreement{
		ID:                uuid.NewString(),
		OfferProperties:   offer,
		DemandProperties:  demand,
		ProviderID:        provider,
		RequestorID:       s.bus.NodeID(),
		State:             api.AgreementProposal,
		CreationTimestamp: timestamp.GetTimestamp(),
		ValidTo:           validTo,
	}
	if err := s.store.SaveAgreement(ctx, agreement); err != nil {
		return nil, err
	}
	return agreement, nil
}

// ProposeAgreement confirms a drafted agreement and delivers it to the
// provider for approval. Both sides end up holding it in Pending.
func (s *Service) ProposeAgreement(ctx context.Context, id string) error {
	agreement, err := s.store.GetAgreement(ctx, id)
	if err != nil {
		return err
	}
	provider, _, err := agreement.Parties()
	if err != nil {
		return err
	}

	pending, err := s.store.UpdateAgreementState(ctx, id, api.AgreementPending)
	if err != nil {
		return err
	}

	endpoint := s.bus.Endpoint(provider, api.MarketAddress)
	if _, err := bus.Call[*api.Ack](ctx, endpoint, &api.ProposeAgreement{Agreement: pending}); err != nil {
		return fmt.Errorf("propose agreement %s: %w", id, err)
	}
	return nil
}

// ApproveAgreement approves a pending agreement on the provider side and
// notifies the requestor.
func (s *Service) ApproveAgreement(ctx context.Context, id string) error {
	agreement, err := s.store.GetAgreement(ctx, id)
	if err != nil {
		return err
	}
	_, requestor, err := agreement.Parties()
	if err != nil {
		return err
	}

	if _, err := s.store.UpdateAgreementState(ctx, id, api.AgreementApproved); err != nil {
		return err
	}

	endpoint := s.bus.Endpoint(requestor, api.MarketAddress)
	if _, err := bus.Call[*api.Ack](ctx, endpoint, &api.ApproveAgreement{AgreementID: id, ApprovedBy: s.bus.NodeID()}); err != nil {
		return fmt.Errorf("approve agreement %s: %w", id, err)
	}
	return nil
}

// TerminateAgreement finishes an approved agreement locally.
func (s *Service) TerminateAgreement(ctx context.Context, id string) error {
	_, err := s.store.UpdateAgreementState(ctx, id, api.AgreementTerminated)
	return err
}

func (s *Service) GetAgreement(ctx context.Context, id string) (*api.Agreement, error) {
	return s.store.GetAgreement(ctx, id)
}

// handle serves the peer side of the negotiation.
func (s *Service) handle(ctx context.Context, caller uuid.UUID, msg api.Message) (any, error) {
	switch m := msg.(type) {
	case *api.ProposeAgreement:
		return s.handlePropose(ctx, m)
	case *api.ApproveAgreement:
		return s.handleApprove(ctx, m)
	default:
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: fmt.Sprintf("unexpected message: %s", msg.GetDiscriminator())}
	}
}

func (s *Service) handlePropose(ctx context.Context, m *api.ProposeAgreement) (any, error) {
	if m.Agreement == nil {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: "missing agreement"}
	}
	if _, _, err := m.Agreement.Parties(); err != nil {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: err.Error()}
	}
	if m.Agreement.State != api.AgreementPending {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: fmt.Sprintf("unexpected agreement state: %s", m.Agreement.State)}
	}

	if err := s.store.SaveAgreement(ctx, m.Agreement); err != nil {
		return nil, err
	}
	return &api.Ack{}, nil
}

func (s *Service) handleApprove(ctx context.Context, m *api.ApproveAgreement) (any, error) {
	agreement, err := s.store.GetAgreement(ctx, m.AgreementID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: "unknown agreement: " + m.AgreementID}
		}
		return nil, err
	}
	if m.ApprovedBy != agreement.ProviderID {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: "approval must come from the provider"}
	}

	if _, err := s.store.UpdateAgreementState(ctx, m.AgreementID, api.AgreementApproved); err != nil {
		return nil, err
	}
	return &api.Ack{}, nil
}
