package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fgrzl/enumerators"
	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/gridkit/pkg/storage"
	"github.com/fgrzl/timestamp"
	"github.com/google/uuid"
)

// Service issues, delivers, and settles invoices and debit notes. The local
// node issues paperwork for agreements where it is the provider; recipients
// are derived from the agreement, never supplied by the caller.
type Service struct {
	bus      *bus.Bus
	store    storage.Store
	notifier Notifier
}

// NewService binds the payment address. notifier may be nil when
// out-of-band notifications are not configured.
func NewService(b *bus.Bus, store storage.Store, notifier Notifier) (*Service, error) {
	s := &Service{
		bus:      b,
		store:    store,
		notifier: notifier,
	}
	if err := b.Bind(api.PaymentAddress, s.handle); err != nil {
		return nil, err
	}
	return s, nil
}

// notify is fire and forget; a broker outage never fails the document
// exchange itself.
func (s *Service) notify(ctx context.Context, notification Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		slog.Warn("payment: notification dropped",
			slog.String("discriminator", notification.GetDiscriminator()),
			slog.String("error", err.Error()))
	}
}

func (s *Service) Close() {
	s.bus.Unbind(api.PaymentAddress)
}

// ─── Invoices ──────────────────────────────────────────────────────────────────

// IssueInvoice creates an invoice for an approved agreement. Issuer and
// recipient come from the agreement; an agreement missing either identity
// cannot be invoiced.
func (s *Service) IssueInvoice(ctx context.Context, agreementID, amount string, dueDate int64) (*api.Invoice, error) {
	agreement, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	provider, requestor, err := agreement.Parties()
	if err != nil {
		return nil, err
	}
	if agreement.State != api.AgreementApproved {
		return nil, fmt.Errorf("agreement %s is not approved: %s", agreementID, agreement.State)
	}

	invoice := &api.Invoice{
		ID:          uuid.NewString(),
		AgreementID: agreementID,
		IssuerID:    provider,
		RecipientID: requestor,
		Amount:      amount,
		DueDate:     dueDate,
		Status:      api.StatusIssued,
		Timestamp:   timestamp.GetTimestamp(),
	}
	if err := s.store.CreateInvoice(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// SendInvoice delivers an issued invoice to its recipient node and marks
// the local copy Received once the peer has acknowledged it.
func (s *Service) SendInvoice(ctx context.Context, invoiceID string) error {
	invoice, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice.Status != api.StatusIssued {
		return fmt.Errorf("invoice %s is not sendable: %s", invoiceID, invoice.Status)
	}

	endpoint := s.bus.Endpoint(invoice.RecipientID, api.PaymentAddress)
	if _, err := bus.Call[*api.Ack](ctx, endpoint, &api.SendInvoice{Invoice: invoice}); err != nil {
		return fmt.Errorf("send invoice %s: %w", invoiceID, err)
	}

	_, err = s.store.UpdateInvoiceStatus(ctx, invoiceID, api.StatusReceived)
	return err
}

// AcceptInvoice accepts a received invoice and notifies the issuer.
func (s *Service) AcceptInvoice(ctx context.Context, invoiceID string) error {
	invoice, err := s.store.UpdateInvoiceStatus(ctx, invoiceID, api.StatusAccepted)
	if err != nil {
		return err
	}

	endpoint := s.bus.Endpoint(invoice.IssuerID, api.PaymentAddress)
	if _, err := bus.Call[*api.Ack](ctx, endpoint, &api.AcceptInvoice{
		InvoiceID:           invoiceID,
		TotalAmountAccepted: invoice.Amount,
	}); err != nil {
		return fmt.Errorf("accept invoice %s: %w", invoiceID, err)
	}
	return nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*api.Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

func (s *Service) GetIssuedInvoices(ctx context.Context) enumerators.Enumerator[*api.Invoice] {
	return s.store.GetIssuedInvoices(ctx, s.bus.NodeID())
}

func (s *Service) GetReceivedInvoices(ctx context.Context) enumerators.Enumerator[*api.Invoice] {
	return s.store.GetReceivedInvoices(ctx, s.bus.NodeID())
}

// ─── Debit notes ───────────────────────────────────────────────────────────────

// IssueDebitNote creates a debit note billing activity under an approved
// agreement.
func (s *Service) IssueDebitNote(ctx context.Context, agreementID, activityID, totalAmountDue string, dueDate int64) (*api.DebitNote, error) {
	agreement, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	provider, requestor, err := agreement.Parties()
	if err != nil {
		return nil, err
	}
	if agreement.State != api.AgreementApproved {
		return nil, fmt.Errorf("agreement %s is not approved: %s", agreementID, agreement.State)
	}

	debitNote := &api.DebitNote{
		ID:             uuid.NewString(),
		AgreementID:    agreementID,
		ActivityID:     activityID,
		IssuerID:       provider,
		RecipientID:    requestor,
		TotalAmountDue: totalAmountDue,
		DueDate:        dueDate,
		Status:         api.StatusIssued,
		Timestamp:      timestamp.GetTimestamp(),
	}
	if err := s.store.CreateDebitNote(ctx, debitNote); err != nil {
		return nil, err
	}
	return debitNote, nil
}

// SendDebitNote delivers an issued debit note to its recipient node.
func (s *Service) SendDebitNote(ctx context.Context, debitNoteID string) error {
	debitNote, err := s.store.GetDebitNote(ctx, debitNoteID)
	if err != nil {
		return err
	}
	if debitNote.Status != api.StatusIssued {
		return fmt.Errorf("debit note %s is not sendable: %s", debitNoteID, debitNote.Status)
	}

	endpoint := s.bus.Endpoint(debitNote.RecipientID, api.PaymentAddress)
	if _, err := bus.Call[*api.Ack](ctx, endpoint, &api.SendDebitNote{DebitNote: debitNote}); err != nil {
		return fmt.Errorf("send debit note %s: %w", debitNoteID, err)
	}

	_, err = s.store.UpdateDebitNoteStatus(ctx, debitNoteID, api.StatusReceived)
	return err
}

// AcceptDebitNote accepts a received debit note and notifies the issuer.
func (s *Service) AcceptDebitNote(ctx context.Context, debitNoteID string) error {
	debitNote, err := s.store.UpdateDebitNoteStatus(ctx, debitNoteID, api.StatusAccepted)
	if err != nil {
		return err
	}

	endpoint := s.bus.Endpoint(debitNote.IssuerID, api.PaymentAddress)
	if _, err := bus.Call[*api.Ack](ctx, endpoint, &api.AcceptDebitNote{
		DebitNoteID:         debitNoteID,
		TotalAmountAccepted: debitNote.TotalAmountDue,
	}); err != nil {
		return fmt.Errorf("accept debit note %s: %w", debitNoteID, err)
	}
	return nil
}

func (s *Service) GetDebitNote(ctx context.Context, id string) (*api.DebitNote, error) {
	return s.store.GetDebitNote(ctx, id)
}

// ─── Bus handler ───────────────────────────────────────────────────────────────

// handle serves the recipient and issuer sides of document exchange.
func (s *Service) handle(ctx context.Context, caller uuid.UUID, msg api.Message) (any, error) {
	switch m := msg.(type) {
	case *api.SendInvoice:
		return s.handleSendInvoice(ctx, m)
	case *api.AcceptInvoice:
		return s.handleAcceptInvoice(ctx, m)
	case *api.SendDebitNote:
		return s.handleSendDebitNote(ctx, m)
	case *api.AcceptDebitNote:
		return s.handleAcceptDebitNote(ctx, m)
	default:
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: fmt.Sprintf("unexpected message: %s", msg.GetDiscriminator())}
	}
}

func (s *Service) handleSendInvoice(ctx context.Context, m *api.SendInvoice) (any, error) {
	if m.Invoice == nil {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: "missing invoice"}
	}
	if m.Invoice.IssuerID == uuid.Nil || m.Invoice.RecipientID == uuid.Nil {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: api.ErrMissingIdentity.Error()}
	}

	received := *m.Invoice
	received.Status = api.StatusReceived
	if err := s.store.CreateInvoice(ctx, &received); err != nil {
		return nil, err
	}
	s.notify(ctx, &InvoiceNotification{RecipientID: received.RecipientID, Invoice: &received, Status: api.StatusReceived})
	return &api.Ack{}, nil
}

func (s *Service) handleSendDebitNote(ctx context.Context, m *api.SendDebitNote) (any, error) {
	if m.DebitNote == nil {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: "missing debit note"}
	}
	if m.DebitNote.IssuerID == uuid.Nil || m.DebitNote.RecipientID == uuid.Nil {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: api.ErrMissingIdentity.Error()}
	}

	received := *m.DebitNote
	received.Status = api.StatusReceived
	if err := s.store.CreateDebitNote(ctx, &received); err != nil {
		return nil, err
	}
	s.notify(ctx, &DebitNoteNotification{RecipientID: received.RecipientID, DebitNote: &received, Status: api.StatusReceived})
	return &api.Ack{}, nil
}

func (s *Service) handleAcceptInvoice(ctx context.Context, m *api.AcceptInvoice) (any, error) {
	invoice, err := s.store.UpdateInvoiceStatus(ctx, m.InvoiceID, api.StatusAccepted)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: "unknown invoice: " + m.InvoiceID}
	}
	if err != nil {
		return nil, err
	}
	s.notify(ctx, &InvoiceNotification{RecipientID: invoice.IssuerID, Invoice: invoice, Status: api.StatusAccepted})
	return &api.Ack{}, nil
}

func (s *Service) handleAcceptDebitNote(ctx context.Context, m *api.AcceptDebitNote) (any, error) {
	debitNote, err := s.store.UpdateDebitNoteStatus(ctx, m.DebitNoteID, api.StatusAccepted)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: "unknown debit note: " + m.DebitNoteID}
	}
	if err != nil {
		return nil, err
	}
	s.notify(ctx, &DebitNoteNotification{RecipientID: debitNote.IssuerID, DebitNote: debitNote, Status: api.StatusAccepted})
	return &api.Ack{}, nil
}
