package storage

import (
	"context"
	"errors"

	"github.com/fgrzl/enumerators"
	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrInvalidTransition is returned when a status update violates the
// document lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// StoreFactory defines how to create new storage instances by name.
type StoreFactory interface {
	NewStore(ctx context.Context, name string) (Store, error)
}

// Store persists agreement-derived documents. Issued/received enumerations
// are scoped by party identity so a node only lists its own paperwork.
type Store interface {
	SaveAgreement(ctx context.Context, agreement *api.Agreement) error
	GetAgreement(ctx context.Context, id string) (*api.Agreement, error)
	UpdateAgreementState(ctx context.Context, id string, state api.AgreementState) (*api.Agreement, error)

	CreateInvoice(ctx context.Context, invoice *api.Invoice) error
	GetInvoice(ctx context.Context, id string) (*api.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id string, status api.DocumentStatus) (*api.Invoice, error)
	GetIssuedInvoices(ctx context.Context, issuer uuid.UUID) enumerators.Enumerator[*api.Invoice]
	GetReceivedInvoices(ctx context.Context, recipient uuid.UUID) enumerators.Enumerator[*api.Invoice]

	CreateDebitNote(ctx context.Context, debitNote *api.DebitNote) error
	GetDebitNote(ctx context.Context, id string) (*api.DebitNote, error)
	UpdateDebitNoteStatus(ctx context.Context, id string, status api.DocumentStatus) (*api.DebitNote, error)
	GetIssuedDebitNotes(ctx context.Context, issuer uuid.UUID) enumerators.Enumerator[*api.DebitNote]
	GetReceivedDebitNotes(ctx context.Context, recipient uuid.UUID) enumerators.Enumerator[*api.DebitNote]

	Close()
}
