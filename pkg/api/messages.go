package api

import (
	"github.com/fgrzl/json/polymorphic"
	"github.com/google/uuid"
)

func init() {
	polymorphic.Register(func() *Ping { return &Ping{} })
	polymorphic.Register(func() *GetMetadata { return &GetMetadata{} })
	polymorphic.Register(func() *GetChunk { return &GetChunk{} })
	polymorphic.Register(func() *UploadChunk { return &UploadChunk{} })
	polymorphic.Register(func() *UploadFinished { return &UploadFinished{} })
	polymorphic.Register(func() *ProposeAgreement { return &ProposeAgreement{} })
	polymorphic.Register(func() *ApproveAgreement { return &ApproveAgreement{} })
	polymorphic.Register(func() *SendInvoice { return &SendInvoice{} })
	polymorphic.Register(func() *AcceptInvoice { return &AcceptInvoice{} })
	polymorphic.Register(func() *SendDebitNote { return &SendDebitNote{} })
	polymorphic.Register(func() *AcceptDebitNote { return &AcceptDebitNote{} })
}

// ─── Diagnostics ───────────────────────────────────────────────────────────────

// Ping replies with its own message string.
type Ping struct {
	Message string `json:"message"`
}

func (m *Ping) GetDiscriminator() string {
	return "gridkit://api/v1/ping"
}

// ─── Transfer ──────────────────────────────────────────────────────────────────

// GetMetadata asks a shared resource for its size before chunking begins.
type GetMetadata struct{}

func (m *GetMetadata) GetDiscriminator() string {
	return "gridkit://api/v1/get_metadata"
}

type Metadata struct {
	Size int64  `json:"size"`
	Name string `json:"name,omitempty"`
	Hash string `json:"hash,omitempty"`
}

// GetChunk requests the byte range [Offset, Offset+Size) of a shared
// resource. The reply chunk may be shorter than Size at end of file.
type GetChunk struct {
	Offset uint64 `json:"offset"`
	Size   uint32 `json:"size"`
}

func (m *GetChunk) GetDiscriminator() string {
	return "gridkit://api/v1/get_chunk"
}

// Chunk is a contiguous byte range of a transferred resource.
type Chunk struct {
	Offset  uint64 `json:"offset"`
	Content []byte `json:"content"`
}

// UploadChunk pushes one chunk to an upload endpoint. Chunks are sent in
// offset order; the receiver writes them at Chunk.Offset.
type UploadChunk struct {
	Chunk Chunk `json:"chunk"`
}

func (m *UploadChunk) GetDiscriminator() string {
	return "gridkit://api/v1/upload_chunk"
}

// UploadFinished closes an upload. Hash, when set, lets the receiver verify
// the assembled resource.
type UploadFinished struct {
	Hash string `json:"hash,omitempty"`
}

func (m *UploadFinished) GetDiscriminator() string {
	return "gridkit://api/v1/upload_finished"
}

// Ack is the empty success reply for operations with no payload.
type Ack struct{}

// ─── Market ────────────────────────────────────────────────────────────────────

// ProposeAgreement delivers a newly created agreement to the provider node.
type ProposeAgreement struct {
	Agreement *Agreement `json:"agreement"`
}

func (m *ProposeAgreement) GetDiscriminator() string {
	return "gridkit://api/v1/propose_agreement"
}

// ApproveAgreement notifies the requestor that the provider approved.
type ApproveAgreement struct {
	AgreementID string    `json:"agreement_id"`
	ApprovedBy  uuid.UUID `json:"approved_by"`
}

func (m *ApproveAgreement) GetDiscriminator() string {
	return "gridkit://api/v1/approve_agreement"
}

// ─── Payment ───────────────────────────────────────────────────────────────────

// SendInvoice delivers an issued invoice to its recipient node.
type SendInvoice struct {
	Invoice *Invoice `json:"invoice"`
}

func (m *SendInvoice) GetDiscriminator() string {
	return "gridkit://api/v1/send_invoice"
}

// AcceptInvoice notifies the issuer that the recipient accepted.
type AcceptInvoice struct {
	InvoiceID           string `json:"invoice_id"`
	TotalAmountAccepted string `json:"total_amount_accepted"`
}

func (m *AcceptInvoice) GetDiscriminator() string {
	return "gridkit://api/v1/accept_invoice"
}

// SendDebitNote delivers an issued debit note to its recipient node.
type SendDebitNote struct {
	DebitNote *DebitNote `json:"debit_note"`
}

func (m *SendDebitNote) GetDiscriminator() string {
	return "gridkit://api/v1/send_debit_note"
}

// AcceptDebitNote notifies the issuer that the recipient accepted.
type AcceptDebitNote struct {
	DebitNoteID         string `json:"debit_note_id"`
	TotalAmountAccepted string `json:"total_amount_accepted"`
}

func (m *AcceptDebitNote) GetDiscriminator() string {
	return "gridkit://api/v1/accept_debit_note"
}
