package api

import (
	"github.com/fgrzl/lexkey"
	"github.com/google/uuid"
)

// ─── Agreement ─────────────────────────────────────────────────────────────────

type AgreementState string

const (
	// Newly created by a requestor
	AgreementProposal AgreementState = "Proposal"
	// Confirmed by a requestor and sent to the provider for approval
	AgreementPending AgreementState = "Pending"
	// Cancelled by a requestor
	AgreementCancelled AgreementState = "Cancelled"
	// Rejected by a provider
	AgreementRejected AgreementState = "Rejected"
	// Approved by both sides
	AgreementApproved AgreementState = "Approved"
	// Not accepted, rejected nor cancelled within the validity period
	AgreementExpired AgreementState = "Expired"
	// Finished after approval
	AgreementTerminated AgreementState = "Terminated"
)

var agreementTransitions = map[AgreementState][]AgreementState{
	AgreementProposal: {AgreementPending, AgreementCancelled, AgreementExpired},
	AgreementPending:  {AgreementApproved, AgreementRejected, AgreementCancelled, AgreementExpired},
	AgreementApproved: {AgreementTerminated},
}

// CanTransition reports whether the lifecycle permits moving to next.
func (s AgreementState) CanTransition(next AgreementState) bool {
	for _, allowed := range agreementTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Agreement struct {
	ID string `json:"id"`

	OfferProperties  string `json:"offer_properties"`
	OfferConstraints string `json:"offer_constraints"`

	DemandProperties  string `json:"demand_properties"`
	DemandConstraints string `json:"demand_constraints"`

	ProviderID  uuid.UUID `json:"provider_id"`
	RequestorID uuid.UUID `json:"requestor_id"`

	State             AgreementState `json:"state"`
	CreationTimestamp int64          `json:"creation_timestamp"`
	ValidTo           int64          `json:"valid_to"`
	ApprovedTimestamp int64          `json:"approved_timestamp,omitempty"`

	ProposedSignature  string `json:"proposed_signature,omitempty"`
	ApprovedSignature  string `json:"approved_signature,omitempty"`
	CommittedSignature string `json:"committed_signature,omitempty"`
}

// Parties returns the provider and requestor identities, or
// ErrMissingIdentity when either side is absent.
func (a *Agreement) Parties() (provider, requestor uuid.UUID, err error) {
	if a.ProviderID == uuid.Nil || a.RequestorID == uuid.Nil {
		return uuid.Nil, uuid.Nil, ErrMissingIdentity
	}
	return a.ProviderID, a.RequestorID, nil
}

func (a *Agreement) GetDataKey() lexkey.LexKey {
	return lexkey.Encode(DATA, AGREEMENTS, a.ID)
}

// ─── Invoice / Debit note ──────────────────────────────────────────────────────

type DocumentStatus string

const (
	StatusIssued    DocumentStatus = "Issued"
	StatusReceived  DocumentStatus = "Received"
	StatusAccepted  DocumentStatus = "Accepted"
	StatusRejected  DocumentStatus = "Rejected"
	StatusSettled   DocumentStatus = "Settled"
	StatusCancelled DocumentStatus = "Cancelled"
)

var documentTransitions = map[DocumentStatus][]DocumentStatus{
	StatusIssued:   {StatusReceived, StatusCancelled},
	StatusReceived: {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted: {StatusSettled},
}

func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	for _, allowed := range documentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Invoice settles an agreement's total. Issuer and recipient are always
// populated from the agreement at issue time.
type Invoice struct {
	ID          string         `json:"id"`
	AgreementID string         `json:"agreement_id"`
	IssuerID    uuid.UUID      `json:"issuer_id"`
	RecipientID uuid.UUID      `json:"recipient_id"`
	Amount      string         `json:"amount"`
	DueDate     int64          `json:"due_date,omitempty"`
	Status      DocumentStatus `json:"status"`
	Timestamp   int64          `json:"timestamp"`
}

func (i *Invoice) GetDataKey() lexkey.LexKey {
	return lexkey.Encode(DATA, INVOICES, i.ID)
}

func (i *Invoice) GetIssuedKey() lexkey.LexKey {
	return lexkey.Encode(INVENTORY, INVOICES, ISSUED, i.IssuerID.String(), i.ID)
}

func (i *Invoice) GetReceivedKey() lexkey.LexKey {
	return lexkey.Encode(INVENTORY, INVOICES, RECEIVED, i.RecipientID.String(), i.ID)
}

// DebitNote bills incremental usage under an agreement while activity is
// still running.
type DebitNote struct {
	ID             string         `json:"id"`
	AgreementID    string         `json:"agreement_id"`
	ActivityID     string         `json:"activity_id,omitempty"`
	IssuerID       uuid.UUID      `json:"issuer_id"`
	RecipientID    uuid.UUID      `json:"recipient_id"`
	TotalAmountDue string         `json:"total_amount_due"`
	DueDate        int64          `json:"due_date,omitempty"`
	Status         DocumentStatus `json:"status"`
	Timestamp      int64          `json:"timestamp"`
}

func (d *DebitNote) GetDataKey() lexkey.LexKey {
	return lexkey.Encode(DATA, DEBITNOTES, d.ID)
}

func (d *DebitNote) GetIssuedKey() lexkey.LexKey {
	return lexkey.Encode(INVENTORY, DEBITNOTES, ISSUED, d.IssuerID.String(), d.ID)
}

func (d *DebitNote) GetReceivedKey() lexkey.LexKey {
	return lexkey.Encode(INVENTORY, DEBITNOTES, RECEIVED, d.RecipientID.String(), d.ID)
}
