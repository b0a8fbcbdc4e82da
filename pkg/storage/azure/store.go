package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/fgrzl/enumerators"
	"github.com/fgrzl/gridkit/internal/cache"
	"github.com/fgrzl/gridkit/internal/codec"
	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/storage"
	"github.com/fgrzl/lexkey"
	"github.com/fgrzl/timestamp"
	"github.com/google/uuid"
)

const (
	CacheTTL             time.Duration = time.Second * 97
	CacheCleanupInterval time.Duration = time.Second * 59
)

// Error Constants
const (
	ErrTableCreation   = "failed to create table"
	ErrUnmarshalEntity = "failed to unmarshal entity"
	ErrDecodeDocument  = "failed to decode document"
)

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Value        []byte `json:"Value,omitempty"`
}

func NewAzureStore(ctx context.Context, client *aztables.Client, cache *cache.ExpiringCache) (*AzureStore, error) {
	store := &AzureStore{
		client: client,
		cache:  cache,
	}

	if err := store.createTableIfNotExists(ctx); err != nil {
		return nil, fmt.Errorf("create table if not exists failed: %w", err)
	}
	return store, nil
}

// AzureStore keeps documents in a single table. Data rows partition by
// document kind; inventory rows partition by party so issued/received
// listings are single-partition queries.
type AzureStore struct {
	client    *aztables.Client
	cache     *cache.ExpiringCache
	closeOnce sync.Once
}

func (s *AzureStore) Close() {
	s.closeOnce.Do(func() {
		s.cache.Close()
	})
}

// ─── Agreements ────────────────────────────────────────────────────────────────

func (s *AzureStore) SaveAgreement(ctx context.Context, agreement *api.Agreement) error {
	if err := s.upsertDocument(ctx, agreementsPartition(), agreement.ID, agreement); err != nil {
		return err
	}
	s.cache.Set(agreementCacheKey(agreement.ID), agreement)
	return nil
}

func (s *AzureStore) GetAgreement(ctx context.Context, id string) (*api.Agreement, error) {
	cacheKey := agreementCacheKey(id)
	if cached, ok := s.cache.Get(cacheKey); ok {
		if agreement, ok := cached.(*api.Agreement); ok {
			return agreement, nil
		}
	}

	agreement := &api.Agreement{}
	if err := s.getDocument(ctx, agreementsPartition(), id, agreement); err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, agreement)
	return agreement, nil
}

func (s *AzureStore) UpdateAgreementState(ctx context.Context, id string, state api.AgreementState) (*api.Agreement, error) {
	agreement, err := s.GetAgreement(ctx, id)
	if err != nil {
		return nil, err
	}
	if !agreement.State.CanTransition(state) {
		return nil, fmt.Errorf("%w: agreement %s: %s -> %s", storage.ErrInvalidTransition, id, agreement.State, state)
	}

	updated := *agreement
	updated.State = state
	if state == api.AgreementApproved {
		updated.ApprovedTimestamp = timestamp.GetTimestamp()
	}
	if err := s.SaveAgreement(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ─── Invoices ──────────────────────────────────────────────────────────────────

func (s *AzureStore) CreateInvoice(ctx context.Context, invoice *api.Invoice) error {
	if err := s.upsertDocument(ctx, invoicesPartition(), invoice.ID, invoice); err != nil {
		return err
	}
	if err := s.upsertInventory(ctx, issuedPartition(api.INVOICES, invoice.IssuerID), invoice.ID); err != nil {
		return err
	}
	return s.upsertInventory(ctx, receivedPartition(api.INVOICES, invoice.RecipientID), invoice.ID)
}

func (s *AzureStore) GetInvoice(ctx context.Context, id string) (*api.Invoice, error) {
	invoice := &api.Invoice{}
	if err := s.getDocument(ctx, invoicesPartition(), id, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *AzureStore) UpdateInvoiceStatus(ctx context.Context, id string, status api.DocumentStatus) (*api.Invoice, error) {
	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !invoice.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: invoice %s: %s -> %s", storage.ErrInvalidTransition, id, invoice.Status, status)
	}

	invoice.Status = status
	if err := s.upsertDocument(ctx, invoicesPartition(), id, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *AzureStore) GetIssuedInvoices(ctx context.Context, issuer uuid.UUID) enumerators.Enumerator[*api.Invoice] {
	return enumerateDocuments(ctx, s, issuedPartition(api.INVOICES, issuer), s.GetInvoice)
}

func (s *AzureStore) GetReceivedInvoices(ctx context.Context, recipient uuid.UUID) enumerators.Enumerator[*api.Invoice] {
	return enumerateDocuments(ctx, s, receivedPartition(api.INVOICES, recipient), s.GetInvoice)
}

// ─── Debit notes ───────────────────────────────────────────────────────────────

func (s *AzureStore) CreateDebitNote(ctx context.Context, debitNote *api.DebitNote) error {
	if err := s.upsertDocument(ctx, debitNotesPartition(), debitNote.ID, debitNote); err != nil {
		return err
	}
	if err := s.upsertInventory(ctx, issuedPartition(api.DEBITNOTES, debitNote.IssuerID), debitNote.ID); err != nil {
		return err
	}
	return s.upsertInventory(ctx, receivedPartition(api.DEBITNOTES, debitNote.RecipientID), debitNote.ID)
}

func (s *AzureStore) GetDebitNote(ctx context.Context, id string) (*api.DebitNote, error) {
	debitNote := &api.DebitNote{}
	if err := s.getDocument(ctx, debitNotesPartition(), id, debitNote); err != nil {
		return nil, err
	}
	return debitNote, nil
}

func (s *AzureStore) UpdateDebitNoteStatus(ctx context.Context, id string, status api.DocumentStatus) (*api.DebitNote, error) {
	debitNote, err := s.GetDebitNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if !debitNote.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: debit note %s: %s -> %s", storage.ErrInvalidTransition, id, debitNote.Status, status)
	}

	debitNote.Status = status
	if err := s.upsertDocument(ctx, debitNotesPartition(), id, debitNote); err != nil {
		return nil, err
	}
	return debitNote, nil
}

func (s *AzureStore) GetIssuedDebitNotes(ctx context.Context, issuer uuid.UUID) enumerators.Enumerator[*api.DebitNote] {
	return enumerateDocuments(ctx, s, issuedPartition(api.DEBITNOTES, issuer), s.GetDebitNote)
}

func (s *AzureStore) GetReceivedDebitNotes(ctx context.Context, recipient uuid.UUID) enumerators.Enumerator[*api.DebitNote] {
	return enumerateDocuments(ctx, s, receivedPartition(api.DEBITNOTES, recipient), s.GetDebitNote)
}

// ─── Internals ─────────────────────────────────────────────────────────────────

func (s *AzureStore) upsertDocument(ctx context.Context, partition, id string, v any) error {
	value, err := codec.EncodeSnappy(v)
	if err != nil {
		return err
	}

	_, err = s.client.UpsertEntity(ctx, mustMarshal(entity{
		PartitionKey: partition,
		RowKey:       id,
		Value:        value,
	}), &aztables.UpsertEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	return err
}

func (s *AzureStore) upsertInventory(ctx context.Context, partition, id string) error {
	_, err := s.client.UpsertEntity(ctx, mustMarshal(entity{
		PartitionKey: partition,
		RowKey:       id,
	}), &aztables.UpsertEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	return err
}

func (s *AzureStore) getDocument(ctx context.Context, partition, id string, v any) error {
	resp, err := s.client.GetEntity(ctx, partition, id, nil)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return err
	}

	var e entity
	if err := json.Unmarshal(resp.Value, &e); err != nil {
		return fmt.Errorf("%s: %w", ErrUnmarshalEntity, err)
	}
	if err := codec.DecodeSnappy(e.Value, v); err != nil {
		return fmt.Errorf("%s: %w", ErrDecodeDocument, err)
	}
	return nil
}

func (s *AzureStore) listIDs(ctx context.Context, partition string) ([]string, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", partition)
	pager := s.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{
		Filter: &filter,
		Format: ptr(aztables.MetadataFormatNone),
	})

	var ids []string
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var e entity
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, fmt.Errorf("%s: %w", ErrUnmarshalEntity, err)
			}
			ids = append(ids, e.RowKey)
		}
	}
	return ids, nil
}

func (s *AzureStore) createTableIfNotExists(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &aztables.CreateTableOptions{})
	if err == nil {
		return nil
	}

	var responseErr *azcore.ResponseError
	if errors.As(err, &responseErr) && responseErr.ErrorCode == string(aztables.TableAlreadyExists) {
		return nil
	}

	return fmt.Errorf("%s: %w", ErrTableCreation, err)
}

func enumerateDocuments[T any](ctx context.Context, s *AzureStore, partition string, load func(context.Context, string) (T, error)) enumerators.Enumerator[T] {
	ids, err := s.listIDs(ctx, partition)
	if err != nil {
		return enumerators.Error[T](err)
	}

	documents := make([]T, 0, len(ids))
	for _, id := range ids {
		document, err := load(ctx, id)
		if err != nil {
			return enumerators.Error[T](err)
		}
		documents = append(documents, document)
	}
	return enumerators.Slice(documents)
}

// ─── Helpers ───────────────────────────────────────────────────────────────────

func agreementsPartition() string {
	return lexkey.Encode(api.DATA, api.AGREEMENTS).ToHexString()
}

func invoicesPartition() string {
	return lexkey.Encode(api.DATA, api.INVOICES).ToHexString()
}

func debitNotesPartition() string {
	return lexkey.Encode(api.DATA, api.DEBITNOTES).ToHexString()
}

func issuedPartition(kind string, party uuid.UUID) string {
	return lexkey.Encode(api.INVENTORY, kind, api.ISSUED, party.String()).ToHexString()
}

func receivedPartition(kind string, party uuid.UUID) string {
	return lexkey.Encode(api.INVENTORY, kind, api.RECEIVED, party.String()).ToHexString()
}

func agreementCacheKey(id string) string {
	return "agreement:" + id
}

func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ResourceNotFound")
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return data
}

func ptr[T any](v T) *T {
	return &v
}
