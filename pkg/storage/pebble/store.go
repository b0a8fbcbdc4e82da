package pebble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/fgrzl/enumerators"
	"github.com/fgrzl/gridkit/internal/cache"
	"github.com/fgrzl/gridkit/internal/codec"
	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/storage"
	"github.com/fgrzl/lexkey"
	"github.com/fgrzl/timestamp"
	"github.com/google/uuid"
)

type PebbleStore struct {
	db        *pebble.DB
	cache     *cache.ExpiringCache
	closeOnce sync.Once
}

func NewPebbleStore(path string, cache *cache.ExpiringCache) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{
		db:    db,
		cache: cache,
	}, nil
}

func (s *PebbleStore) Close() {
	s.closeOnce.Do(func() {
		s.db.Close()
		s.cache.Close()
	})
}

// ─── Agreements ────────────────────────────────────────────────────────────────

func (s *PebbleStore) SaveAgreement(_ context.Context, agreement *api.Agreement) error {
	value, err := codec.EncodeSnappy(agreement)
	if err != nil {
		return err
	}
	if err := s.db.Set(agreement.GetDataKey(), value, pebble.Sync); err != nil {
		return err
	}
	s.cache.Set(agreementCacheKey(agreement.ID), agreement)
	return nil
}

func (s *PebbleStore) GetAgreement(_ context.Context, id string) (*api.Agreement, error) {
	cacheKey := agreementCacheKey(id)
	if cached, ok := s.cache.Get(cacheKey); ok {
		if agreement, ok := cached.(*api.Agreement); ok {
			return agreement, nil
		}
	}

	agreement := &api.Agreement{}
	if err := s.get(lexkey.Encode(api.DATA, api.AGREEMENTS, id), agreement); err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, agreement)
	return agreement, nil
}

func (s *PebbleStore) UpdateAgreementState(ctx context.Context, id string, state api.AgreementState) (*api.Agreement, error) {
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

func (s *PebbleStore) CreateInvoice(_ context.Context, invoice *api.Invoice) error {
	value, err := codec.EncodeSnappy(invoice)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(invoice.GetDataKey(), value, pebble.NoSync); err != nil {
		return err
	}
	if err := batch.Set(invoice.GetIssuedKey(), []byte(invoice.ID), pebble.NoSync); err != nil {
		return err
	}
	if err := batch.Set(invoice.GetReceivedKey(), []byte(invoice.ID), pebble.NoSync); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetInvoice(_ context.Context, id string) (*api.Invoice, error) {
	invoice := &api.Invoice{}
	if err := s.get(lexkey.Encode(api.DATA, api.INVOICES, id), invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *PebbleStore) UpdateInvoiceStatus(ctx context.Context, id string, status api.DocumentStatus) (*api.Invoice, error) {
	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !invoice.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: invoice %s: %s -> %s", storage.ErrInvalidTransition, id, invoice.Status, status)
	}

	invoice.Status = status
	value, err := codec.EncodeSnappy(invoice)
	if err != nil {
		return nil, err
	}
	if err := s.db.Set(invoice.GetDataKey(), value, pebble.Sync); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *PebbleStore) GetIssuedInvoices(ctx context.Context, issuer uuid.UUID) enumerators.Enumerator[*api.Invoice] {
	lower := lexkey.EncodeFirst(api.INVENTORY, api.INVOICES, api.ISSUED, issuer.String())
	upper := lexkey.EncodeLast(api.INVENTORY, api.INVOICES, api.ISSUED, issuer.String())
	return enumerateDocuments(ctx, s, lower, upper, s.GetInvoice)
}

func (s *PebbleStore) GetReceivedInvoices(ctx context.Context, recipient uuid.UUID) enumerators.Enumerator[*api.Invoice] {
	lower := lexkey.EncodeFirst(api.INVENTORY, api.INVOICES, api.RECEIVED, recipient.String())
	upper := lexkey.EncodeLast(api.INVENTORY, api.INVOICES, api.RECEIVED, recipient.String())
	return enumerateDocuments(ctx, s, lower, upper, s.GetInvoice)
}

// ─── Debit notes ───────────────────────────────────────────────────────────────

func (s *PebbleStore) CreateDebitNote(_ context.Context, debitNote *api.DebitNote) error {
	value, err := codec.EncodeSnappy(debitNote)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(debitNote.GetDataKey(), value, pebble.NoSync); err != nil {
		return err
	}
	if err := batch.Set(debitNote.GetIssuedKey(), []byte(debitNote.ID), pebble.NoSync); err != nil {
		return err
	}
	if err := batch.Set(debitNote.GetReceivedKey(), []byte(debitNote.ID), pebble.NoSync); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetDebitNote(_ context.Context, id string) (*api.DebitNote, error) {
	debitNote := &api.DebitNote{}
	if err := s.get(lexkey.Encode(api.DATA, api.DEBITNOTES, id), debitNote); err != nil {
		return nil, err
	}
	return debitNote, nil
}

func (s *PebbleStore) UpdateDebitNoteStatus(ctx context.Context, id string, status api.DocumentStatus) (*api.DebitNote, error) {
	debitNote, err := s.GetDebitNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if !debitNote.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: debit note %s: %s -> %s", storage.ErrInvalidTransition, id, debitNote.Status, status)
	}

	debitNote.Status = status
	value, err := codec.EncodeSnappy(debitNote)
	if err != nil {
		return nil, err
	}
	if err := s.db.Set(debitNote.GetDataKey(), value, pebble.Sync); err != nil {
		return nil, err
	}
	return debitNote, nil
}

func (s *PebbleStore) GetIssuedDebitNotes(ctx context.Context, issuer uuid.UUID) enumerators.Enumerator[*api.DebitNote] {
	lower := lexkey.EncodeFirst(api.INVENTORY, api.DEBITNOTES, api.ISSUED, issuer.String())
	upper := lexkey.EncodeLast(api.INVENTORY, api.DEBITNOTES, api.ISSUED, issuer.String())
	return enumerateDocuments(ctx, s, lower, upper, s.GetDebitNote)
}

func (s *PebbleStore) GetReceivedDebitNotes(ctx context.Context, recipient uuid.UUID) enumerators.Enumerator[*api.DebitNote] {
	lower := lexkey.EncodeFirst(api.INVENTORY, api.DEBITNOTES, api.RECEIVED, recipient.String())
	upper := lexkey.EncodeLast(api.INVENTORY, api.DEBITNOTES, api.RECEIVED, recipient.String())
	return enumerateDocuments(ctx, s, lower, upper, s.GetDebitNote)
}

// ─── Internals ─────────────────────────────────────────────────────────────────

func (s *PebbleStore) get(key lexkey.LexKey, v any) error {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return storage.ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return codec.DecodeSnappy(value, v)
}

// enumerateDocuments walks an inventory range collecting document ids, then
// loads each document. Per-party inventories are small, so results are
// materialized before enumeration.
func enumerateDocuments[T any](ctx context.Context, s *PebbleStore, lower, upper lexkey.LexKey, load func(context.Context, string) (T, error)) enumerators.Enumerator[T] {
	iter, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return enumerators.Error[T](err)
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, string(iter.Value()))
	}
	if err := iter.Error(); err != nil {
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

func agreementCacheKey(id string) string {
	return "agreement:" + id
}
