package store

import (
	"context"

	"geo_gate/internal/dataType"
)

// MemoryUsageStore is the single-node usage store backed by a sharded UsageBook.
type MemoryUsageStore struct {
	book *dataType.UsageBook
}

func NewMemoryUsageStore(buckets int) *MemoryUsageStore {
	return &MemoryUsageStore{book: dataType.NewUsageBook(buckets)}
}

func (s *MemoryUsageStore) Increment(_ context.Context, shop, month string, field dataType.UsageField) (dataType.UsageCounter, error) {
	return s.book.Add(shop, month, field, 1), nil
}

func (s *MemoryUsageStore) Snapshot(_ context.Context, shop, month string) (dataType.UsageCounter, error) {
	return s.book.Query(shop, month), nil
}

func (s *MemoryUsageStore) ClaimOverage(_ context.Context, shop, month string, limit int64) (int64, error) {
	return s.book.ClaimOverage(shop, month, limit), nil
}

func (s *MemoryUsageStore) ReleaseOverage(_ context.Context, shop, month string, units int64) error {
	s.book.ReleaseOverage(shop, month, units)
	return nil
}

func (s *MemoryUsageStore) DeleteShop(_ context.Context, shop string) error {
	s.book.DeleteShop(shop)
	return nil
}

func (s *MemoryUsageStore) GC(_ context.Context, oldestMonth string) (int, error) {
	return s.book.GC(oldestMonth), nil
}

func (s *MemoryUsageStore) Close() error {
	return nil
}
