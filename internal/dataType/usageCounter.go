package dataType

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

type usageElement struct {
	shop            string
	month           string
	totalVisitors   int64
	redirected      int64
	blocked         int64
	chargedVisitors int64
}

func (e *usageElement) add(field UsageField, value int64) {
	switch field {
	case FieldTotalVisitors:
		e.totalVisitors += value
	case FieldRedirected:
		e.redirected += value
	case FieldBlocked:
		e.blocked += value
	}
}

func (e *usageElement) snapshot() UsageCounter {
	return UsageCounter{
		Shop:            e.shop,
		Month:           e.month,
		TotalVisitors:   e.totalVisitors,
		Redirected:      e.redirected,
		Blocked:         e.blocked,
		ChargedVisitors: e.chargedVisitors,
	}
}

type UsageBucket struct {
	mu       sync.RWMutex
	counters map[string]*usageElement
}

func NewUsageBucket() *UsageBucket {
	return &UsageBucket{
		counters: make(map[string]*usageElement),
	}
}

// UsageBook keeps per (shop, month) usage counters sharded over buckets.
type UsageBook struct {
	buckets     []*UsageBucket
	bucketCount uint64
}

func NewUsageBook(bucketCount int) *UsageBook {
	if bucketCount <= 0 {
		bucketCount = 64
	}
	ub := &UsageBook{
		buckets:     make([]*UsageBucket, bucketCount),
		bucketCount: uint64(bucketCount),
	}
	for i := 0; i < bucketCount; i++ {
		ub.buckets[i] = NewUsageBucket()
	}
	return ub
}

func usageKey(shop, month string) string {
	return shop + "|" + month
}

// buckets are chosen by shop only, so every month of a shop lives in one bucket
func (ub *UsageBook) getBucket(shop string) *UsageBucket {
	h := xxhash.Sum64String(shop)
	return ub.buckets[h%ub.bucketCount]
}

func (ub *UsageBook) Add(shop, month string, field UsageField, value int64) UsageCounter {
	bucket := ub.getBucket(shop)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	key := usageKey(shop, month)
	counter, exists := bucket.counters[key]
	if !exists {
		counter = &usageElement{shop: shop, month: month}
		bucket.counters[key] = counter
	}
	counter.add(field, value)
	return counter.snapshot()
}

func (ub *UsageBook) Query(shop, month string) UsageCounter {
	bucket := ub.getBucket(shop)
	bucket.mu.RLock()
	defer bucket.mu.RUnlock()
	if counter, exists := bucket.counters[usageKey(shop, month)]; exists {
		return counter.snapshot()
	}
	return UsageCounter{Shop: shop, Month: month}
}

// Overage is the number of visitors above limit that have not been charged.
func Overage(total, limit, charged int64) int64 {
	if over := total - limit - charged; over > 0 {
		return over
	}
	return 0
}

// ClaimOverage computes the unbilled overage above limit and marks it as charged
// in the same critical section. A second claim on unchanged counts returns 0.
func (ub *UsageBook) ClaimOverage(shop, month string, limit int64) int64 {
	bucket := ub.getBucket(shop)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	counter, exists := bucket.counters[usageKey(shop, month)]
	if !exists {
		return 0
	}
	overage := Overage(counter.totalVisitors, limit, counter.chargedVisitors)
	if overage == 0 {
		return 0
	}
	counter.chargedVisitors += overage
	return overage
}

// ReleaseOverage gives back a claim whose charge failed.
func (ub *UsageBook) ReleaseOverage(shop, month string, units int64) {
	bucket := ub.getBucket(shop)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	if counter, exists := bucket.counters[usageKey(shop, month)]; exists {
		counter.chargedVisitors -= units
		if counter.chargedVisitors < 0 {
			counter.chargedVisitors = 0
		}
	}
}

func (ub *UsageBook) DeleteShop(shop string) {
	bucket := ub.getBucket(shop)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	for key, counter := range bucket.counters {
		if counter.shop == shop {
			delete(bucket.counters, key)
		}
	}
}

// GC drops every counter of a month before oldestMonth ("YYYY-MM" sorts lexically).
func (ub *UsageBook) GC(oldestMonth string) int {
	removed := 0
	for _, bucket := range ub.buckets {
		bucket.mu.Lock()
		for key, counter := range bucket.counters {
			if counter.month < oldestMonth {
				delete(bucket.counters, key)
				removed++
			}
		}
		bucket.mu.Unlock()
	}
	return removed
}
