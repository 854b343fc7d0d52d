package billing

import (
	"context"
	"errors"
	"testing"

	"geo_gate/internal/dataType"
	"geo_gate/internal/store"
)

type recordingBiller struct {
	charged []int64
	fail    bool
}

func (b *recordingBiller) Charge(_ context.Context, _ string, _ dataType.PlanKind, units int64) error {
	if b.fail {
		return errors.New("billing api down")
	}
	b.charged = append(b.charged, units)
	return nil
}

func visits(t *testing.T, usage store.UsageStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := usage.Increment(context.Background(), "p.myshopify.com", "2026-10", dataType.FieldTotalVisitors); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
}

func TestChargeOverage(t *testing.T) {
	ctx := context.Background()
	usage := store.NewMemoryUsageStore(1)
	biller := &recordingBiller{}
	c := NewCharger(usage, biller)
	plan := dataType.Plan{Kind: dataType.PlanPremium, VisitorLimit: 10}

	visits(t, usage, 10)
	if n, err := c.ChargeOverage(ctx, "p.myshopify.com", "2026-10", plan); n != 0 || err != nil {
		t.Errorf("no overage at the limit, got %d %v", n, err)
	}

	visits(t, usage, 3)
	if n, _ := c.ChargeOverage(ctx, "p.myshopify.com", "2026-10", plan); n != 3 {
		t.Errorf("expected 3 units, got %d", n)
	}
	if n, _ := c.ChargeOverage(ctx, "p.myshopify.com", "2026-10", plan); n != 0 {
		t.Errorf("same snapshot must not be charged twice, got %d", n)
	}
	if len(biller.charged) != 1 {
		t.Errorf("expected one charge, got %v", biller.charged)
	}
}

func TestChargeOverage_FailureReleases(t *testing.T) {
	ctx := context.Background()
	usage := store.NewMemoryUsageStore(1)
	biller := &recordingBiller{fail: true}
	c := NewCharger(usage, biller)
	plan := dataType.Plan{Kind: dataType.PlanPlus, VisitorLimit: 1}

	visits(t, usage, 4)
	if _, err := c.ChargeOverage(ctx, "p.myshopify.com", "2026-10", plan); err == nil {
		t.Fatalf("expected billing error")
	}
	snap, _ := usage.Snapshot(ctx, "p.myshopify.com", "2026-10")
	if snap.ChargedVisitors != 0 {
		t.Errorf("failed charge must be released, charged=%d", snap.ChargedVisitors)
	}

	biller.fail = false
	if n, _ := c.ChargeOverage(ctx, "p.myshopify.com", "2026-10", plan); n != 3 {
		t.Errorf("expected retry to charge 3, got %d", n)
	}
}

func TestChargeOverage_FreePlan(t *testing.T) {
	usage := store.NewMemoryUsageStore(1)
	c := NewCharger(usage, &recordingBiller{})
	visits(t, usage, 50)
	if n, _ := c.ChargeOverage(context.Background(), "p.myshopify.com", "2026-10", dataType.Plan{Kind: dataType.PlanFree, VisitorLimit: 10}); n != 0 {
		t.Errorf("free plan must not be charged, got %d", n)
	}
}
