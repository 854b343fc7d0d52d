package billing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"geo_gate/internal/dataType"
	"geo_gate/internal/store"
)

// Biller is the external subscription system that turns overage units into a
// usage charge on the shop's bill.
type Biller interface {
	Charge(ctx context.Context, shop string, plan dataType.PlanKind, units int64) error
}

// LogBiller records charges in the process log only.
type LogBiller struct {
	Logger *zap.Logger
}

func (b LogBiller) Charge(_ context.Context, shop string, plan dataType.PlanKind, units int64) error {
	if b.Logger != nil {
		b.Logger.Info("overage charge", zap.String("shop", shop), zap.String("plan", string(plan)), zap.Int64("units", units))
	}
	return nil
}

// Charger claims unbilled overage from the usage store and bills it. A claim
// whose charge fails is released so the next visit retries it.
type Charger struct {
	usage  store.UsageStore
	biller Biller
}

func NewCharger(usage store.UsageStore, biller Biller) *Charger {
	return &Charger{usage: usage, biller: biller}
}

// ChargeOverage returns the number of units billed. Free plans are never charged.
func (c *Charger) ChargeOverage(ctx context.Context, shop, month string, plan dataType.Plan) (int64, error) {
	if !plan.Kind.Paid() {
		return 0, nil
	}
	units, err := c.usage.ClaimOverage(ctx, shop, month, plan.VisitorLimit)
	if err != nil {
		return 0, err
	}
	if units == 0 {
		return 0, nil
	}
	if err := c.biller.Charge(ctx, shop, plan.Kind, units); err != nil {
		if relErr := c.usage.ReleaseOverage(ctx, shop, month, units); relErr != nil {
			return 0, fmt.Errorf("charge %d units: %w (release failed: %v)", units, err, relErr)
		}
		return 0, fmt.Errorf("charge %d units: %w", units, err)
	}
	return units, nil
}
