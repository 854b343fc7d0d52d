package check

import "geo_gate/internal/dataType"

type UsageSnapshot struct {
	TotalVisitors   int64
	ChargedVisitors int64
}

type GateResult struct {
	Suspended       bool  `json:"suspended"`
	OverageVisitors int64 `json:"overageVisitors"`
}

// CheckUsage applies the plan limit to a usage snapshot. Free plans stop
// geolocation features at the limit; paid plans keep running and report the
// visitors above the limit that have not been charged yet.
func CheckUsage(usage UsageSnapshot, plan dataType.Plan) GateResult {
	if !plan.Kind.Paid() {
		return GateResult{Suspended: usage.TotalVisitors >= plan.VisitorLimit}
	}
	return GateResult{OverageVisitors: dataType.Overage(usage.TotalVisitors, plan.VisitorLimit, usage.ChargedVisitors)}
}

func SnapshotOf(c dataType.UsageCounter) UsageSnapshot {
	return UsageSnapshot{TotalVisitors: c.TotalVisitors, ChargedVisitors: c.ChargedVisitors}
}
