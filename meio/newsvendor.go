package meio

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// CriticalRatio is the newsvendor service target b/(b+h).
func CriticalRatio(backorderCost, holdingCost float64) (float64, error) {
	if backorderCost < 0 || holdingCost < 0 || backorderCost+holdingCost == 0 {
		return 0, fmt.Errorf("%w: costs must be non-negative and not both zero", ErrValidation)
	}
	return backorderCost / (backorderCost + holdingCost), nil
}

// SafetyFactor is the standard normal quantile of a service level in (0, 1).
func SafetyFactor(serviceLevel float64) (float64, error) {
	if serviceLevel <= 0 || serviceLevel >= 1 {
		return 0, fmt.Errorf("%w: service level must be in (0, 1)", ErrValidation)
	}
	return distuv.UnitNormal.Quantile(serviceLevel), nil
}

// BaseStockEstimate is the closed-form newsvendor approximation for a single
// stage under normal demand.
type BaseStockEstimate struct {
	BaseStock    float64 `json:"base_stock"`
	SafetyStock  float64 `json:"safety_stock"`
	ServiceLevel float64 `json:"service_level"`
	ExpectedCost float64 `json:"expected_cost"`
}

// ApproximateBaseStock sizes an order-up-to level for one item facing normal
// demand over its lead time plus one review period, at the critical-ratio
// service level. The expected cost is the per-period holding plus backorder
// cost at that level.
func ApproximateBaseStock(mu, sigma float64, leadTime int, backorderCost, holdingCost float64) (*BaseStockEstimate, error) {
	if mu < 0 || sigma < 0 || leadTime < 0 {
		return nil, fmt.Errorf("%w: demand moments and lead time must be non-negative", ErrValidation)
	}
	cr, err := CriticalRatio(backorderCost, holdingCost)
	if err != nil {
		return nil, err
	}
	if cr <= 0 || cr >= 1 {
		return nil, fmt.Errorf("%w: critical ratio %.4f admits no finite level", ErrValidation, cr)
	}
	z := distuv.UnitNormal.Quantile(cr)
	cover := math.Sqrt(float64(leadTime + 1))
	safety := z * sigma * cover
	level := mu*float64(leadTime+1) + safety
	if level < 0 {
		level = 0
	}
	// At the optimum the expected one-period cost reduces to
	// (h+b) * sigma_cover * phi(z).
	phi := distuv.UnitNormal.Prob(z)
	return &BaseStockEstimate{
		BaseStock:    level,
		SafetyStock:  safety,
		ServiceLevel: cr,
		ExpectedCost: (holdingCost + backorderCost) * sigma * cover * phi,
	}, nil
}

// EOQResult is an economic-order-quantity answer: the lot size, the orders
// placed per period of demand d, and the total relevant cost per period.
type EOQResult struct {
	Quantity       float64 `json:"quantity"`
	OrdersPerCycle float64 `json:"orders_per_cycle"`
	TotalCost      float64 `json:"total_cost"`
	// UnitCost is the purchase price the quantity was costed at, set only
	// by the discount variants.
	UnitCost float64 `json:"unit_cost,omitempty"`
}

// EOQ computes the economic order quantity for fixed ordering cost k, demand
// rate d and holding rate h. A positive backorder cost b switches to the
// planned-backorder variant, which enlarges the lot by sqrt((h+b)/b).
func EOQ(k, d, h, b float64) (*EOQResult, error) {
	if k <= 0 || d <= 0 || h <= 0 || b < 0 {
		return nil, fmt.Errorf("%w: EOQ needs k, d, h > 0 and b >= 0", ErrValidation)
	}
	q := math.Sqrt(2 * k * d / h)
	tc := math.Sqrt(2 * k * d * h)
	if b > 0 {
		q *= math.Sqrt((h + b) / b)
		tc *= math.Sqrt(b / (h + b))
	}
	return &EOQResult{Quantity: q, OrdersPerCycle: d / q, TotalCost: tc}, nil
}

// DiscountTier is a quantity break: ordering at least Threshold units buys
// at UnitCost.
type DiscountTier struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	UnitCost  float64 `json:"unit_cost" yaml:"unit_cost"`
}

func sortTiers(tiers []DiscountTier) ([]DiscountTier, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: at least one discount tier is required", ErrValidation)
	}
	out := make([]DiscountTier, len(tiers))
	copy(out, tiers)
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	if out[0].Threshold != 0 {
		return nil, fmt.Errorf("%w: the first tier must start at quantity 0", ErrValidation)
	}
	for i, tr := range out {
		if tr.UnitCost <= 0 {
			return nil, fmt.Errorf("%w: tier %d has unit cost %.4f", ErrValidation, i, tr.UnitCost)
		}
	}
	return out, nil
}

// EOQAllUnitsDiscount prices every unit at the tier the lot qualifies for.
// holdingRate is the holding cost per period as a fraction of unit cost.
func EOQAllUnitsDiscount(k, d, holdingRate float64, tiers []DiscountTier) (*EOQResult, error) {
	if k <= 0 || d <= 0 || holdingRate <= 0 {
		return nil, fmt.Errorf("%w: EOQ needs k, d, holding rate > 0", ErrValidation)
	}
	ts, err := sortTiers(tiers)
	if err != nil {
		return nil, err
	}
	var best *EOQResult
	for j, tr := range ts {
		h := holdingRate * tr.UnitCost
		q := math.Sqrt(2 * k * d / h)
		if q < tr.Threshold {
			q = tr.Threshold
		}
		if j+1 < len(ts) && q >= ts[j+1].Threshold {
			continue // the unconstrained optimum already buys the next tier
		}
		tc := k*d/q + h*q/2 + d*tr.UnitCost
		if best == nil || tc < best.TotalCost {
			best = &EOQResult{Quantity: q, OrdersPerCycle: d / q, TotalCost: tc, UnitCost: tr.UnitCost}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no feasible discount tier", ErrValidation)
	}
	return best, nil
}

// DiscountComparison holds both discount evaluations of one tier schedule
// and names the cheaper scheme.
type DiscountComparison struct {
	AllUnits    *EOQResult `json:"all_units"`
	Incremental *EOQResult `json:"incremental"`
	Cheaper     string     `json:"cheaper"`
}

// CompareDiscountSchemes evaluates a tier schedule under both all-units and
// incremental pricing, for suppliers quoting either form.
func CompareDiscountSchemes(k, d, holdingRate float64, tiers []DiscountTier) (*DiscountComparison, error) {
	all, err := EOQAllUnitsDiscount(k, d, holdingRate, tiers)
	if err != nil {
		return nil, err
	}
	inc, err := EOQIncrementalDiscount(k, d, holdingRate, tiers)
	if err != nil {
		return nil, err
	}
	cmp := &DiscountComparison{AllUnits: all, Incremental: inc, Cheaper: "all_units"}
	if inc.TotalCost < all.TotalCost {
		cmp.Cheaper = "incremental"
	}
	return cmp, nil
}

// EOQIncrementalDiscount prices only the units beyond each threshold at that
// tier's cost, so the acquisition cost of a lot is piecewise linear.
func EOQIncrementalDiscount(k, d, holdingRate float64, tiers []DiscountTier) (*EOQResult, error) {
	if k <= 0 || d <= 0 || holdingRate <= 0 {
		return nil, fmt.Errorf("%w: EOQ needs k, d, holding rate > 0", ErrValidation)
	}
	ts, err := sortTiers(tiers)
	if err != nil {
		return nil, err
	}
	var best *EOQResult
	// r accumulates the acquisition cost of the units below each tier.
	r := 0.0
	for j, tr := range ts {
		if j > 0 {
			prev := ts[j-1]
			r += prev.UnitCost * (tr.Threshold - prev.Threshold)
		}
		h := holdingRate * tr.UnitCost
		q := math.Sqrt(2 * d * (k + r - tr.UnitCost*tr.Threshold) / h)
		if math.IsNaN(q) || q < tr.Threshold {
			continue
		}
		if j+1 < len(ts) && q >= ts[j+1].Threshold {
			continue
		}
		unitAvg := (r + tr.UnitCost*(q-tr.Threshold)) / q
		tc := k*d/q + holdingRate*unitAvg*q/2 + d*unitAvg
		if best == nil || tc < best.TotalCost {
			best = &EOQResult{Quantity: q, OrdersPerCycle: d / q, TotalCost: tc, UnitCost: tr.UnitCost}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no feasible discount tier", ErrValidation)
	}
	return best, nil
}
