package meio

import (
	"fmt"
	"math"
)

// PolicyKind selects the replenishment rule applied at one item.
type PolicyKind string

const (
	// PolicyBaseStock orders up to BaseStock every period.
	PolicyBaseStock PolicyKind = "base_stock"
	// PolicySS orders up to BaseStock whenever the inventory position
	// falls below ReorderPoint.
	PolicySS PolicyKind = "s_S"
	// PolicyQR orders a fixed OrderQuantity whenever the inventory
	// position falls to ReorderPoint or below.
	PolicyQR PolicyKind = "Q_R"
)

// Policy is a tagged replenishment policy: one kind plus the parameters
// that kind consumes. A single simulation loop dispatches on Kind through
// OrderQty, keeping the engine policy-agnostic.
type Policy struct {
	Kind PolicyKind `json:"kind" yaml:"kind"`
	// BaseStock is the order-up-to level S (base_stock and s_S).
	BaseStock float64 `json:"base_stock" yaml:"base_stock"`
	// ReorderPoint is s for s_S and R for Q_R.
	ReorderPoint float64 `json:"reorder_point" yaml:"reorder_point"`
	// OrderQuantity is the fixed lot Q for Q_R.
	OrderQuantity float64 `json:"order_quantity" yaml:"order_quantity"`
	// FixedCost is charged once per period in which an order is placed.
	FixedCost float64 `json:"fixed_cost" yaml:"fixed_cost"`
}

// BaseStockPolicy is shorthand for an order-up-to policy at level s.
func BaseStockPolicy(s float64) Policy {
	return Policy{Kind: PolicyBaseStock, BaseStock: s}
}

// Validate rejects parameter combinations the simulator cannot run.
func (p Policy) Validate() error {
	if math.IsNaN(p.BaseStock) || math.IsInf(p.BaseStock, 0) ||
		math.IsNaN(p.ReorderPoint) || math.IsInf(p.ReorderPoint, 0) ||
		math.IsNaN(p.OrderQuantity) || math.IsInf(p.OrderQuantity, 0) {
		return fmt.Errorf("%w: policy has non-finite parameters", ErrSimulationFailure)
	}
	switch p.Kind {
	case PolicyBaseStock:
		if p.BaseStock < 0 {
			return fmt.Errorf("%w: base stock level %.4f < 0", ErrValidation, p.BaseStock)
		}
	case PolicySS:
		if p.BaseStock < p.ReorderPoint {
			return fmt.Errorf("%w: (s,S) policy needs S >= s, got s=%.4f S=%.4f",
				ErrValidation, p.ReorderPoint, p.BaseStock)
		}
	case PolicyQR:
		if p.OrderQuantity <= 0 {
			return fmt.Errorf("%w: (Q,R) policy needs Q > 0, got %.4f", ErrValidation, p.OrderQuantity)
		}
	default:
		return fmt.Errorf("%w: unknown policy kind %q", ErrValidation, p.Kind)
	}
	return nil
}

// OrderQty returns the quantity to order given the current inventory
// position, and whether an order is placed at all.
func (p Policy) OrderQty(position float64) (float64, bool) {
	switch p.Kind {
	case PolicyBaseStock:
		if q := p.BaseStock - position; q > 0 {
			return q, true
		}
	case PolicySS:
		if position < p.ReorderPoint {
			if q := p.BaseStock - position; q > 0 {
				return q, true
			}
		}
	case PolicyQR:
		if position <= p.ReorderPoint {
			return p.OrderQuantity, true
		}
	}
	return 0, false
}
