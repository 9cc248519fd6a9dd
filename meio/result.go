package meio

import (
	"github.com/google/uuid"
)

// Status tags a report as a success or a structured error.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ResultMeta heads every report emitted on stdout.
type ResultMeta struct {
	RunID   string `json:"run_id"`
	Status  Status `json:"status"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

func newMeta() ResultMeta {
	return ResultMeta{RunID: uuid.NewString(), Status: StatusSuccess}
}

// ErrorResult wraps an error into the report envelope, classifying it by
// sentinel so callers can branch on kind without parsing messages.
func ErrorResult(err error) ResultMeta {
	return ResultMeta{
		RunID:   uuid.NewString(),
		Status:  StatusError,
		Kind:    KindOf(err),
		Message: err.Error(),
	}
}

// GSTReport is the JSON shape of an exact solve.
type GSTReport struct {
	ResultMeta
	GuaranteedLeadTimes   map[string]int     `json:"guaranteed_lead_times"`
	NetReplenishmentTimes map[string]int     `json:"net_replenishment_times"`
	SafetyStockLevels     map[string]float64 `json:"safety_stock_levels"`
	TotalCost             float64            `json:"total_cost"`
}

// NewGSTReport maps a solution back onto item names.
func NewGSTReport(net *Network, sol *GSTSolution) *GSTReport {
	r := &GSTReport{
		ResultMeta:            newMeta(),
		GuaranteedLeadTimes:   make(map[string]int, net.Len()),
		NetReplenishmentTimes: make(map[string]int, net.Len()),
		SafetyStockLevels:     make(map[string]float64, net.Len()),
		TotalCost:             sol.TotalCost,
	}
	for i := 0; i < net.Len(); i++ {
		name := net.Name(i)
		r.GuaranteedLeadTimes[name] = sol.ServiceTimes[i]
		r.NetReplenishmentTimes[name] = sol.NetReplenishmentTimes[i]
		r.SafetyStockLevels[name] = sol.SafetyStocks[i]
	}
	return r
}

// TabuReport is the JSON shape of a tabu-search run.
type TabuReport struct {
	ResultMeta
	BestSolution      map[string]int     `json:"best_solution"`
	SafetyStockLevels map[string]float64 `json:"safety_stock_levels"`
	BestCost          float64            `json:"best_cost"`
	CostHistory       []float64          `json:"cost_history"`
	Iterations        int                `json:"iterations"`
}

// NewTabuReport maps a tabu solution back onto item names.
func NewTabuReport(net *Network, sol *TabuSolution) *TabuReport {
	r := &TabuReport{
		ResultMeta:        newMeta(),
		BestSolution:      make(map[string]int, net.Len()),
		SafetyStockLevels: make(map[string]float64, net.Len()),
		BestCost:          sol.BestCost,
		CostHistory:       sol.CostHistory,
		Iterations:        sol.Iterations,
	}
	for i := 0; i < net.Len(); i++ {
		name := net.Name(i)
		r.BestSolution[name] = sol.BestCoverage[i]
		r.SafetyStockLevels[name] = sol.SafetyStocks[i]
	}
	return r
}

// SimulationReport is the JSON shape of a simulation run.
type SimulationReport struct {
	ResultMeta
	AverageCost  float64              `json:"average_cost"`
	ServiceLevel float64              `json:"service_level"`
	StockoutRate float64              `json:"stockout_rate"`
	OnHand       map[string][]float64 `json:"on_hand,omitempty"`
}

// NewSimulationReport extracts the aggregate statistics plus the first
// replication's on-hand trajectories.
func NewSimulationReport(net *Network, res *SimulationResult) *SimulationReport {
	r := &SimulationReport{
		ResultMeta:   newMeta(),
		AverageCost:  res.AverageCost,
		ServiceLevel: res.ServiceLevel,
		StockoutRate: res.StockoutRate,
	}
	if res.Trajectories != nil {
		r.OnHand = make(map[string][]float64, net.Len())
		for i := 0; i < net.Len(); i++ {
			r.OnHand[net.Name(i)] = res.Trajectories.OnHand[i]
		}
	}
	return r
}

// ConvergenceInfo summarizes how an optimization run ended.
type ConvergenceInfo struct {
	Converged         bool    `json:"converged"`
	FinalGradientNorm float64 `json:"final_gradient_norm"`
	Iterations        int     `json:"iterations"`
	Message           string  `json:"message,omitempty"`
}

// OptimizeReport is the JSON shape of an optimization run.
type OptimizeReport struct {
	ResultMeta
	OptimalBaseStockLevels map[string]float64 `json:"optimal_base_stock_levels"`
	LocalBaseStockLevels   map[string]float64 `json:"local_base_stock_levels"`
	BestCost               float64            `json:"best_cost"`
	Convergence            ConvergenceInfo    `json:"convergence"`
	History                []IterationRecord  `json:"history,omitempty"`
}

// NewOptimizeReport maps an optimizer result back onto item names. A run
// that hit the iteration cap is still reported as a success, with a
// convergence warning in the message field.
func NewOptimizeReport(net *Network, res *OptimizerResult) *OptimizeReport {
	r := &OptimizeReport{
		ResultMeta:             newMeta(),
		OptimalBaseStockLevels: make(map[string]float64, net.Len()),
		LocalBaseStockLevels:   make(map[string]float64, net.Len()),
		BestCost:               res.BestCost,
		Convergence: ConvergenceInfo{
			Converged:         res.Converged,
			FinalGradientNorm: res.FinalGradientNorm,
			Iterations:        res.Iterations,
		},
		History: res.History,
	}
	if !res.Converged {
		r.Convergence.Message = "iteration cap reached before the tolerance was met"
	}
	for i := 0; i < net.Len(); i++ {
		name := net.Name(i)
		r.OptimalBaseStockLevels[name] = res.BestLevels[i]
		r.LocalBaseStockLevels[name] = res.LocalLevels[i]
	}
	return r
}

// LRFinderReport is the JSON shape of a learning-rate sweep.
type LRFinderReport struct {
	ResultMeta
	LearningRates []float64 `json:"learning_rates"`
	Costs         []float64 `json:"costs"`
	SmoothedCosts []float64 `json:"smoothed_costs"`
	SuggestedLR   float64   `json:"suggested_lr"`
	Diverged      bool      `json:"diverged"`
}

// NewLRFinderReport wraps a sweep result.
func NewLRFinderReport(res *LRFinderResult) *LRFinderReport {
	return &LRFinderReport{
		ResultMeta:    newMeta(),
		LearningRates: res.LearningRates,
		Costs:         res.Costs,
		SmoothedCosts: res.SmoothedCosts,
		SuggestedLR:   res.SuggestedLR,
		Diverged:      res.Diverged,
	}
}
