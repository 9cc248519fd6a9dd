package meio

import (
	"github.com/sirupsen/logrus"
)

// Metrics accumulates the cost and service statistics of one replication.
type Metrics struct {
	HoldingCost   float64
	BackorderCost float64
	FixedCost     float64

	// External demand bookkeeping for service statistics.
	DemandUnits     float64
	FilledUnits     float64
	DemandPeriods   int
	StockoutPeriods int

	// OnHand[i][t] and Backlog[i][t] are per-item trajectories over
	// t = 0..nPeriods (index 0 is the initial state).
	OnHand  [][]float64
	Backlog [][]float64
}

// NewMetrics allocates trajectory storage for nItems over nPeriods.
func NewMetrics(nItems, nPeriods int) *Metrics {
	m := &Metrics{
		OnHand:  make([][]float64, nItems),
		Backlog: make([][]float64, nItems),
	}
	for i := 0; i < nItems; i++ {
		m.OnHand[i] = make([]float64, 0, nPeriods+1)
		m.Backlog[i] = make([]float64, 0, nPeriods+1)
	}
	return m
}

// TotalCost is the sum of all cost components over the replication.
func (m *Metrics) TotalCost() float64 {
	return m.HoldingCost + m.BackorderCost + m.FixedCost
}

// AverageCost is the time-averaged cost per period.
func (m *Metrics) AverageCost(nPeriods int) float64 {
	if nPeriods <= 0 {
		return 0
	}
	return m.TotalCost() / float64(nPeriods)
}

// ServiceLevel is the fraction of external demand units filled immediately
// from stock. Returns 1 when no demand occurred.
func (m *Metrics) ServiceLevel() float64 {
	if m.DemandUnits <= 0 {
		return 1
	}
	return m.FilledUnits / m.DemandUnits
}

// StockoutRate is the fraction of demand periods with any unfilled demand.
func (m *Metrics) StockoutRate() float64 {
	if m.DemandPeriods == 0 {
		return 0
	}
	return float64(m.StockoutPeriods) / float64(m.DemandPeriods)
}

// Print logs a one-replication summary.
func (m *Metrics) Print(nPeriods int) {
	logrus.Infof("holding cost       : %.2f", m.HoldingCost)
	logrus.Infof("backorder cost     : %.2f", m.BackorderCost)
	logrus.Infof("fixed order cost   : %.2f", m.FixedCost)
	logrus.Infof("average cost/period: %.2f", m.AverageCost(nPeriods))
	logrus.Infof("service level      : %.4f", m.ServiceLevel())
	logrus.Infof("stockout rate      : %.4f", m.StockoutRate())
}
