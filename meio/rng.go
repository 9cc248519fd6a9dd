package meio

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemDemand is the RNG subsystem for demand generation shared
	// across a whole run (e.g. fixed demand drawn once for an optimization).
	SubsystemDemand = "demand"
)

// SubsystemReplication returns the subsystem name for Monte-Carlo
// replication k. Each replication owns an independent stream, so
// replications may run in any order (or in parallel) without changing
// the drawn values.
func SubsystemReplication(k int) string {
	return fmt.Sprintf("replication_%d", k)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG streams per subsystem.
//
// Derivation formula: each subsystem's PCG is seeded with
// (masterSeed, masterSeed XOR fnv1a64(subsystemName)), so streams are
// order-independent: drawing from one subsystem never perturbs another.
//
// Thread-safety: NOT thread-safe. Derive all sources from a single
// goroutine before fanning out across replications.
type PartitionedRNG struct {
	key     SimulationKey
	sources map[string]*rand.PCG
	rands   map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:     key,
		sources: make(map[string]*rand.PCG),
		rands:   make(map[string]*rand.Rand),
	}
}

// SourceFor returns a deterministically-seeded source for the named
// subsystem. The same subsystem name always returns the same source
// (cached). Never returns nil.
func (p *PartitionedRNG) SourceFor(name string) rand.Source {
	if src, ok := p.sources[name]; ok {
		return src
	}
	derived := uint64(p.key) ^ fnv1a64(name)
	src := rand.NewPCG(uint64(p.key), derived)
	p.sources[name] = src
	return src
}

// ForSubsystem returns a *rand.Rand backed by the named subsystem's source.
// The Rand and any sampler built on SourceFor(name) share one stream.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.rands[name]; ok {
		return rng
	}
	rng := rand.New(p.SourceFor(name))
	p.rands[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
