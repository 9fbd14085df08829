package synth

import (
	"hash/fnv"
	"math/rand/v2"
)

// PartitionedRNG hands out deterministically-seeded random sources per named
// subsystem, so adding a sampler to one part of the engine never perturbs the
// draws of another. Two engines built from the same seed and configuration
// produce identical routing streams.
//
// Derivation: PCG seeded with (masterSeed, fnv1a64(subsystemName)).
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a master seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// SourceFor returns a fresh deterministic source for the named subsystem.
func (p *PartitionedRNG) SourceFor(name string) rand.Source {
	return rand.NewPCG(uint64(p.seed), fnv1a64(name))
}

// ForSubsystem returns the cached RNG for the named subsystem, creating it on
// first use. The same name always returns the same *rand.Rand instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(p.SourceFor(name))
	p.subsystems[name] = rng
	return rng
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
