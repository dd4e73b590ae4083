package model

import (
	"math"

	"github.com/openfluke/unravel/multitensor"
)

// Capacity schedule constants. Each key starts with a budget proportional to
// its element count, large enough that early training is pure reconstruction,
// and the budget halves every capacityHalfLife steps until the KL penalty
// takes over.
const (
	initialCapacityPerElement = 1.0 // nats
	capacityHalfLife          = 100 // steps
)

// capacitySchedule decays each key's information budget exponentially. The
// KL penalty for a key only applies above its current budget.
type capacitySchedule struct {
	base     map[multitensor.Key]float64
	halfLife float64
}

func newCapacitySchedule(d multitensor.Dims, channels int) *capacitySchedule {
	s := &capacitySchedule{
		base:     make(map[multitensor.Key]float64, 1<<multitensor.NumAxes),
		halfLife: capacityHalfLife,
	}
	for _, k := range multitensor.AllKeys() {
		s.base[k] = initialCapacityPerElement * float64(d.Numel(k)*channels)
	}
	return s
}

// at returns key k's budget in nats at the given step.
func (s *capacitySchedule) at(k multitensor.Key, step int) float64 {
	return s.base[k] * math.Exp2(-float64(step)/s.halfLife)
}

// snapshot returns every key's budget at the given step.
func (s *capacitySchedule) snapshot(step int) map[multitensor.Key]float64 {
	out := make(map[multitensor.Key]float64, len(s.base))
	for k := range s.base {
		out[k] = s.at(k, step)
	}
	return out
}
