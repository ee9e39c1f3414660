// Package cases generates the prize values sealed into a new game's cases.
package cases

import (
	"github.com/mcoot/dealgame/internal/dependencies/random"
	"github.com/mcoot/dealgame/internal/model"
)

// Hard bounds on any single case value, in cents
const (
	ValueCeilingCents int64 = 100000 // $1000
	ValueFloorCents   int64 = 100    // $1
)

// Generator produces case values from an entry fee
type Generator struct {
	random random.Random
}

// New creates a new Generator
func New(random random.Random) *Generator {
	return &Generator{random: random}
}

// Bounds returns the minimum and maximum case value for an entry fee.
// A tenth of the fee is rounded up so no value falls below it.
func Bounds(entryFeeCents int64) (minValue, maxValue int64) {
	maxValue = min(entryFeeCents*10, ValueCeilingCents)
	minValue = max((entryFeeCents+9)/10, ValueFloorCents)
	return minValue, maxValue
}

// Generate returns model.CaseCount shuffled values for the entry fee.
// One value is always the jackpot (the maximum); the rest are drawn from
// four bands anchored to the fee.
func (g *Generator) Generate(entryFeeCents int64) []int64 {
	minValue, maxValue := Bounds(entryFeeCents)
	fee := entryFeeCents

	ranges := [][2]int64{
		{minValue, fee / 2},
		{fee / 2, fee * 3 / 2},
		{fee * 3 / 2, fee * 3},
		{fee * 3, fee * 6},
	}

	values := make([]int64, 0, model.CaseCount)
	values = append(values, maxValue)
	for _, r := range ranges {
		v := g.between(r[0], r[1])
		values = append(values, clamp(v, minValue, maxValue))
	}

	g.shuffle(values)
	return values
}

// between returns a uniform integer in [lo, hi]
func (g *Generator) between(lo, hi int64) int64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + int64(g.random.Intn(int(hi-lo+1)))
}

// shuffle is an in-place Fisher-Yates shuffle
func (g *Generator) shuffle(values []int64) {
	for i := len(values) - 1; i > 0; i-- {
		j := g.random.Intn(i + 1)
		values[i], values[j] = values[j], values[i]
	}
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
