// Package banker computes the banker's buyout offers.
package banker

import (
	"math"

	"github.com/mcoot/dealgame/internal/dependencies/random"
)

// Offer factor bounds applied to the mean of the remaining values
const (
	MinOfferFactor = 0.6
	MaxOfferFactor = 0.8
)

// Banker computes buyout offers
type Banker struct {
	random random.Random
}

// New creates a new Banker
func New(random random.Random) *Banker {
	return &Banker{random: random}
}

// Offer returns the banker's offer for the values still in play.
// The offer is the mean scaled by a random factor in [0.6, 0.8], rounded.
func (b *Banker) Offer(remaining []int64) int64 {
	if len(remaining) == 0 {
		return 0
	}

	var sum float64
	for _, v := range remaining {
		sum += float64(v)
	}
	mean := sum / float64(len(remaining))

	factor := MinOfferFactor + b.random.Float64()*(MaxOfferFactor-MinOfferFactor)
	offer := int64(math.Round(mean * factor))
	if offer < 0 {
		return 0
	}
	return offer
}

// OfferRange returns the inclusive bounds an offer for remaining can fall in
func OfferRange(remaining []int64) (lo, hi int64) {
	if len(remaining) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range remaining {
		sum += float64(v)
	}
	mean := sum / float64(len(remaining))
	return int64(math.Round(mean * MinOfferFactor)), int64(math.Round(mean * MaxOfferFactor))
}
