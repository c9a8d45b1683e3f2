// Package auction implements uniform-price clearing, Vickrey resolution
// and winner allocation for the sealed-bid token launch demos. The
// engine is purely functional over a snapshot of decrypted bids; round
// lifecycle transitions are driven by the caller through Round.
package auction

import (
	"sort"
	"time"
)

// Bid is one decrypted bid. BidderID travels in the clear alongside the
// envelope for indexing; price and quantity only ever exist inside the
// envelope until the dispatcher opens it. Timestamp is the original
// submission time and is load-bearing: it breaks ties between bids at
// equal price, first come first served.
type Bid struct {
	ID        string    `json:"id"`
	BidderID  string    `json:"bidderId"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// ClearingResult is the outcome of uniform-price clearing.
type ClearingResult struct {
	ClearingPrice         float64 `json:"clearingPrice"`
	TotalDemand           float64 `json:"totalDemand"`
	OversubscriptionRatio float64 `json:"oversubscriptionRatio"`
	IsOversubscribed      bool    `json:"isOversubscribed"`
}

// sortForAllocation orders bids price descending, ties broken by
// earliest original timestamp, then by ID for full determinism.
func sortForAllocation(bids []Bid) []Bid {
	sorted := make([]Bid, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Price != sorted[j].Price {
			return sorted[i].Price > sorted[j].Price
		}
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// ClearingPrice computes the uniform-price auction clearing price: bids
// are walked price descending accumulating quantity, and the clearing
// price is the price of the bid at which cumulative demand first reaches
// or exceeds totalSupply. If demand never reaches supply the clearing
// price is the lowest eligible bid price and all demand clears. Bids
// below minPrice are not eligible. TotalDemand is recomputed as the sum
// of quantities at or above the returned price, so it stays consistent
// with the price even when several bids share it.
func ClearingPrice(bids []Bid, totalSupply, minPrice float64) ClearingResult {
	eligible := make([]Bid, 0, len(bids))
	for _, b := range bids {
		if b.Price >= minPrice {
			eligible = append(eligible, b)
		}
	}

	if len(eligible) == 0 {
		return ClearingResult{ClearingPrice: minPrice}
	}

	sorted := sortForAllocation(eligible)

	clearingPrice := sorted[len(sorted)-1].Price
	cumulative := 0.0
	for _, b := range sorted {
		cumulative += b.Quantity
		if cumulative >= totalSupply {
			clearingPrice = b.Price
			break
		}
	}

	totalDemand := 0.0
	for _, b := range sorted {
		if b.Price >= clearingPrice {
			totalDemand += b.Quantity
		}
	}

	ratio := 0.0
	if totalSupply > 0 {
		ratio = totalDemand / totalSupply
	}

	return ClearingResult{
		ClearingPrice:         clearingPrice,
		TotalDemand:           totalDemand,
		OversubscriptionRatio: ratio,
		IsOversubscribed:      totalDemand > totalSupply,
	}
}

// VickreyResult is the outcome of a second-price auction.
type VickreyResult struct {
	WinnerID  string  `json:"winnerId"`
	BidAmount float64 `json:"bidAmount"`
	PayAmount float64 `json:"payAmount"`
}

// VickreyWinner resolves a sealed-bid second-price auction: the highest
// bid wins and pays the second-highest amount, or its own amount when it
// is the only bid. Ties resolve to the earlier bid.
func VickreyWinner(bids []Bid) VickreyResult {
	if len(bids) == 0 {
		return VickreyResult{}
	}

	sorted := sortForAllocation(bids)

	winner := sorted[0]
	payAmount := winner.Price
	if len(sorted) > 1 {
		payAmount = sorted[1].Price
	}

	return VickreyResult{
		WinnerID:  winner.BidderID,
		BidAmount: winner.Price,
		PayAmount: payAmount,
	}
}

// AllocationStatus classifies each bid's outcome in winner determination.
type AllocationStatus string

const (
	// StatusFilled marks a bid allocated its full requested quantity.
	StatusFilled AllocationStatus = "filled"
	// StatusPartiallyFilled marks a bid allocated part of its request
	// before supply ran out.
	StatusPartiallyFilled AllocationStatus = "partially_filled"
	// StatusNotFilled marks an eligible bid that arrived after supply was
	// exhausted.
	StatusNotFilled AllocationStatus = "not_filled"
	// StatusBelowClearingPrice marks a bid priced under the clearing price.
	StatusBelowClearingPrice AllocationStatus = "below_clearing_price"
)

// BidOutcome is one bid's allocation result.
type BidOutcome struct {
	Bid               Bid              `json:"bid"`
	AllocatedQuantity float64          `json:"allocatedQuantity"`
	Status            AllocationStatus `json:"status"`
}

// WinnersResult is the full allocation outcome of a round.
type WinnersResult struct {
	Winners        []BidOutcome `json:"winners"`
	Losers         []BidOutcome `json:"losers"`
	TotalAllocated float64      `json:"totalAllocated"`
	TotalRaised    float64      `json:"totalRaised"`
}

// DetermineWinners allocates totalSupply to bids priced at or above
// clearingPrice, highest price first, equal prices served in original
// submission order. Each served bid receives min(requested, remaining).
// Eligible bids reached after supply runs out lose with not_filled; bids
// under the clearing price always lose with below_clearing_price.
// TotalRaised sums allocatedQuantity times clearingPrice over winners
// only, so the aggregate allocation can never exceed totalSupply.
func DetermineWinners(bids []Bid, totalSupply, clearingPrice float64) WinnersResult {
	sorted := sortForAllocation(bids)

	result := WinnersResult{
		Winners: []BidOutcome{},
		Losers:  []BidOutcome{},
	}

	remaining := totalSupply
	for _, b := range sorted {
		if b.Price < clearingPrice {
			result.Losers = append(result.Losers, BidOutcome{Bid: b, Status: StatusBelowClearingPrice})
			continue
		}

		if remaining <= 0 {
			result.Losers = append(result.Losers, BidOutcome{Bid: b, Status: StatusNotFilled})
			continue
		}

		allocated := b.Quantity
		status := StatusFilled
		if allocated > remaining {
			allocated = remaining
			status = StatusPartiallyFilled
		}
		remaining -= allocated

		result.Winners = append(result.Winners, BidOutcome{
			Bid:               b,
			AllocatedQuantity: allocated,
			Status:            status,
		})
		result.TotalAllocated += allocated
		result.TotalRaised += allocated * clearingPrice
	}

	return result
}

// CurvePoint is one price point of the supply/demand chart.
type CurvePoint struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// CurveResult holds the demand and supply curves for charting.
type CurveResult struct {
	DemandCurve []CurvePoint `json:"demandCurve"`
	SupplyCurve []CurvePoint `json:"supplyCurve"`
}

// SupplyDemandCurve builds the cumulative demand curve at every distinct
// bid price plus the two boundary prices, with constant supply at each
// point. Demand at a price is the total quantity bid at or above it.
func SupplyDemandCurve(bids []Bid, totalSupply, minPrice, maxPrice float64) CurveResult {
	priceSet := map[float64]struct{}{
		minPrice: {},
		maxPrice: {},
	}
	for _, b := range bids {
		priceSet[b.Price] = struct{}{}
	}

	prices := make([]float64, 0, len(priceSet))
	for p := range priceSet {
		prices = append(prices, p)
	}
	sort.Float64s(prices)

	result := CurveResult{
		DemandCurve: make([]CurvePoint, 0, len(prices)),
		SupplyCurve: make([]CurvePoint, 0, len(prices)),
	}
	for _, p := range prices {
		demand := 0.0
		for _, b := range bids {
			if b.Price >= p {
				demand += b.Quantity
			}
		}
		result.DemandCurve = append(result.DemandCurve, CurvePoint{Price: p, Amount: demand})
		result.SupplyCurve = append(result.SupplyCurve, CurvePoint{Price: p, Amount: totalSupply})
	}

	return result
}

// PriceRange is the lowest and highest bid price of a round.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RoundStats is the live statistics panel of a round.
type RoundStats struct {
	BidCount     int        `json:"bidCount"`
	AveragePrice float64    `json:"averagePrice"`
	PriceRange   PriceRange `json:"priceRange"`
	TotalDemand  float64    `json:"totalDemand"`
	TotalValue   float64    `json:"totalValue"`
}

// RoundStatistics aggregates a bid snapshot. An empty snapshot returns
// the zero result rather than an error, since a round with no bids yet
// is a valid state the statistics panel must render.
func RoundStatistics(bids []Bid) RoundStats {
	if len(bids) == 0 {
		return RoundStats{}
	}

	stats := RoundStats{
		BidCount: len(bids),
		PriceRange: PriceRange{
			Min: bids[0].Price,
			Max: bids[0].Price,
		},
	}

	priceSum := 0.0
	for _, b := range bids {
		priceSum += b.Price
		stats.TotalDemand += b.Quantity
		stats.TotalValue += b.Price * b.Quantity
		if b.Price < stats.PriceRange.Min {
			stats.PriceRange.Min = b.Price
		}
		if b.Price > stats.PriceRange.Max {
			stats.PriceRange.Max = b.Price
		}
	}
	stats.AveragePrice = priceSum / float64(len(bids))

	return stats
}
