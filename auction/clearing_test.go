package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func launchBids() []Bid {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []Bid{
		{ID: "b1", BidderID: "alice", Price: 10, Quantity: 40, Timestamp: base},
		{ID: "b2", BidderID: "bob", Price: 8, Quantity: 30, Timestamp: base.Add(time.Second)},
		{ID: "b3", BidderID: "carol", Price: 6, Quantity: 50, Timestamp: base.Add(2 * time.Second)},
	}
}

func TestClearingPrice_Oversubscribed(t *testing.T) {
	result := ClearingPrice(launchBids(), 60, 1)

	assert.Equal(t, 8.0, result.ClearingPrice, "Cumulative demand reaches supply at the 8 bid")
	assert.Equal(t, 70.0, result.TotalDemand, "Demand counts quantities at or above the clearing price")
	assert.True(t, result.IsOversubscribed, "Demand 70 against supply 60 is oversubscribed")
	assert.InDelta(t, 70.0/60.0, result.OversubscriptionRatio, 1e-9)
}

func TestClearingPrice_Undersubscribed(t *testing.T) {
	result := ClearingPrice(launchBids(), 200, 1)

	assert.Equal(t, 6.0, result.ClearingPrice, "When demand never reaches supply the lowest eligible price clears")
	assert.Equal(t, 120.0, result.TotalDemand, "All demand clears")
	assert.False(t, result.IsOversubscribed)
}

func TestClearingPrice_MinPriceFilter(t *testing.T) {
	result := ClearingPrice(launchBids(), 60, 7)

	assert.Equal(t, 8.0, result.ClearingPrice)
	assert.Equal(t, 70.0, result.TotalDemand, "The bid below the reserve is not eligible")
}

func TestClearingPrice_NoEligibleBids(t *testing.T) {
	result := ClearingPrice(nil, 60, 5)
	assert.Equal(t, 5.0, result.ClearingPrice, "No bids clears at the reserve price")
	assert.Zero(t, result.TotalDemand)
	assert.False(t, result.IsOversubscribed)
}

func TestVickreyWinner(t *testing.T) {
	base := time.Now()
	bids := []Bid{
		{ID: "v1", BidderID: "alice", Price: 100, Timestamp: base},
		{ID: "v2", BidderID: "bob", Price: 80, Timestamp: base},
		{ID: "v3", BidderID: "carol", Price: 60, Timestamp: base},
	}

	result := VickreyWinner(bids)
	assert.Equal(t, "alice", result.WinnerID, "Highest bid wins")
	assert.Equal(t, 100.0, result.BidAmount)
	assert.Equal(t, 80.0, result.PayAmount, "Winner pays the second-highest bid")
}

func TestVickreyWinner_SingleBid(t *testing.T) {
	result := VickreyWinner([]Bid{{ID: "v1", BidderID: "alice", Price: 100}})
	assert.Equal(t, "alice", result.WinnerID)
	assert.Equal(t, 100.0, result.PayAmount, "A lone bidder pays their own bid")
}

func TestVickreyWinner_TieEarlierWins(t *testing.T) {
	base := time.Now()
	bids := []Bid{
		{ID: "v1", BidderID: "late", Price: 100, Timestamp: base.Add(time.Minute)},
		{ID: "v2", BidderID: "early", Price: 100, Timestamp: base},
	}

	result := VickreyWinner(bids)
	assert.Equal(t, "early", result.WinnerID, "Ties resolve to the earlier bid")
	assert.Equal(t, 100.0, result.PayAmount)
}

func TestVickreyWinner_Empty(t *testing.T) {
	assert.Zero(t, VickreyWinner(nil), "No bids produce the zero result")
}

func TestDetermineWinners_Allocation(t *testing.T) {
	result := DetermineWinners(launchBids(), 60, 8)

	require.Len(t, result.Winners, 2)
	require.Len(t, result.Losers, 1)

	assert.Equal(t, "alice", result.Winners[0].Bid.BidderID)
	assert.Equal(t, 40.0, result.Winners[0].AllocatedQuantity)
	assert.Equal(t, StatusFilled, result.Winners[0].Status)

	assert.Equal(t, "bob", result.Winners[1].Bid.BidderID)
	assert.Equal(t, 20.0, result.Winners[1].AllocatedQuantity, "Remaining supply partially fills the second bid")
	assert.Equal(t, StatusPartiallyFilled, result.Winners[1].Status)

	assert.Equal(t, "carol", result.Losers[0].Bid.BidderID)
	assert.Equal(t, StatusBelowClearingPrice, result.Losers[0].Status)

	assert.Equal(t, 60.0, result.TotalAllocated, "Allocation never exceeds supply")
	assert.Equal(t, 480.0, result.TotalRaised, "Winners pay the clearing price on allocated quantity")
}

func TestDetermineWinners_TimestampTieBreak(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	bids := []Bid{
		{ID: "b1", BidderID: "late", Price: 10, Quantity: 5, Timestamp: base.Add(50 * time.Millisecond)},
		{ID: "b2", BidderID: "early", Price: 10, Quantity: 5, Timestamp: base},
	}

	result := DetermineWinners(bids, 5, 10)
	require.Len(t, result.Winners, 1)
	require.Len(t, result.Losers, 1)

	assert.Equal(t, "early", result.Winners[0].Bid.BidderID, "Equal prices are served first come first served")
	assert.Equal(t, StatusNotFilled, result.Losers[0].Status, "The later bid loses to exhausted supply, not price")
}

func TestSupplyDemandCurve(t *testing.T) {
	result := SupplyDemandCurve(launchBids(), 60, 1, 12)

	// Distinct bid prices 6, 8, 10 plus boundaries 1 and 12.
	require.Len(t, result.DemandCurve, 5)
	require.Len(t, result.SupplyCurve, 5)

	assert.Equal(t, 1.0, result.DemandCurve[0].Price, "Curve points are sorted by price ascending")
	assert.Equal(t, 120.0, result.DemandCurve[0].Amount, "At the floor every bid is demand")
	assert.Equal(t, 6.0, result.DemandCurve[1].Price)
	assert.Equal(t, 120.0, result.DemandCurve[1].Amount)
	assert.Equal(t, 8.0, result.DemandCurve[2].Price)
	assert.Equal(t, 70.0, result.DemandCurve[2].Amount)
	assert.Equal(t, 10.0, result.DemandCurve[3].Price)
	assert.Equal(t, 40.0, result.DemandCurve[3].Amount)
	assert.Equal(t, 12.0, result.DemandCurve[4].Price)
	assert.Equal(t, 0.0, result.DemandCurve[4].Amount, "Above every bid there is no demand")

	for _, point := range result.SupplyCurve {
		assert.Equal(t, 60.0, point.Amount, "Supply is constant at every price point")
	}
}

func TestRoundStatistics(t *testing.T) {
	stats := RoundStatistics(launchBids())

	assert.Equal(t, 3, stats.BidCount)
	assert.InDelta(t, 8.0, stats.AveragePrice, 1e-9, "Average of 10, 8 and 6")
	assert.Equal(t, 6.0, stats.PriceRange.Min)
	assert.Equal(t, 10.0, stats.PriceRange.Max)
	assert.Equal(t, 120.0, stats.TotalDemand)
	assert.Equal(t, 10.0*40+8*30+6*50, stats.TotalValue)
}

func TestRoundStatistics_Empty(t *testing.T) {
	assert.Zero(t, RoundStatistics(nil), "An empty round reports zero statistics, not an error")
}
