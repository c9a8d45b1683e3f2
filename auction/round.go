package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fhe16/confidential-compute-backend/interfaces"
)

// RoundState is the lifecycle state of one auction round.
type RoundState string

const (
	// StateCollecting accepts sealed bids.
	StateCollecting RoundState = "collecting"
	// StateClearing has frozen the bid set for clearing computations.
	StateClearing RoundState = "clearing"
	// StateSettled is terminal; allocation results are final.
	StateSettled RoundState = "settled"
)

// ErrRoundClosed is returned when a bid arrives outside the collecting
// state.
var ErrRoundClosed = errors.New("round is not collecting bids")

// SealedBid pairs a public bidder identity with the opaque envelope
// holding price and quantity. The identity stays in the clear to support
// indexing; everything sensitive lives inside the envelope.
type SealedBid struct {
	BidderID    string              `json:"bidderId"`
	Envelope    interfaces.Envelope `json:"envelope"`
	SubmittedAt time.Time           `json:"submittedAt"`
}

// Round collects sealed bids for one auction. Transitions are driven by
// the caller (a timer reaching zero, an operator action); the round
// itself performs no clearing. Collecting -> Clearing -> Settled, no
// transitions backwards.
type Round struct {
	ID          string
	TotalSupply float64
	MinPrice    float64
	MaxPrice    float64

	mu         sync.RWMutex
	state      RoundState
	sealedBids []SealedBid
	now        func() time.Time
}

// NewRound creates a round in the collecting state.
func NewRound(id string, totalSupply, minPrice, maxPrice float64) *Round {
	return &Round{
		ID:          id,
		TotalSupply: totalSupply,
		MinPrice:    minPrice,
		MaxPrice:    maxPrice,
		state:       StateCollecting,
		now:         time.Now,
	}
}

// State returns the current lifecycle state.
func (r *Round) State() RoundState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// SubmitBid records a sealed bid. Fails with ErrRoundClosed outside the
// collecting state.
func (r *Round) SubmitBid(bidderID string, env interfaces.Envelope) (SealedBid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateCollecting {
		return SealedBid{}, fmt.Errorf("%w: round %s is %s", ErrRoundClosed, r.ID, r.state)
	}

	sealed := SealedBid{
		BidderID:    bidderID,
		Envelope:    env,
		SubmittedAt: r.now().UTC(),
	}
	r.sealedBids = append(r.sealedBids, sealed)
	return sealed, nil
}

// SealedBids returns a snapshot of the collected bids.
func (r *Round) SealedBids() []SealedBid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SealedBid, len(r.sealedBids))
	copy(out, r.sealedBids)
	return out
}

// Envelopes returns just the opaque envelopes, in submission order, for
// handing to the dispatcher.
func (r *Round) Envelopes() []interfaces.Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]interfaces.Envelope, len(r.sealedBids))
	for i, sb := range r.sealedBids {
		out[i] = sb.Envelope
	}
	return out
}

// BeginClearing freezes the bid set. Valid only from collecting.
func (r *Round) BeginClearing() error {
	return r.transition(StateCollecting, StateClearing)
}

// Settle finalizes the round. Valid only from clearing.
func (r *Round) Settle() error {
	return r.transition(StateClearing, StateSettled)
}

func (r *Round) transition(from, to RoundState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != from {
		return fmt.Errorf("invalid round transition: %s -> %s from state %s", from, to, r.state)
	}
	r.state = to
	return nil
}
