// Package dispatch routes a computation request over a set of sealed
// envelopes to the matching engine. The dispatcher owns the trust
// boundary of the simulated enclave: envelopes are opened only inside
// Run, aggregate operations pass the k-anonymity gate before the first
// decryption, and results leave sealed under the same session key.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fhe16/confidential-compute-backend/aggregate"
	"github.com/fhe16/confidential-compute-backend/auction"
	"github.com/fhe16/confidential-compute-backend/interfaces"
	"github.com/fhe16/confidential-compute-backend/policy"
)

// Params carries the public, per-request inputs of a computation. Which
// fields matter depends on the operation; unused fields are ignored.
type Params struct {
	// Auction parameters.
	TotalSupply   float64 `json:"totalSupply,omitempty"`
	MinPrice      float64 `json:"minPrice,omitempty"`
	MaxPrice      float64 `json:"maxPrice,omitempty"`
	ClearingPrice float64 `json:"clearingPrice,omitempty"`

	// Aggregate parameters.
	Field         string  `json:"field,omitempty"`
	TargetValue   float64 `json:"targetValue,omitempty"`
	MinCohortSize int     `json:"minCohortSize,omitempty"`

	// Policy parameters.
	RequestedAmount float64   `json:"requestedAmount,omitempty"`
	TokenType       string    `json:"tokenType,omitempty"`
	Now             time.Time `json:"now,omitempty"`
}

func (p Params) k() int {
	if p.MinCohortSize <= 0 {
		return aggregate.DefaultMinCohortSize
	}
	return p.MinCohortSize
}

func (p Params) now() time.Time {
	if p.Now.IsZero() {
		return time.Now().UTC()
	}
	return p.Now
}

// Metadata describes a completed computation without revealing its
// inputs.
type Metadata struct {
	Operation        string    `json:"operation"`
	ParticipantCount int       `json:"participantCount"`
	ComputedAt       time.Time `json:"computedAt"`
}

// Result is the tagged union of all operation outcomes. Exactly one of
// the pointer fields is set, matching the operation that ran. Plain is
// the JSON encoding of that field; Sealed is the same bytes sealed
// under the session key.
type Result struct {
	Clearing     *auction.ClearingResult       `json:"clearing,omitempty"`
	Statistics   *auction.RoundStats           `json:"statistics,omitempty"`
	Winners      *auction.WinnersResult        `json:"winners,omitempty"`
	Curve        *auction.CurveResult          `json:"curve,omitempty"`
	Average      *aggregate.AverageResult      `json:"average,omitempty"`
	Median       *aggregate.MedianResult       `json:"median,omitempty"`
	Ranking      *aggregate.RankingResult      `json:"ranking,omitempty"`
	Distribution *aggregate.DistributionResult `json:"distribution,omitempty"`
	Comparison   *aggregate.ComparisonResult   `json:"comparison,omitempty"`
	Limit        *policy.LimitDecision         `json:"limit,omitempty"`
	KYC          *policy.Decision              `json:"kyc,omitempty"`
	Eligibility  *policy.Decision              `json:"eligibility,omitempty"`

	Plain    json.RawMessage     `json:"-"`
	Sealed   interfaces.Envelope `json:"-"`
	Metadata Metadata            `json:"metadata"`
}

// Dispatcher executes computations over envelopes sealed with its
// codec. One dispatcher serves one session.
type Dispatcher struct {
	codec interfaces.EnvelopeCodec
}

// NewDispatcher builds a dispatcher around a session codec.
func NewDispatcher(codec interfaces.EnvelopeCodec) *Dispatcher {
	return &Dispatcher{codec: codec}
}

// Run executes op over the sealed envelopes. Aggregate operations are
// rejected with ErrKAnonymityViolation before any envelope is opened if
// the cohort is smaller than k. Decryption is all or nothing: a single
// envelope that fails to open aborts the whole computation with
// ErrDecryptionFailed and no partial result.
func (d *Dispatcher) Run(ctx context.Context, envelopes []interfaces.Envelope, op interfaces.OperationName, params Params) (*Result, error) {
	if op.IsAggregate() && len(envelopes) < params.k() {
		return nil, fmt.Errorf("%w: need at least %d records, have %d", interfaces.ErrKAnonymityViolation, params.k(), len(envelopes))
	}

	records, err := d.openAll(ctx, envelopes)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Metadata: Metadata{
			Operation:        op.String(),
			ParticipantCount: len(records),
			ComputedAt:       params.now(),
		},
	}

	var payload any
	switch op {
	case interfaces.OpCalculateClearingPrice:
		bids, err := bidsFromRecords(records)
		if err != nil {
			return nil, err
		}
		r := auction.ClearingPrice(bids, params.TotalSupply, params.MinPrice)
		result.Clearing, payload = &r, r

	case interfaces.OpRoundStatistics:
		bids, err := bidsFromRecords(records)
		if err != nil {
			return nil, err
		}
		r := auction.RoundStatistics(bids)
		result.Statistics, payload = &r, r

	case interfaces.OpDetermineWinners:
		bids, err := bidsFromRecords(records)
		if err != nil {
			return nil, err
		}
		clearing := params.ClearingPrice
		if clearing == 0 {
			clearing = auction.ClearingPrice(bids, params.TotalSupply, params.MinPrice).ClearingPrice
		}
		r := auction.DetermineWinners(bids, params.TotalSupply, clearing)
		result.Winners, payload = &r, r

	case interfaces.OpSupplyDemandCurve:
		bids, err := bidsFromRecords(records)
		if err != nil {
			return nil, err
		}
		r := auction.SupplyDemandCurve(bids, params.TotalSupply, params.MinPrice, params.MaxPrice)
		result.Curve, payload = &r, r

	case interfaces.OpAverage:
		values, err := fieldValues(records, params.Field)
		if err != nil {
			return nil, err
		}
		r := aggregate.Average(values)
		result.Average, payload = &r, r

	case interfaces.OpMedian:
		values, err := fieldValues(records, params.Field)
		if err != nil {
			return nil, err
		}
		r := aggregate.Median(values)
		result.Median, payload = &r, r

	case interfaces.OpRanking:
		values, err := fieldValues(records, params.Field)
		if err != nil {
			return nil, err
		}
		r := aggregate.Ranking(values, params.TargetValue)
		result.Ranking, payload = &r, r

	case interfaces.OpDistribution:
		values, err := fieldValues(records, params.Field)
		if err != nil {
			return nil, err
		}
		r := aggregate.Distribution(values)
		result.Distribution, payload = &r, r

	case interfaces.OpComparison:
		values, err := fieldValues(records, params.Field)
		if err != nil {
			return nil, err
		}
		r := aggregate.Comparison(values, params.TargetValue)
		result.Comparison, payload = &r, r

	case interfaces.OpCheckLimit:
		profile, err := singleProfile(records)
		if err != nil {
			r := policy.LimitDecision{Allowed: false, Reason: err.Error()}
			result.Limit, payload = &r, r
			break
		}
		r := policy.CheckLimit(profile, params.RequestedAmount)
		result.Limit, payload = &r, r

	case interfaces.OpCheckKYC:
		profile, err := singleProfile(records)
		if err != nil {
			r := policy.Deny(err)
			result.KYC, payload = &r, r
			break
		}
		r := policy.CheckKYC(profile, params.now())
		result.KYC, payload = &r, r

	case interfaces.OpCheckEligibility:
		profile, err := singleProfile(records)
		if err != nil {
			r := policy.Deny(err)
			result.Eligibility, payload = &r, r
			break
		}
		r := policy.CheckEligibility(profile, params.TokenType, params.RequestedAmount)
		result.Eligibility, payload = &r, r

	default:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedOperation, op)
	}

	result.Plain, err = json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("could not encode result: %w", err)
	}
	result.Sealed, err = d.codec.Seal(result.Plain)
	if err != nil {
		return nil, fmt.Errorf("could not seal result: %w", err)
	}

	return result, nil
}

// openAll decrypts every envelope or none. The context is checked
// between envelopes so a cancelled request stops decrypting promptly.
func (d *Dispatcher) openAll(ctx context.Context, envelopes []interfaces.Envelope) ([]interfaces.Record, error) {
	records := make([]interfaces.Record, 0, len(envelopes))
	for i, env := range envelopes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		plaintext, err := d.codec.Open(env)
		if err != nil {
			return nil, fmt.Errorf("%w: envelope %d: %v", interfaces.ErrDecryptionFailed, i, err)
		}

		rec, err := interfaces.UnmarshalRecord(plaintext)
		if err != nil {
			return nil, fmt.Errorf("%w: envelope %d: %v", interfaces.ErrDecryptionFailed, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func bidsFromRecords(records []interfaces.Record) ([]auction.Bid, error) {
	bids := make([]auction.Bid, 0, len(records))
	for i, rec := range records {
		bid, err := bidFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("bid record %d: %w", i, err)
		}
		bids = append(bids, bid)
	}
	return bids, nil
}

func bidFromRecord(rec interfaces.Record) (auction.Bid, error) {
	var bid auction.Bid
	var err error

	if bid.Price, err = rec.Float64("price"); err != nil {
		return auction.Bid{}, err
	}
	if bid.Quantity, err = rec.Float64("quantity"); err != nil {
		return auction.Bid{}, err
	}

	// Identity and timing are optional on the wire; clearing math works
	// without them, tie-breaking just degrades to submission order.
	if _, ok := rec["id"]; ok {
		if bid.ID, err = rec.String("id"); err != nil {
			return auction.Bid{}, err
		}
	}
	if _, ok := rec["bidderId"]; ok {
		if bid.BidderID, err = rec.String("bidderId"); err != nil {
			return auction.Bid{}, err
		}
	}
	if _, ok := rec["timestamp"]; ok {
		if bid.Timestamp, err = rec.Time("timestamp"); err != nil {
			return auction.Bid{}, err
		}
	}

	return bid, nil
}

func fieldValues(records []interfaces.Record, field string) ([]float64, error) {
	if field == "" {
		return nil, fmt.Errorf("%w: missing aggregate field name", interfaces.ErrPolicyInputInvalid)
	}

	values := make([]float64, 0, len(records))
	for i, rec := range records {
		v, err := rec.Float64(field)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func singleProfile(records []interfaces.Record) (policy.Profile, error) {
	if len(records) != 1 {
		return policy.Profile{}, fmt.Errorf("%w: policy checks take exactly one record, got %d", interfaces.ErrPolicyInputInvalid, len(records))
	}
	return policy.ProfileFromRecord(records[0])
}
