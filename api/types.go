// Package api implements the HTTP handlers of the engine: session
// lifecycle, sealing, cohort and round management, computation dispatch,
// audit access and commitments. Handlers hold no state of their own;
// everything lives in the session manager and the export backends.
package api

import (
	"time"

	"github.com/fhe16/confidential-compute-backend/aggregate"
	"github.com/fhe16/confidential-compute-backend/dispatch"
	"github.com/fhe16/confidential-compute-backend/interfaces"
)

// CreateSessionRequest optionally pins the session ID. An empty ID gets
// a generated UUID.
type CreateSessionRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

// CreateSessionResponse describes a created session. The key
// fingerprint is public; it lets clients pre-check which session an
// envelope belongs to.
type CreateSessionResponse struct {
	SessionID       string    `json:"sessionId"`
	CreatedAt       time.Time `json:"createdAt"`
	KeyFingerprint  string    `json:"keyFingerprint"`
	SignerPublicKey string    `json:"signerPublicKey"`
}

// SealRequest carries one plaintext record to seal.
type SealRequest struct {
	Record interfaces.Record `json:"record"`
}

// SealResponse returns the opaque envelope.
type SealResponse struct {
	Envelope interfaces.Envelope `json:"envelope"`
}

// AddCohortRecordRequest registers one record in the session's cohort
// store. Location and category are public tags; the record itself is
// sealed before indexing.
type AddCohortRecordRequest struct {
	ID       string            `json:"id"`
	Location string            `json:"location"`
	Category string            `json:"category"`
	Record   interfaces.Record `json:"record"`
}

// AddCohortRecordResponse confirms the indexed record.
type AddCohortRecordResponse struct {
	ID       string              `json:"id"`
	Envelope interfaces.Envelope `json:"envelope"`
	Total    int                 `json:"total"`
}

// CreateRoundRequest opens a new auction round.
type CreateRoundRequest struct {
	RoundID     string  `json:"roundId"`
	TotalSupply float64 `json:"totalSupply"`
	MinPrice    float64 `json:"minPrice"`
	MaxPrice    float64 `json:"maxPrice"`
}

// CreateRoundResponse describes the opened round.
type CreateRoundResponse struct {
	RoundID string `json:"roundId"`
	State   string `json:"state"`
}

// SubmitBidRequest submits one bid to a round. Either a pre-sealed
// envelope or a plaintext record to seal server-side; exactly one must
// be set.
type SubmitBidRequest struct {
	BidderID string              `json:"bidderId"`
	Envelope interfaces.Envelope `json:"envelope,omitempty"`
	Record   interfaces.Record   `json:"record,omitempty"`
}

// SubmitBidResponse confirms the sealed bid.
type SubmitBidResponse struct {
	BidderID    string              `json:"bidderId"`
	Envelope    interfaces.Envelope `json:"envelope"`
	SubmittedAt time.Time           `json:"submittedAt"`
	BidCount    int                 `json:"bidCount"`
}

// ComputeRequest dispatches one computation. Input envelopes come from
// exactly one source: an explicit list, a round ID or a cohort query.
type ComputeRequest struct {
	Operation   string                `json:"operation"`
	Envelopes   []interfaces.Envelope `json:"envelopes,omitempty"`
	RoundID     string                `json:"roundId,omitempty"`
	CohortQuery *aggregate.Query      `json:"cohortQuery,omitempty"`
	Params      dispatch.Params       `json:"params"`
}

// ComputeResponse returns the result both sealed and, for the demo
// surface, in the clear, together with computation metadata.
type ComputeResponse struct {
	Sealed   interfaces.Envelope `json:"sealed"`
	Result   *dispatch.Result    `json:"result"`
	Metadata dispatch.Metadata   `json:"metadata"`
}

// AuditVerifyResponse reports chain integrity.
type AuditVerifyResponse struct {
	Valid  bool   `json:"valid"`
	Blocks int    `json:"blocks"`
	Error  string `json:"error,omitempty"`
}

// ExportAuditRequest selects the export backend by URI.
type ExportAuditRequest struct {
	Location string `json:"location"`
}

// ExportAuditResponse identifies the stored export.
type ExportAuditResponse struct {
	ContentID string `json:"contentId"`
	Backend   string `json:"backend"`
	Blocks    int    `json:"blocks"`
}

// CommitRequest commits to a value. A missing salt is generated.
type CommitRequest struct {
	Value string `json:"value"`
	Salt  string `json:"salt,omitempty"` // hex
}

// CommitResponse returns the commitment and the salt needed to reveal.
type CommitResponse struct {
	Commitment string `json:"commitment"` // hex
	Salt       string `json:"salt"`       // hex
}

// VerifyCommitmentRequest reveals a value and salt against a
// commitment.
type VerifyCommitmentRequest struct {
	Commitment string `json:"commitment"` // hex
	Value      string `json:"value"`
	Salt       string `json:"salt"` // hex
}

// VerifyCommitmentResponse reports the verification outcome.
type VerifyCommitmentResponse struct {
	Valid bool `json:"valid"`
}
