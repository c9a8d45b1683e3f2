// Package session ties one simulated enclave session together: the
// envelope codec derived for its ID, the dispatcher bound to that
// codec, the audit chain and the block signer. Sessions are the
// isolation unit: an envelope sealed in one session cannot be opened in
// another, by key derivation alone.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fhe16/confidential-compute-backend/aggregate"
	"github.com/fhe16/confidential-compute-backend/auction"
	"github.com/fhe16/confidential-compute-backend/cryptoutils"
	"github.com/fhe16/confidential-compute-backend/dispatch"
	"github.com/fhe16/confidential-compute-backend/envelope"
	"github.com/fhe16/confidential-compute-backend/interfaces"
	"github.com/fhe16/confidential-compute-backend/ledger"
	"github.com/fhe16/confidential-compute-backend/policy"
)

// Session is one isolated computation context.
type Session struct {
	ID        string
	CreatedAt time.Time

	Codec      *envelope.Codec
	Dispatcher *dispatch.Dispatcher
	Ledger     *ledger.Chain
	Signer     *cryptoutils.Signer
	Cohorts    *aggregate.Store
	Rounds     *auction.RoundIndex
}

// Compute runs one operation over sealed envelopes and appends an audit
// block recording the outcome. The block is appended for denials and
// failures too; only the decision text differs.
func (s *Session) Compute(ctx context.Context, envelopes []interfaces.Envelope, op interfaces.OperationName, params dispatch.Params) (*dispatch.Result, error) {
	result, err := s.Dispatcher.Run(ctx, envelopes, op, params)

	decision := "completed"
	if err != nil {
		decision = fmt.Sprintf("failed: %v", err)
	}

	input := computeInputDigest(envelopes, op, params)
	if _, auditErr := s.RecordEvidence(op.String(), decision, input); auditErr != nil {
		return nil, auditErr
	}

	return result, err
}

// RecordEvidence appends one signed block to the session's audit chain.
// The input bytes are committed by hash only; plaintext never reaches
// the chain.
func (s *Session) RecordEvidence(subjectID, decision string, input []byte) (ledger.Block, error) {
	inputHash := sha256.Sum256(input)

	ev := ledger.Evidence{
		ID:            uuid.New().String(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		SubjectID:     subjectID,
		Decision:      decision,
		PolicyVersion: policy.Version,
		InputHash:     hex.EncodeToString(inputHash[:]),
	}

	unsigned, err := json.Marshal(ev)
	if err != nil {
		return ledger.Block{}, fmt.Errorf("failed to encode evidence: %w", err)
	}
	sig, err := s.Signer.Sign(unsigned)
	if err != nil {
		return ledger.Block{}, fmt.Errorf("failed to sign evidence: %w", err)
	}
	ev.Signature = hex.EncodeToString(sig)

	return s.Ledger.Append(ev)
}

// VerifyEvidence checks one block's signature against the session's
// signer key. The signature covers the evidence with the signature
// field blanked.
func (s *Session) VerifyEvidence(block ledger.Block) bool {
	ev := block.Payload
	sig, err := hex.DecodeString(ev.Signature)
	if err != nil {
		return false
	}
	ev.Signature = ""

	unsigned, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	return cryptoutils.VerifySignature(s.Signer.PublicKeyBytes(), unsigned, sig)
}

func computeInputDigest(envelopes []interfaces.Envelope, op interfaces.OperationName, params dispatch.Params) []byte {
	h := sha256.New()
	h.Write([]byte(op.String()))
	for _, env := range envelopes {
		h.Write([]byte(env))
	}
	if p, err := json.Marshal(params); err == nil {
		h.Write(p)
	}
	return h.Sum(nil)
}
