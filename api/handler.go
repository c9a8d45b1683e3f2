package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fhe16/confidential-compute-backend/aggregate"
	"github.com/fhe16/confidential-compute-backend/auction"
	"github.com/fhe16/confidential-compute-backend/cryptoutils"
	"github.com/fhe16/confidential-compute-backend/interfaces"
	"github.com/fhe16/confidential-compute-backend/metrics"
	"github.com/fhe16/confidential-compute-backend/session"
	"github.com/fhe16/confidential-compute-backend/storage"
)

// maxBodySize caps request bodies at 1MB.
const maxBodySize = 1024 * 1024

// Handler processes the engine's HTTP requests.
type Handler struct {
	manager *session.Manager
	exports *storage.Factory
	log     *slog.Logger
}

// NewHandler creates a handler over the session manager and export
// factory.
func NewHandler(manager *session.Manager, exports *storage.Factory, log *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		exports: exports,
		log:     log,
	}
}

// HandleCreateSession creates (or returns) a session.
//
// POST /api/sessions
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	s, err := h.manager.Create(req.SessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	metrics.SessionsActive.Set(float64(len(h.manager.IDs())))

	fp := s.Codec.KeyFingerprint()
	h.writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID:       s.ID,
		CreatedAt:       s.CreatedAt,
		KeyFingerprint:  hex.EncodeToString(fp[:]),
		SignerPublicKey: hex.EncodeToString(s.Signer.PublicKeyBytes()),
	})
}

// HandleResetSession clears a session's state while keeping its keys.
//
// POST /api/sessions/{session_id}/reset
func (h *Handler) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Reset(chi.URLParam(r, "session_id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleSeal seals one record under the session key.
//
// POST /api/sessions/{session_id}/seal
func (h *Handler) HandleSeal(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req SealRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	env, err := interfaces.SealRecord(s.Codec, req.Record)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, SealResponse{Envelope: env})
}

// HandleAddCohortRecord seals a record and indexes it under its public
// cohort tags.
//
// POST /api/sessions/{session_id}/cohort
func (h *Handler) HandleAddCohortRecord(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req AddCohortRecordRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	env, err := interfaces.SealRecord(s.Codec, req.Record)
	if err != nil {
		h.writeError(w, err)
		return
	}

	s.Cohorts.Add(aggregate.CohortRecord{
		ID:       req.ID,
		Location: req.Location,
		Category: req.Category,
		Envelope: env,
	})

	h.writeJSON(w, http.StatusCreated, AddCohortRecordResponse{
		ID:       req.ID,
		Envelope: env,
		Total:    s.Cohorts.Len(),
	})
}

// HandleCreateRound opens a new auction round.
//
// POST /api/sessions/{session_id}/rounds
func (h *Handler) HandleCreateRound(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req CreateRoundRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	round, err := s.Rounds.Create(req.RoundID, req.TotalSupply, req.MinPrice, req.MaxPrice)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, CreateRoundResponse{
		RoundID: round.ID,
		State:   string(round.State()),
	})
}

// HandleSubmitBid submits one sealed bid to a round. A plaintext record
// in the request is sealed server-side first.
//
// POST /api/sessions/{session_id}/rounds/{round_id}/bids
func (h *Handler) HandleSubmitBid(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	round, err := s.Rounds.Get(chi.URLParam(r, "round_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req SubmitBidRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	env := req.Envelope
	if env == "" {
		if req.Record == nil {
			h.writeError(w, &requestError{http.StatusBadRequest, errors.New("either envelope or record is required")})
			return
		}
		env, err = interfaces.SealRecord(s.Codec, req.Record)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	sealed, err := round.SubmitBid(req.BidderID, env)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, SubmitBidResponse{
		BidderID:    sealed.BidderID,
		Envelope:    sealed.Envelope,
		SubmittedAt: sealed.SubmittedAt,
		BidCount:    len(round.SealedBids()),
	})
}

// HandleCloseRound freezes a round's bid set for clearing.
//
// POST /api/sessions/{session_id}/rounds/{round_id}/close
func (h *Handler) HandleCloseRound(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	round, err := s.Rounds.Get(chi.URLParam(r, "round_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := round.BeginClearing(); err != nil {
		h.writeError(w, &requestError{http.StatusConflict, err})
		return
	}

	h.writeJSON(w, http.StatusOK, CreateRoundResponse{
		RoundID: round.ID,
		State:   string(round.State()),
	})
}

// HandleCompute dispatches one computation over sealed envelopes.
//
// POST /api/sessions/{session_id}/compute
func (h *Handler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req ComputeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	op, err := interfaces.ParseOperation(req.Operation)
	if err != nil {
		h.writeError(w, err)
		return
	}

	envelopes, err := h.resolveEnvelopes(s, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	start := time.Now()
	result, err := s.Compute(r.Context(), envelopes, op, req.Params)
	metrics.ComputationDuration.WithLabelValues(op.String()).Observe(time.Since(start).Seconds())
	metrics.AuditBlocksTotal.Inc()
	if err != nil {
		metrics.ComputationsTotal.WithLabelValues(op.String(), computeOutcome(err)).Inc()
		h.writeError(w, err)
		return
	}
	metrics.ComputationsTotal.WithLabelValues(op.String(), "completed").Inc()

	h.writeJSON(w, http.StatusOK, ComputeResponse{
		Sealed:   result.Sealed,
		Result:   result,
		Metadata: result.Metadata,
	})
}

// resolveEnvelopes picks the computation inputs from exactly one of the
// request's three sources.
func (h *Handler) resolveEnvelopes(s *session.Session, req *ComputeRequest) ([]interfaces.Envelope, error) {
	sources := 0
	if len(req.Envelopes) > 0 {
		sources++
	}
	if req.RoundID != "" {
		sources++
	}
	if req.CohortQuery != nil {
		sources++
	}
	if sources > 1 {
		return nil, &requestError{http.StatusBadRequest, errors.New("envelopes, roundId and cohortQuery are mutually exclusive")}
	}

	switch {
	case req.RoundID != "":
		round, err := s.Rounds.Get(req.RoundID)
		if err != nil {
			return nil, err
		}
		return round.Envelopes(), nil
	case req.CohortQuery != nil:
		return s.Cohorts.Cohort(*req.CohortQuery)
	default:
		return req.Envelopes, nil
	}
}

// HandleAuditChain returns the session's full audit chain.
//
// GET /api/sessions/{session_id}/audit
func (h *Handler) HandleAuditChain(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s.Ledger.Blocks())
}

// HandleAuditVerify rehashes the chain from genesis and reports
// integrity.
//
// GET /api/sessions/{session_id}/audit/verify
func (h *Handler) HandleAuditVerify(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := AuditVerifyResponse{Valid: true, Blocks: s.Ledger.Len()}
	if err := s.Ledger.Verify(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleAuditExport stores the serialized chain in an export backend.
//
// POST /api/sessions/{session_id}/audit/export
func (h *Handler) HandleAuditExport(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req ExportAuditRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	backend, err := h.exports.BackendFor(req.Location)
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, err := s.Ledger.Export()
	if err != nil {
		h.writeError(w, err)
		return
	}

	id, err := backend.Store(r.Context(), data, interfaces.AuditType)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues(backend.Name(), "failed").Inc()
		h.writeError(w, err)
		return
	}
	metrics.ExportsTotal.WithLabelValues(backend.Name(), "stored").Inc()

	h.writeJSON(w, http.StatusOK, ExportAuditResponse{
		ContentID: id.String(),
		Backend:   backend.Name(),
		Blocks:    s.Ledger.Len(),
	})
}

// HandleCommit produces a salted commitment to a value.
//
// POST /api/commitments
func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	var salt []byte
	var err error
	if req.Salt != "" {
		salt, err = hex.DecodeString(req.Salt)
		if err != nil {
			h.writeError(w, &requestError{http.StatusBadRequest, errors.New("salt must be hex encoded")})
			return
		}
	} else {
		salt, err = cryptoutils.NewCommitmentSalt()
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	commitment := cryptoutils.Commit([]byte(req.Value), salt)
	h.writeJSON(w, http.StatusOK, CommitResponse{
		Commitment: commitment.String(),
		Salt:       hex.EncodeToString(salt),
	})
}

// HandleVerifyCommitment checks a revealed value and salt against a
// commitment.
//
// POST /api/commitments/verify
func (h *Handler) HandleVerifyCommitment(w http.ResponseWriter, r *http.Request) {
	var req VerifyCommitmentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	raw, err := hex.DecodeString(req.Commitment)
	if err != nil || len(raw) != 32 {
		h.writeError(w, &requestError{http.StatusBadRequest, errors.New("commitment must be 32 hex-encoded bytes")})
		return
	}
	salt, err := hex.DecodeString(req.Salt)
	if err != nil {
		h.writeError(w, &requestError{http.StatusBadRequest, errors.New("salt must be hex encoded")})
		return
	}

	var commitment cryptoutils.Commitment
	copy(commitment[:], raw)

	h.writeJSON(w, http.StatusOK, VerifyCommitmentResponse{
		Valid: cryptoutils.VerifyCommitment(commitment, []byte(req.Value), salt),
	})
}

func (h *Handler) session(r *http.Request) (*session.Session, error) {
	return h.manager.Get(chi.URLParam(r, "session_id"))
}

func (h *Handler) decode(r *http.Request, into any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return &requestError{http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err)}
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, into); err != nil {
		return &requestError{http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", "err", err)
	}
}

// requestError pairs an HTTP status with the underlying error.
type requestError struct {
	StatusCode int
	Err        error
}

func (e *requestError) Error() string {
	return e.Err.Error()
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.StatusCode
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, auction.ErrRoundNotFound),
		errors.Is(err, interfaces.ErrContentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrKAnonymityViolation):
		metrics.KAnonymityDenials.Inc()
		status = http.StatusForbidden
	case errors.Is(err, auction.ErrRoundClosed),
		errors.Is(err, auction.ErrRoundExists):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrKeyMismatch),
		errors.Is(err, interfaces.ErrInvalidCiphertext),
		errors.Is(err, interfaces.ErrDecryptionFailed),
		errors.Is(err, interfaces.ErrUnsupportedOperation),
		errors.Is(err, interfaces.ErrPolicyInputInvalid),
		errors.Is(err, interfaces.ErrInvalidLocationURI):
		status = http.StatusBadRequest
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		status = http.StatusBadGateway
	}

	h.log.Debug("request failed", "err", err, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func computeOutcome(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrKAnonymityViolation):
		return "denied"
	default:
		return "failed"
	}
}
