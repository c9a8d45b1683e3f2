package api

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhe16/confidential-compute-backend/aggregate"
	"github.com/fhe16/confidential-compute-backend/dispatch"
	"github.com/fhe16/confidential-compute-backend/kms"
	"github.com/fhe16/confidential-compute-backend/session"
	"github.com/fhe16/confidential-compute-backend/storage"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	masterKey := make([]byte, 32)
	_, err := rand.Read(masterKey)
	require.NoError(t, err)
	k, err := kms.NewSessionKMS(masterKey)
	require.NoError(t, err)

	logger := slog.Default()
	handler := NewHandler(session.NewManager(k, logger), storage.NewFactory(logger), logger)

	mux := chi.NewRouter()
	mux.Post("/api/sessions", handler.HandleCreateSession)
	mux.Post("/api/sessions/{session_id}/reset", handler.HandleResetSession)
	mux.Post("/api/sessions/{session_id}/seal", handler.HandleSeal)
	mux.Post("/api/sessions/{session_id}/cohort", handler.HandleAddCohortRecord)
	mux.Post("/api/sessions/{session_id}/rounds", handler.HandleCreateRound)
	mux.Post("/api/sessions/{session_id}/rounds/{round_id}/bids", handler.HandleSubmitBid)
	mux.Post("/api/sessions/{session_id}/rounds/{round_id}/close", handler.HandleCloseRound)
	mux.Post("/api/sessions/{session_id}/compute", handler.HandleCompute)
	mux.Get("/api/sessions/{session_id}/audit", handler.HandleAuditChain)
	mux.Get("/api/sessions/{session_id}/audit/verify", handler.HandleAuditVerify)
	mux.Post("/api/sessions/{session_id}/audit/export", handler.HandleAuditExport)
	mux.Post("/api/commitments", handler.HandleCommit)
	mux.Post("/api/commitments/verify", handler.HandleVerifyCommitment)
	return mux
}

func doJSON(t *testing.T, mux *chi.Mux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, mux *chi.Mux, id string) CreateSessionResponse {
	t.Helper()

	rec := doJSON(t, mux, http.MethodPost, "/api/sessions", CreateSessionRequest{SessionID: id})
	require.Equal(t, http.StatusCreated, rec.Code, "Session creation should succeed")

	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleCreateSession(t *testing.T) {
	mux := newTestRouter(t)

	resp := createSession(t, mux, "session-a")
	assert.Equal(t, "session-a", resp.SessionID)
	assert.Len(t, resp.KeyFingerprint, 8, "Key fingerprint is 4 hex-encoded bytes")
	assert.NotEmpty(t, resp.SignerPublicKey)
}

func TestHandleSeal(t *testing.T) {
	mux := newTestRouter(t)
	createSession(t, mux, "session-a")

	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/seal", SealRequest{
		Record: map[string]any{"price": 10.0, "quantity": 40.0},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SealResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Envelope)

	rec = doJSON(t, mux, http.MethodPost, "/api/sessions/missing/seal", SealRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code, "Unknown sessions are 404")
}

func TestAuctionRoundFlow(t *testing.T) {
	mux := newTestRouter(t)
	createSession(t, mux, "session-a")

	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/rounds", CreateRoundRequest{
		RoundID: "round-1", TotalSupply: 60, MinPrice: 1, MaxPrice: 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	bids := []map[string]any{
		{"bidderId": "alice", "price": 10.0, "quantity": 40.0},
		{"bidderId": "bob", "price": 8.0, "quantity": 30.0},
		{"bidderId": "carol", "price": 6.0, "quantity": 50.0},
	}
	for _, bid := range bids {
		rec = doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/rounds/round-1/bids", SubmitBidRequest{
			BidderID: bid["bidderId"].(string),
			Record:   bid,
		})
		require.Equal(t, http.StatusCreated, rec.Code, "Bid submission should succeed")
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/rounds/round-1/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/rounds/round-1/bids", SubmitBidRequest{
		BidderID: "dave",
		Record:   map[string]any{"price": 9.0, "quantity": 10.0},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "Bids after close are rejected")

	rec = doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/compute", ComputeRequest{
		Operation: "calculateClearingPrice",
		RoundID:   "round-1",
		Params:    dispatch.Params{TotalSupply: 60, MinPrice: 1},
	})
	require.Equal(t, http.StatusOK, rec.Code, "Compute over the round should succeed: %s", rec.Body.String())

	var resp ComputeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result.Clearing)
	assert.Equal(t, 8.0, resp.Result.Clearing.ClearingPrice)
	assert.True(t, resp.Result.Clearing.IsOversubscribed)
	assert.NotEmpty(t, resp.Sealed, "The result also travels sealed")
	assert.Equal(t, 3, resp.Metadata.ParticipantCount)
}

func TestCohortComputeKGate(t *testing.T) {
	mux := newTestRouter(t)
	createSession(t, mux, "session-a")

	for i := 0; i < 2; i++ {
		rec := doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/cohort", AddCohortRecordRequest{
			ID: fmt.Sprintf("rec-%d", i), Location: "tokyo", Category: "engineer",
			Record: map[string]any{"salary": 100.0 * float64(i+1)},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/compute", ComputeRequest{
		Operation:   "average",
		CohortQuery: &aggregate.Query{Location: "tokyo"},
		Params:      dispatch.Params{Field: "salary"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, "A cohort of 2 against k=3 is forbidden")
}

func TestAuditEndpoints(t *testing.T) {
	mux := newTestRouter(t)
	createSession(t, mux, "session-a")

	// One computation to populate the chain.
	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/rounds", CreateRoundRequest{
		RoundID: "round-1", TotalSupply: 10, MinPrice: 1, MaxPrice: 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/compute", ComputeRequest{
		Operation: "getRoundStatistics",
		RoundID:   "round-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/sessions/session-a/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var blocks []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &blocks))
	assert.Len(t, blocks, 1, "The computation left one audit block")

	rec = doJSON(t, mux, http.MethodGet, "/api/sessions/session-a/audit/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verify AuditVerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verify))
	assert.True(t, verify.Valid)
	assert.Equal(t, 1, verify.Blocks)

	rec = doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/audit/export", ExportAuditRequest{Location: "memory://"})
	require.Equal(t, http.StatusOK, rec.Code)
	var export ExportAuditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.Len(t, export.ContentID, 64, "Content IDs are 32 hex-encoded bytes")
	assert.Equal(t, "memory", export.Backend)

	rec = doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/audit/export", ExportAuditRequest{Location: "pigeon://x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "Invalid export URIs are 400")
}

func TestCommitmentEndpoints(t *testing.T) {
	mux := newTestRouter(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/commitments", CommitRequest{Value: "bid:100"})
	require.Equal(t, http.StatusOK, rec.Code)
	var commit CommitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commit))
	assert.Len(t, commit.Commitment, 64)
	assert.NotEmpty(t, commit.Salt, "A salt is generated when not supplied")

	rec = doJSON(t, mux, http.MethodPost, "/api/commitments/verify", VerifyCommitmentRequest{
		Commitment: commit.Commitment, Value: "bid:100", Salt: commit.Salt,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var verify VerifyCommitmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verify))
	assert.True(t, verify.Valid, "The original value and salt verify")

	rec = doJSON(t, mux, http.MethodPost, "/api/commitments/verify", VerifyCommitmentRequest{
		Commitment: commit.Commitment, Value: "bid:101", Salt: commit.Salt,
	})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verify))
	assert.False(t, verify.Valid, "A different value must not verify")
}

func TestComputeInputSourcesAreExclusive(t *testing.T) {
	mux := newTestRouter(t)
	createSession(t, mux, "session-a")

	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/compute", map[string]any{
		"operation":   "average",
		"roundId":     "round-1",
		"cohortQuery": map[string]any{"location": "tokyo"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "Multiple input sources are rejected")
}

func TestComputeUnknownOperation(t *testing.T) {
	mux := newTestRouter(t)
	createSession(t, mux, "session-a")

	rec := doJSON(t, mux, http.MethodPost, "/api/sessions/session-a/compute", map[string]any{
		"operation": "stealAllData",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "Unknown operations are 400")
}
