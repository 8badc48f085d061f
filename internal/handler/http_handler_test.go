package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lexworks/be-referrals/internal/client"
	"github.com/lexworks/be-referrals/internal/metrics"
	"github.com/lexworks/be-referrals/internal/platform/middleware"
	"github.com/lexworks/be-referrals/internal/policy"
	"github.com/lexworks/be-referrals/internal/repository"
	"github.com/lexworks/be-referrals/internal/service"
)

// Prometheus collectors register against the default registry once per
// process, so the whole package shares one Metrics value.
var testMetrics = metrics.New()

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	store := repository.NewMemoryStore()
	table := policy.Default()
	identity := client.NewStaticDirectory(map[string]string{
		"att-1":     "case_manager",
		"cm-1":      "case_manager",
		"fa-1":      "firm_admin",
		"partner-1": "managing_partner",
	})

	workflow := service.NewWorkflowService(store.Referrals(), store.Approvals(), table, zerolog.Nop())
	gate := service.NewApprovalService(store.Approvals(), workflow, identity, table, zerolog.Nop())
	comments := service.NewCommentService(store.Comments(), store.Referrals(), zerolog.Nop())
	risk := service.NewRiskService(store.Referrals(), zerolog.Nop())

	h := NewHTTPHandler(workflow, gate, comments, risk, testMetrics, zerolog.Nop())
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, actorID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithActorID(context.Background(), actorID))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func createReferralVia(t *testing.T, r chi.Router, feeCents int64) (string, []map[string]any) {
	t.Helper()

	rec := doJSON(t, r, "att-1", http.MethodPost, "/api/v1/referrals", map[string]any{
		"case_id":         "case-1",
		"dest_actor_id":   "att-2",
		"source_category": "internal",
		"fee_cents":       feeCents,
		"reason":          "subject-matter fit",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var ref map[string]any
	decodeBody(t, rec, &ref)
	id := ref["id"].(string)

	rec = doJSON(t, r, "att-1", http.MethodGet, "/api/v1/referrals/"+id+"/approvals", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var approvals []map[string]any
	decodeBody(t, rec, &approvals)
	return id, approvals
}

func TestCreateReferralEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, "att-1", http.MethodPost, "/api/v1/referrals", map[string]any{
		"case_id":         "case-1",
		"dest_actor_id":   "att-2",
		"source_category": "internal",
		"reason":          "subject-matter fit",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var ref map[string]any
	decodeBody(t, rec, &ref)
	require.Equal(t, "pending", ref["status"])
	require.Equal(t, "pending_case_manager", ref["workflow_stage"])
	require.Equal(t, "att-1", ref["referring_actor_id"])
	require.Equal(t, []any{"case_manager"}, ref["required_categories"])
}

func TestCreateReferralEndpointValidation(t *testing.T) {
	r := newTestRouter(t)

	// Both destination fields set.
	rec := doJSON(t, r, "att-1", http.MethodPost, "/api/v1/referrals", map[string]any{
		"case_id":            "case-1",
		"dest_actor_id":      "att-2",
		"dest_external_name": "Smith & Rowe",
		"source_category":    "internal",
		"reason":             "subject-matter fit",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.Equal(t, "VALIDATION_ERROR", body["error"])

	rec = doJSON(t, r, "att-1", http.MethodPost, "/api/v1/referrals", map[string]any{
		"case_id":         "case-1",
		"dest_actor_id":   "att-2",
		"source_category": "internal",
		"reason":          "subject-matter fit",
		"deadline":        "next tuesday",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReferralNotFound(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, "att-1", http.MethodGet, "/api/v1/referrals/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.Equal(t, "NOT_FOUND", body["error"])
}

func TestDecisionFlowEndpoint(t *testing.T) {
	r := newTestRouter(t)
	_, approvals := createReferralVia(t, r, 100)
	require.Len(t, approvals, 2)

	actorFor := map[string]string{"case_manager": "cm-1", "firm_admin": "fa-1"}
	var last map[string]any
	for _, appr := range approvals {
		rec := doJSON(t, r, actorFor[appr["category"].(string)],
			http.MethodPost, fmt.Sprintf("/api/v1/approvals/%s/decision", appr["id"]),
			map[string]any{"action": "approve"})
		require.Equal(t, http.StatusOK, rec.Code)
		decodeBody(t, rec, &last)
	}
	require.Equal(t, "active", last["status"])
	require.Equal(t, "active", last["workflow_stage"])
}

func TestDecisionEndpointErrors(t *testing.T) {
	r := newTestRouter(t)
	_, approvals := createReferralVia(t, r, 100)

	var target map[string]any
	for _, appr := range approvals {
		if appr["category"] == "case_manager" {
			target = appr
		}
	}
	path := fmt.Sprintf("/api/v1/approvals/%s/decision", target["id"])

	// Wrong role.
	rec := doJSON(t, r, "fa-1", http.MethodPost, path, map[string]any{"action": "approve"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Rejection without a reason.
	rec = doJSON(t, r, "cm-1", http.MethodPost, path, map[string]any{"action": "reject"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// First decision lands, the repeat conflicts.
	rec = doJSON(t, r, "cm-1", http.MethodPost, path, map[string]any{"action": "approve"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, "partner-1", http.MethodPost, path, map[string]any{"action": "approve"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.Equal(t, "STATE_ERROR", body["error"])
}

func TestPendingApprovalsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	createReferralVia(t, r, 100)

	rec := doJSON(t, r, "partner-1", http.MethodGet, "/api/v1/approvals/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var queue []map[string]any
	decodeBody(t, rec, &queue)
	require.Len(t, queue, 2)

	rec = doJSON(t, r, "cm-1", http.MethodGet, "/api/v1/approvals/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &queue)
	require.Len(t, queue, 1)
	require.Equal(t, "case_manager", queue[0]["category"])
}

func TestCommentEndpoints(t *testing.T) {
	r := newTestRouter(t)
	id, _ := createReferralVia(t, r, 0)

	rec := doJSON(t, r, "att-1", http.MethodPost, "/api/v1/referrals/"+id+"/comments",
		map[string]any{"text": "handing over my notes"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var comment map[string]any
	decodeBody(t, rec, &comment)
	require.Equal(t, "att-1", comment["author_id"])

	rec = doJSON(t, r, "att-1", http.MethodGet, "/api/v1/referrals/"+id+"/comments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var trail []map[string]any
	decodeBody(t, rec, &trail)
	require.Len(t, trail, 1)
	require.Equal(t, "handing over my notes", trail[0]["text"])
}

func TestListReferralsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	createReferralVia(t, r, 0)
	createReferralVia(t, r, 100)

	rec := doJSON(t, r, "att-1", http.MethodGet, "/api/v1/referrals?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Referrals []map[string]any `json:"referrals"`
		Total     int              `json:"total"`
	}
	decodeBody(t, rec, &body)
	require.Equal(t, 2, body.Total)
}

func TestConcentrationEndpoint(t *testing.T) {
	r := newTestRouter(t)

	// Ten of twelve incoming referrals for att-2 come from att-1.
	for i := 0; i < 10; i++ {
		createReferralVia(t, r, 0)
	}
	for i := 0; i < 2; i++ {
		rec := doJSON(t, r, "cm-1", http.MethodPost, "/api/v1/referrals", map[string]any{
			"case_id":         "case-2",
			"dest_actor_id":   "att-2",
			"source_category": "internal",
			"reason":          "capacity",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, r, "partner-1", http.MethodGet, "/api/v1/analytics/concentration", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Alerts []map[string]any `json:"alerts"`
		Total  int              `json:"total"`
	}
	decodeBody(t, rec, &body)
	require.NotZero(t, body.Total)

	found := false
	for _, alert := range body.Alerts {
		if alert["type"] == "incoming" && alert["attorney_id"] == "att-2" {
			found = true
			require.Equal(t, 83.3, alert["percentage"])
			require.Equal(t, "high", alert["severity"])
		}
	}
	require.True(t, found)
}
