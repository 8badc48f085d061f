package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lexworks/be-referrals/internal/apperr"
	"github.com/lexworks/be-referrals/internal/metrics"
	"github.com/lexworks/be-referrals/internal/platform/middleware"
	"github.com/lexworks/be-referrals/internal/repository"
	"github.com/lexworks/be-referrals/internal/service"
)

// HTTPHandler is the thin HTTP layer over the engine services. It maps JSON
// to service requests and engine errors to status codes; business rules live
// in the services.
type HTTPHandler struct {
	workflow *service.WorkflowService
	gate     *service.ApprovalService
	comments *service.CommentService
	risk     *service.RiskService
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	workflow *service.WorkflowService,
	gate *service.ApprovalService,
	comments *service.CommentService,
	risk *service.RiskService,
	m *metrics.Metrics,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		workflow: workflow,
		gate:     gate,
		comments: comments,
		risk:     risk,
		metrics:  m,
		log:      log,
	}
}

// Routes mounts the engine API.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/referrals", h.CreateReferral)
		r.Get("/referrals", h.ListReferrals)
		r.Get("/referrals/{id}", h.GetReferral)
		r.Get("/referrals/{id}/approvals", h.GetApprovals)
		r.Post("/referrals/{id}/comments", h.AddComment)
		r.Get("/referrals/{id}/comments", h.ListComments)

		r.Post("/approvals/{id}/decision", h.SubmitDecision)
		r.Get("/approvals/pending", h.PendingApprovals)

		r.Get("/analytics/concentration", h.ConcentrationAlerts)
	})
}

// ── referrals ─────────────────────────────────────────────────────────────────

type createReferralRequest struct {
	CaseID           string  `json:"case_id"`
	DestActorID      *string `json:"dest_actor_id"`
	DestExternalName *string `json:"dest_external_name"`
	SourceCategory   string  `json:"source_category"`
	FeeCents         int64   `json:"fee_cents"`
	Reason           string  `json:"reason"`
	ConsentObtained  bool    `json:"consent_obtained"`
	Priority         string  `json:"priority"`
	Deadline         *string `json:"deadline"` // YYYY-MM-DD
	RiskScore        *int    `json:"risk_score"`
}

// CreateReferral handles referral submission. The referring actor is the
// authenticated caller.
func (h *HTTPHandler) CreateReferral(w http.ResponseWriter, r *http.Request) {
	var req createReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	var deadline *time.Time
	if req.Deadline != nil && *req.Deadline != "" {
		d, err := time.Parse("2006-01-02", *req.Deadline)
		if err != nil {
			h.writeError(w, r, apperr.InvalidInput("deadline", "invalid date format, expected YYYY-MM-DD"))
			return
		}
		deadline = &d
	}

	var referring *string
	if actor := middleware.ActorID(r.Context()); actor != "" {
		referring = &actor
	}

	ref, err := h.workflow.CreateReferral(r.Context(), &service.CreateReferralRequest{
		CaseID:           req.CaseID,
		ReferringActorID: referring,
		DestActorID:      req.DestActorID,
		DestExternalName: req.DestExternalName,
		SourceCategory:   req.SourceCategory,
		FeeCents:         req.FeeCents,
		Reason:           req.Reason,
		ConsentObtained:  req.ConsentObtained,
		Priority:         req.Priority,
		Deadline:         deadline,
		RiskScore:        req.RiskScore,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.metrics.ReferralsCreated.Inc()
	h.writeJSON(w, http.StatusCreated, toReferralResponse(ref))
}

// GetReferral returns one referral.
func (h *HTTPHandler) GetReferral(w http.ResponseWriter, r *http.Request) {
	ref, err := h.workflow.GetReferral(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toReferralResponse(ref))
}

// ListReferrals returns referrals matching the query filters.
func (h *HTTPHandler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	var filter repository.ReferralFilter
	if v := r.URL.Query().Get("status"); v != "" {
		status := repository.ReferralStatus(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("dest_actor_id"); v != "" {
		filter.DestActorID = &v
	}
	if v := r.URL.Query().Get("referring_actor_id"); v != "" {
		filter.ReferringActorID = &v
	}
	if v := r.URL.Query().Get("case_id"); v != "" {
		filter.CaseID = &v
	}

	refs, err := h.workflow.ListReferrals(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]*referralResponse, 0, len(refs))
	for _, ref := range refs {
		out = append(out, toReferralResponse(ref))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"referrals": out, "total": len(out)})
}

// GetApprovals returns the approval set for a referral.
func (h *HTTPHandler) GetApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := h.workflow.GetApprovals(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toApprovalResponses(approvals))
}

// ── approvals ─────────────────────────────────────────────────────────────────

type submitDecisionRequest struct {
	Action   string  `json:"action"`
	Comments *string `json:"comments"`
}

// SubmitDecision applies one approve/reject action for the authenticated actor.
func (h *HTTPHandler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	var req submitDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	ref, err := h.gate.SubmitDecision(r.Context(), &service.SubmitDecisionRequest{
		ApprovalID: chi.URLParam(r, "id"),
		ActorID:    middleware.ActorID(r.Context()),
		Action:     req.Action,
		Comments:   req.Comments,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.metrics.ApprovalDecisions.WithLabelValues(req.Action).Inc()
	h.writeJSON(w, http.StatusOK, toReferralResponse(ref))
}

// PendingApprovals returns the authenticated actor's approval work queue.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := h.gate.PendingForActor(r.Context(), middleware.ActorID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toApprovalResponses(approvals))
}

// ── comments ──────────────────────────────────────────────────────────────────

type addCommentRequest struct {
	Text string `json:"text"`
}

// AddComment appends a comment to a referral's trail.
func (h *HTTPHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	c, err := h.comments.AddComment(r.Context(),
		chi.URLParam(r, "id"), middleware.ActorID(r.Context()), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toCommentResponse(c))
}

// ListComments returns a referral's trail in insertion order.
func (h *HTTPHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.comments.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]*commentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, toCommentResponse(c))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ── analytics ─────────────────────────────────────────────────────────────────

// ConcentrationAlerts runs the concentration analyzer over a fresh snapshot.
func (h *HTTPHandler) ConcentrationAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.risk.ConcentrationAlerts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.metrics.ConcentrationRuns.Inc()
	h.metrics.AlertsEmitted.Add(float64(len(alerts)))
	h.writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "total": len(alerts)})
}

// ── response shapes ───────────────────────────────────────────────────────────

type referralResponse struct {
	ID                 string     `json:"id"`
	CaseID             string     `json:"case_id"`
	ReferringActorID   *string    `json:"referring_actor_id,omitempty"`
	DestActorID        *string    `json:"dest_actor_id,omitempty"`
	DestExternalName   *string    `json:"dest_external_name,omitempty"`
	SourceCategory     string     `json:"source_category"`
	FeeCents           int64      `json:"fee_cents"`
	Reason             string     `json:"reason"`
	ConsentObtained    bool       `json:"consent_obtained"`
	Priority           string     `json:"priority"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	RiskScore          *int       `json:"risk_score,omitempty"`
	RequiredCategories []string   `json:"required_categories"`
	Status             string     `json:"status"`
	WorkflowStage      string     `json:"workflow_stage"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toReferralResponse(ref *repository.Referral) *referralResponse {
	cats := ref.RequiredCategories()
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, string(c))
	}
	return &referralResponse{
		ID:                 ref.ID,
		CaseID:             ref.CaseID,
		ReferringActorID:   ref.ReferringActorID,
		DestActorID:        ref.DestActorID,
		DestExternalName:   ref.DestExternalName,
		SourceCategory:     string(ref.SourceCategory),
		FeeCents:           ref.FeeCents,
		Reason:             ref.Reason,
		ConsentObtained:    ref.ConsentObtained,
		Priority:           string(ref.Priority),
		Deadline:           ref.Deadline,
		RiskScore:          ref.RiskScore,
		RequiredCategories: names,
		Status:             string(ref.Status),
		WorkflowStage:      ref.WorkflowStage,
		CreatedAt:          ref.CreatedAt,
		UpdatedAt:          ref.UpdatedAt,
	}
}

type approvalResponse struct {
	ID         string     `json:"id"`
	ReferralID string     `json:"referral_id"`
	Category   string     `json:"category"`
	Status     string     `json:"status"`
	DecidedBy  *string    `json:"decided_by,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	Comments   *string    `json:"comments,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toApprovalResponses(approvals []*repository.Approval) []*approvalResponse {
	out := make([]*approvalResponse, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, &approvalResponse{
			ID:         a.ID,
			ReferralID: a.ReferralID,
			Category:   string(a.Category),
			Status:     string(a.Status),
			DecidedBy:  a.DecidedBy,
			DecidedAt:  a.DecidedAt,
			Comments:   a.Comments,
			CreatedAt:  a.CreatedAt,
		})
	}
	return out
}

type commentResponse struct {
	ID         string    `json:"id"`
	ReferralID string    `json:"referral_id"`
	AuthorID   string    `json:"author_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

func toCommentResponse(c *repository.Comment) *commentResponse {
	return &commentResponse{
		ID:         c.ID,
		ReferralID: c.ReferralID,
		AuthorID:   c.AuthorID,
		Text:       c.Text,
		CreatedAt:  c.CreatedAt,
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}

	h.writeJSON(w, status, map[string]string{
		"error":   string(apperr.CodeOf(err)),
		"message": apperr.MessageOf(err),
	})
}
