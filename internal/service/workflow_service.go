package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexworks/be-referrals/internal/apperr"
	"github.com/lexworks/be-referrals/internal/policy"
	"github.com/lexworks/be-referrals/internal/repository"
)

// WorkflowService owns the referral lifecycle. It derives the required
// approval set at creation and is the single authority for referral status:
// no other code path sets status.
type WorkflowService struct {
	referrals ReferralStore
	approvals ApprovalStore
	policy    *policy.Table
	log       zerolog.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(
	referrals ReferralStore,
	approvals ApprovalStore,
	table *policy.Table,
	log zerolog.Logger,
) *WorkflowService {
	return &WorkflowService{
		referrals: referrals,
		approvals: approvals,
		policy:    table,
		log:       log,
	}
}

// CreateReferralRequest carries the creation inputs.
type CreateReferralRequest struct {
	CaseID           string
	ReferringActorID *string
	DestActorID      *string
	DestExternalName *string
	SourceCategory   string
	FeeCents         int64
	Reason           string
	ConsentObtained  bool
	Priority         string
	Deadline         *time.Time
	RiskScore        *int
}

// CreateReferral validates the request, derives the required approval
// categories from policy, and persists the referral together with exactly one
// pending approval per required category. Nothing is persisted on a
// validation failure.
func (s *WorkflowService) CreateReferral(ctx context.Context, req *CreateReferralRequest) (*repository.Referral, error) {
	if strings.TrimSpace(req.CaseID) == "" {
		return nil, apperr.InvalidInput("case_id", "case id is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperr.InvalidInput("reason", "reason is required")
	}
	if req.FeeCents < 0 {
		return nil, apperr.InvalidInput("fee_cents", "fee cannot be negative")
	}

	destActor := normalizeID(req.DestActorID)
	destExternal := normalizeID(req.DestExternalName)
	if (destActor == nil) == (destExternal == nil) {
		return nil, apperr.InvalidInput("destination",
			"exactly one of dest_actor_id and dest_external_name must be set")
	}

	sourceCategory, err := parseSourceCategory(req.SourceCategory)
	if err != nil {
		return nil, err
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	referring := normalizeID(req.ReferringActorID)

	required := s.policy.RequiredCategories(policy.ReferralAttributes{
		ReferringActorID: referring,
		DestActorID:      destActor,
		SourceCategory:   sourceCategory,
		FeeCents:         req.FeeCents,
		Priority:         priority,
		RiskScore:        req.RiskScore,
	})

	ref := &repository.Referral{
		ID:               uuid.New().String(),
		CaseID:           req.CaseID,
		ReferringActorID: referring,
		DestActorID:      destActor,
		DestExternalName: destExternal,
		SourceCategory:   sourceCategory,
		FeeCents:         req.FeeCents,
		Reason:           req.Reason,
		ConsentObtained:  req.ConsentObtained,
		Priority:         priority,
		Deadline:         req.Deadline,
		RiskScore:        req.RiskScore,
	}
	for _, cat := range required {
		switch cat {
		case repository.CategoryCaseManager:
			ref.RequiresCaseManager = true
		case repository.CategoryFirmAdmin:
			ref.RequiresFirmAdmin = true
		case repository.CategoryCompliance:
			ref.RequiresCompliance = true
		}
	}

	approvals := make([]*repository.Approval, 0, len(required))
	for _, cat := range required {
		approvals = append(approvals, &repository.Approval{
			ID:         uuid.New().String(),
			ReferralID: ref.ID,
			Category:   cat,
			Status:     repository.ApprovalPending,
		})
	}

	// Initial status runs through the same projection that recomputation uses,
	// so invariants 2-4 hold from the first write. A referral that triggers no
	// category is vacuously fully approved.
	ref.Status = ProjectStatus(approvals)
	ref.WorkflowStage = stageFor(ref.Status, approvals)

	if err := s.referrals.CreateWithApprovals(ctx, ref, approvals); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("referral_id", ref.ID).
		Str("case_id", ref.CaseID).
		Int("required_approvals", len(approvals)).
		Str("status", string(ref.Status)).
		Msg("Referral created")

	return ref, nil
}

// RecomputeStatus re-evaluates the referral's status from its approval set and
// persists the result. It is a pure projection and safe to re-run any number
// of times; every approval mutation is followed by a call here.
func (s *WorkflowService) RecomputeStatus(ctx context.Context, referralID string) (*repository.Referral, error) {
	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}

	approvals, err := s.approvals.ListByReferral(ctx, referralID)
	if err != nil {
		return nil, err
	}

	status := ProjectStatus(approvals)
	stage := stageFor(status, approvals)

	if err := s.referrals.SetStatus(ctx, referralID, status, stage); err != nil {
		return nil, err
	}

	ref.Status = status
	ref.WorkflowStage = stage
	return ref, nil
}

// GetReferral returns one referral.
func (s *WorkflowService) GetReferral(ctx context.Context, id string) (*repository.Referral, error) {
	return s.referrals.GetByID(ctx, id)
}

// ListReferrals returns referrals matching the filter.
func (s *WorkflowService) ListReferrals(ctx context.Context, filter repository.ReferralFilter) ([]*repository.Referral, error) {
	return s.referrals.List(ctx, filter)
}

// GetApprovals returns the approval set for a referral.
func (s *WorkflowService) GetApprovals(ctx context.Context, referralID string) ([]*repository.Approval, error) {
	if _, err := s.referrals.GetByID(ctx, referralID); err != nil {
		return nil, err
	}
	return s.approvals.ListByReferral(ctx, referralID)
}

// PendingApprovalsForRole returns the pending approvals an actor with the given
// role is permitted to decide, oldest first.
func (s *WorkflowService) PendingApprovalsForRole(ctx context.Context, role string) ([]*repository.Approval, error) {
	var cats []repository.ApprovalCategory
	for _, cat := range []repository.ApprovalCategory{
		repository.CategoryCaseManager,
		repository.CategoryFirmAdmin,
		repository.CategoryCompliance,
	} {
		if s.policy.RoleCanDecide(role, cat) {
			cats = append(cats, cat)
		}
	}
	if len(cats) == 0 {
		return nil, nil
	}
	return s.approvals.ListPendingByCategories(ctx, cats)
}

// ── status projection ─────────────────────────────────────────────────────────

// ProjectStatus derives a referral status from its approval set. Rejection
// dominates: one rejected approval makes the referral rejected regardless of
// the others, and later approvals cannot reverse it.
func ProjectStatus(approvals []*repository.Approval) repository.ReferralStatus {
	allApproved := true
	for _, appr := range approvals {
		switch appr.Status {
		case repository.ApprovalRejected:
			return repository.ReferralRejected
		case repository.ApprovalApproved:
		default:
			allApproved = false
		}
	}
	if allApproved {
		return repository.ReferralActive
	}
	return repository.ReferralPending
}

// stageFor renders the human-readable workflow stage. Display only; status is
// the source of truth.
func stageFor(status repository.ReferralStatus, approvals []*repository.Approval) string {
	switch status {
	case repository.ReferralRejected:
		return "rejected"
	case repository.ReferralActive, repository.ReferralFullyApproved:
		return "active"
	}
	for _, cat := range []repository.ApprovalCategory{
		repository.CategoryCaseManager,
		repository.CategoryFirmAdmin,
		repository.CategoryCompliance,
	} {
		for _, appr := range approvals {
			if appr.Category == cat && appr.Status == repository.ApprovalPending {
				return "pending_" + string(cat)
			}
		}
	}
	return "pending"
}

// ── input parsing helpers ─────────────────────────────────────────────────────

func normalizeID(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseSourceCategory(v string) (repository.SourceCategory, error) {
	switch repository.SourceCategory(strings.ToLower(v)) {
	case repository.SourceInternal:
		return repository.SourceInternal, nil
	case repository.SourceExternal:
		return repository.SourceExternal, nil
	case repository.SourceClient:
		return repository.SourceClient, nil
	case repository.SourceCourt:
		return repository.SourceCourt, nil
	}
	return "", apperr.InvalidInput("source_category", "must be one of internal, external, client, court")
}

func parsePriority(v string) (repository.Priority, error) {
	if v == "" {
		return repository.PriorityNormal, nil
	}
	switch repository.Priority(strings.ToLower(v)) {
	case repository.PriorityLow:
		return repository.PriorityLow, nil
	case repository.PriorityNormal:
		return repository.PriorityNormal, nil
	case repository.PriorityHigh:
		return repository.PriorityHigh, nil
	case repository.PriorityUrgent:
		return repository.PriorityUrgent, nil
	}
	return "", apperr.InvalidInput("priority", "must be one of low, normal, high, urgent")
}
