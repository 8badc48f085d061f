package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexworks/be-referrals/internal/apperr"
	"github.com/lexworks/be-referrals/internal/policy"
	"github.com/lexworks/be-referrals/internal/repository"
)

// Decision action values.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ApprovalService is the approval gate: the sole mutation entry point for
// approval records. Every applied decision is followed by a referral status
// recomputation.
type ApprovalService struct {
	approvals ApprovalStore
	workflow  *WorkflowService
	identity  IdentityClient
	policy    *policy.Table
	log       zerolog.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	approvals ApprovalStore,
	workflow *WorkflowService,
	identity IdentityClient,
	table *policy.Table,
	log zerolog.Logger,
) *ApprovalService {
	return &ApprovalService{
		approvals: approvals,
		workflow:  workflow,
		identity:  identity,
		policy:    table,
		log:       log,
	}
}

// SubmitDecisionRequest carries one approve/reject action.
type SubmitDecisionRequest struct {
	ApprovalID string
	ActorID    string
	Action     string
	Comments   *string
}

// SubmitDecision validates and applies a single decision, then returns the
// referral with its recomputed status. The actor's role is resolved through
// the identity provider, never taken from the caller. The write is a
// conditional update: losing a race to a concurrent decision surfaces as a
// state conflict, not a silent success.
func (s *ApprovalService) SubmitDecision(ctx context.Context, req *SubmitDecisionRequest) (*repository.Referral, error) {
	if req.Action != ActionApprove && req.Action != ActionReject {
		return nil, apperr.InvalidInput("action", "must be approve or reject")
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, apperr.InvalidInput("actor_id", "actor id is required")
	}

	appr, err := s.approvals.GetByID(ctx, req.ApprovalID)
	if err != nil {
		return nil, err
	}
	if appr.Status != repository.ApprovalPending {
		return nil, apperr.Conflict(
			fmt.Sprintf("approval is not pending (status: %s)", appr.Status))
	}

	role, err := s.identity.GetRole(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if !s.policy.RoleCanDecide(role, appr.Category) {
		return nil, apperr.Unauthorized(
			fmt.Sprintf("role %q may not decide %s approvals", role, appr.Category))
	}

	comments := trimComments(req.Comments)
	if req.Action == ActionReject && comments == nil {
		return nil, apperr.InvalidInput("comments", "a rejection requires a stated reason")
	}

	status := repository.ApprovalApproved
	if req.Action == ActionReject {
		status = repository.ApprovalRejected
	}

	if err := s.approvals.Decide(ctx, appr.ID, status, req.ActorID, comments); err != nil {
		// A lost conditional update means someone else decided first.
		return nil, err
	}

	ref, err := s.workflow.RecomputeStatus(ctx, appr.ReferralID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("approval_id", appr.ID).
		Str("referral_id", appr.ReferralID).
		Str("category", string(appr.Category)).
		Str("action", req.Action).
		Str("referral_status", string(ref.Status)).
		Msg("Approval decision applied")

	return ref, nil
}

// PendingForActor returns the pending approvals the actor may decide, using
// their resolved role.
func (s *ApprovalService) PendingForActor(ctx context.Context, actorID string) ([]*repository.Approval, error) {
	role, err := s.identity.GetRole(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.workflow.PendingApprovalsForRole(ctx, role)
}

func trimComments(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
