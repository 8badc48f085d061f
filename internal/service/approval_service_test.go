package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lexworks/be-referrals/internal/apperr"
	"github.com/lexworks/be-referrals/internal/client"
	"github.com/lexworks/be-referrals/internal/policy"
	"github.com/lexworks/be-referrals/internal/repository"
)

type gateFixture struct {
	workflow *WorkflowService
	gate     *ApprovalService
	store    *repository.MemoryStore
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	table := policy.Default()
	identity := client.NewStaticDirectory(map[string]string{
		"cm-1":      "case_manager",
		"fa-1":      "firm_admin",
		"co-1":      "compliance_officer",
		"partner-1": "managing_partner",
		"pl-1":      "paralegal",
	})
	workflow := NewWorkflowService(store.Referrals(), store.Approvals(), table, zerolog.Nop())
	gate := NewApprovalService(store.Approvals(), workflow, identity, table, zerolog.Nop())
	return &gateFixture{workflow: workflow, gate: gate, store: store}
}

// twoStepReferral creates a referral that needs case_manager and firm_admin
// sign-off and returns it with its approvals keyed by category.
func (f *gateFixture) twoStepReferral(t *testing.T) (*repository.Referral, map[repository.ApprovalCategory]*repository.Approval) {
	t.Helper()
	req := crossAttorneyRequest()
	req.FeeCents = 100

	ref, err := f.workflow.CreateReferral(context.Background(), req)
	require.NoError(t, err)

	approvals, err := f.store.Approvals().ListByReferral(context.Background(), ref.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 2)

	byCategory := make(map[repository.ApprovalCategory]*repository.Approval, len(approvals))
	for _, appr := range approvals {
		byCategory[appr.Category] = appr
	}
	return ref, byCategory
}

func decision(approvalID, actorID, action string) *SubmitDecisionRequest {
	return &SubmitDecisionRequest{ApprovalID: approvalID, ActorID: actorID, Action: action}
}

func TestSubmitDecisionOrderIndependence(t *testing.T) {
	orders := []struct {
		name  string
		first repository.ApprovalCategory
	}{
		{"case manager first", repository.CategoryCaseManager},
		{"firm admin first", repository.CategoryFirmAdmin},
	}
	for _, tc := range orders {
		t.Run(tc.name, func(t *testing.T) {
			f := newGateFixture(t)
			ctx := context.Background()
			_, byCat := f.twoStepReferral(t)

			second := repository.CategoryFirmAdmin
			if tc.first == second {
				second = repository.CategoryCaseManager
			}
			actors := map[repository.ApprovalCategory]string{
				repository.CategoryCaseManager: "cm-1",
				repository.CategoryFirmAdmin:   "fa-1",
			}

			ref, err := f.gate.SubmitDecision(ctx, decision(byCat[tc.first].ID, actors[tc.first], ActionApprove))
			require.NoError(t, err)
			require.Equal(t, repository.ReferralPending, ref.Status)

			ref, err = f.gate.SubmitDecision(ctx, decision(byCat[second].ID, actors[second], ActionApprove))
			require.NoError(t, err)
			require.Equal(t, repository.ReferralActive, ref.Status)
		})
	}
}

func TestSubmitDecisionRejectionIsSticky(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	_, byCat := f.twoStepReferral(t)

	req := decision(byCat[repository.CategoryCaseManager].ID, "cm-1", ActionReject)
	req.Comments = strptr("conflict of interest with the receiving attorney")
	ref, err := f.gate.SubmitDecision(ctx, req)
	require.NoError(t, err)
	require.Equal(t, repository.ReferralRejected, ref.Status)

	// The other approval can still be decided, but it cannot revive the referral.
	ref, err = f.gate.SubmitDecision(ctx, decision(byCat[repository.CategoryFirmAdmin].ID, "fa-1", ActionApprove))
	require.NoError(t, err)
	require.Equal(t, repository.ReferralRejected, ref.Status)
	require.Equal(t, "rejected", ref.WorkflowStage)
}

func TestSubmitDecisionRejectRequiresComments(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	_, byCat := f.twoStepReferral(t)
	target := byCat[repository.CategoryCaseManager]

	for _, comments := range []*string{nil, strptr("   ")} {
		req := decision(target.ID, "cm-1", ActionReject)
		req.Comments = comments
		_, err := f.gate.SubmitDecision(ctx, req)
		require.True(t, apperr.IsCode(err, apperr.CodeValidation), "got %v", err)
	}

	// Nothing was applied.
	appr, err := f.store.Approvals().GetByID(ctx, target.ID)
	require.NoError(t, err)
	require.Equal(t, repository.ApprovalPending, appr.Status)
}

func TestSubmitDecisionTwiceConflicts(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	_, byCat := f.twoStepReferral(t)
	target := byCat[repository.CategoryCaseManager]

	_, err := f.gate.SubmitDecision(ctx, decision(target.ID, "cm-1", ActionApprove))
	require.NoError(t, err)

	decided, err := f.store.Approvals().GetByID(ctx, target.ID)
	require.NoError(t, err)

	req := decision(target.ID, "partner-1", ActionReject)
	req.Comments = strptr("second thoughts")
	_, err = f.gate.SubmitDecision(ctx, req)
	require.True(t, apperr.IsCode(err, apperr.CodeConflict), "got %v", err)

	// The first decision stands untouched.
	unchanged, err := f.store.Approvals().GetByID(ctx, target.ID)
	require.NoError(t, err)
	require.Equal(t, repository.ApprovalApproved, unchanged.Status)
	require.Equal(t, "cm-1", *unchanged.DecidedBy)
	require.Equal(t, *decided.DecidedAt, *unchanged.DecidedAt)
}

func TestSubmitDecisionRoleChecks(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	_, byCat := f.twoStepReferral(t)

	// A paralegal may not decide anything.
	_, err := f.gate.SubmitDecision(ctx, decision(byCat[repository.CategoryCaseManager].ID, "pl-1", ActionApprove))
	require.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "got %v", err)

	// A firm admin may not decide a case-manager approval.
	_, err = f.gate.SubmitDecision(ctx, decision(byCat[repository.CategoryCaseManager].ID, "fa-1", ActionApprove))
	require.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "got %v", err)

	// A managing partner may decide either category.
	_, err = f.gate.SubmitDecision(ctx, decision(byCat[repository.CategoryCaseManager].ID, "partner-1", ActionApprove))
	require.NoError(t, err)
	ref, err := f.gate.SubmitDecision(ctx, decision(byCat[repository.CategoryFirmAdmin].ID, "partner-1", ActionApprove))
	require.NoError(t, err)
	require.Equal(t, repository.ReferralActive, ref.Status)
}

func TestSubmitDecisionUnknowns(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	_, byCat := f.twoStepReferral(t)

	_, err := f.gate.SubmitDecision(ctx, decision("missing", "cm-1", ActionApprove))
	require.True(t, apperr.IsCode(err, apperr.CodeNotFound), "got %v", err)

	_, err = f.gate.SubmitDecision(ctx, decision(byCat[repository.CategoryCaseManager].ID, "stranger", ActionApprove))
	require.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "got %v", err)

	_, err = f.gate.SubmitDecision(ctx, decision(byCat[repository.CategoryCaseManager].ID, "cm-1", "defer"))
	require.True(t, apperr.IsCode(err, apperr.CodeValidation), "got %v", err)
}

func TestPendingForActor(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	f.twoStepReferral(t)

	pending, err := f.gate.PendingForActor(ctx, "partner-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	pending, err = f.gate.PendingForActor(ctx, "cm-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.gate.PendingForActor(ctx, "stranger")
	require.True(t, apperr.IsCode(err, apperr.CodeUnauthorized), "got %v", err)
}
