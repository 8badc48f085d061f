package service

import (
	"context"

	"github.com/lexworks/be-referrals/internal/repository"
)

// ReferralStore is the record-store surface the workflow engine consumes.
// Creation must be atomic: either the referral and its full approval set land
// or nothing does.
type ReferralStore interface {
	CreateWithApprovals(ctx context.Context, ref *repository.Referral, approvals []*repository.Approval) error
	GetByID(ctx context.Context, id string) (*repository.Referral, error)
	List(ctx context.Context, filter repository.ReferralFilter) ([]*repository.Referral, error)
	SetStatus(ctx context.Context, id string, status repository.ReferralStatus, stage string) error
}

// ApprovalStore reads approvals and applies the one decide mutation. Decide
// must be conditional on the record still being pending and must fail with a
// state conflict when it is not.
type ApprovalStore interface {
	GetByID(ctx context.Context, id string) (*repository.Approval, error)
	ListByReferral(ctx context.Context, referralID string) ([]*repository.Approval, error)
	ListPendingByCategories(ctx context.Context, cats []repository.ApprovalCategory) ([]*repository.Approval, error)
	Decide(ctx context.Context, id string, status repository.ApprovalStatus, decidedBy string, comments *string) error
}

// CommentStore is the append-only annotation trail.
type CommentStore interface {
	Append(ctx context.Context, c *repository.Comment) error
	ListByReferral(ctx context.Context, referralID string) ([]*repository.Comment, error)
}

// IdentityClient resolves an actor's current role. The engine never trusts a
// caller-supplied role without this resolution.
type IdentityClient interface {
	GetRole(ctx context.Context, actorID string) (string, error)
}
