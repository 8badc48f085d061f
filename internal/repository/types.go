package repository

import "time"

// ── Domain types for the referral workflow ───────────────────────────────────

// SourceCategory classifies where a referral originated.
type SourceCategory string

const (
	SourceInternal SourceCategory = "internal"
	SourceExternal SourceCategory = "external"
	SourceClient   SourceCategory = "client"
	SourceCourt    SourceCategory = "court"
)

// Priority is the referral's handling priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ReferralStatus is derived from the referral's approval set and is only ever
// written by the workflow service's status recomputation.
type ReferralStatus string

const (
	ReferralPending       ReferralStatus = "pending"
	ReferralFullyApproved ReferralStatus = "fully_approved"
	ReferralRejected      ReferralStatus = "rejected"
	ReferralActive        ReferralStatus = "active"
)

// Terminal reports whether no further approval decision can change the status.
func (s ReferralStatus) Terminal() bool {
	return s == ReferralRejected || s == ReferralFullyApproved || s == ReferralActive
}

// ApprovalCategory is a class of required sign-off on a referral.
type ApprovalCategory string

const (
	CategoryCaseManager ApprovalCategory = "case_manager"
	CategoryFirmAdmin   ApprovalCategory = "firm_admin"
	CategoryCompliance  ApprovalCategory = "compliance"
)

// ApprovalStatus is the state of a single sign-off record. Non-pending states
// are terminal; a decided approval is never re-decided.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Referral is a request to move responsibility for a case to another party.
// Exactly one of DestActorID / DestExternalName is set. The Requires* flags
// are computed once at creation from policy and never change.
type Referral struct {
	ID               string
	CaseID           string
	ReferringActorID *string // nil when the referral originated outside the firm
	DestActorID      *string
	DestExternalName *string
	SourceCategory   SourceCategory
	FeeCents         int64
	Reason           string
	ConsentObtained  bool
	Priority         Priority
	Deadline         *time.Time
	RiskScore        *int

	RequiresCaseManager bool
	RequiresFirmAdmin   bool
	RequiresCompliance  bool

	Status        ReferralStatus
	WorkflowStage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RequiredCategories returns the categories derived at creation, in display order.
func (r *Referral) RequiredCategories() []ApprovalCategory {
	var cats []ApprovalCategory
	if r.RequiresCaseManager {
		cats = append(cats, CategoryCaseManager)
	}
	if r.RequiresFirmAdmin {
		cats = append(cats, CategoryFirmAdmin)
	}
	if r.RequiresCompliance {
		cats = append(cats, CategoryCompliance)
	}
	return cats
}

// Approval is one required sign-off record on a referral. One is created per
// required category at referral creation; it is decided at most once.
type Approval struct {
	ID         string
	ReferralID string
	Category   ApprovalCategory
	Status     ApprovalStatus
	DecidedBy  *string
	DecidedAt  *time.Time
	Comments   *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Comment is one append-only annotation on a referral's trail.
type Comment struct {
	ID         string
	ReferralID string
	AuthorID   string
	Text       string
	CreatedAt  time.Time
}

// ReferralFilter narrows referral list queries.
type ReferralFilter struct {
	Status           *ReferralStatus
	DestActorID      *string
	ReferringActorID *string
	CaseID           *string
}
