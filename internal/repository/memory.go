package repository

import (
	"context"
	"sync"
	"time"

	"github.com/lexworks/be-referrals/internal/apperr"
)

// MemoryStore is the in-memory twin of the postgres repositories. It backs
// unit tests and driverless runs with the same conditional-update semantics:
// deciding a non-pending approval fails with a state conflict, never a silent
// success.
type MemoryStore struct {
	mu            sync.RWMutex
	referrals     map[string]*Referral
	referralOrder []string
	approvals     map[string]*Approval
	approvalOrder []string
	comments      map[string][]*Comment
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		referrals: make(map[string]*Referral),
		approvals: make(map[string]*Approval),
		comments:  make(map[string][]*Comment),
	}
}

// Referrals returns the referral-store view.
func (s *MemoryStore) Referrals() *MemoryReferralStore { return &MemoryReferralStore{s: s} }

// Approvals returns the approval-store view.
func (s *MemoryStore) Approvals() *MemoryApprovalStore { return &MemoryApprovalStore{s: s} }

// Comments returns the comment-store view.
func (s *MemoryStore) Comments() *MemoryCommentStore { return &MemoryCommentStore{s: s} }

// ── referrals ─────────────────────────────────────────────────────────────────

// MemoryReferralStore implements the referral store against a MemoryStore.
type MemoryReferralStore struct {
	s *MemoryStore
}

// CreateWithApprovals stores a referral and its approvals atomically under one lock.
func (m *MemoryReferralStore) CreateWithApprovals(ctx context.Context, ref *Referral, approvals []*Approval) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, exists := m.s.referrals[ref.ID]; exists {
		return apperr.Conflict("referral already exists")
	}

	now := time.Now().UTC()
	ref.CreatedAt = now
	ref.UpdatedAt = now
	stored := *ref
	m.s.referrals[ref.ID] = &stored
	m.s.referralOrder = append(m.s.referralOrder, ref.ID)

	for _, appr := range approvals {
		appr.ReferralID = ref.ID
		appr.CreatedAt = now
		appr.UpdatedAt = now
		a := *appr
		m.s.approvals[appr.ID] = &a
		m.s.approvalOrder = append(m.s.approvalOrder, appr.ID)
	}
	return nil
}

// GetByID returns a copy of the referral.
func (m *MemoryReferralStore) GetByID(ctx context.Context, id string) (*Referral, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	ref, ok := m.s.referrals[id]
	if !ok {
		return nil, apperr.NotFound("referral", id)
	}
	cp := *ref
	return &cp, nil
}

// List returns matching referrals, newest first.
func (m *MemoryReferralStore) List(ctx context.Context, filter ReferralFilter) ([]*Referral, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var refs []*Referral
	for i := len(m.s.referralOrder) - 1; i >= 0; i-- {
		ref := m.s.referrals[m.s.referralOrder[i]]
		if !matchesFilter(ref, filter) {
			continue
		}
		cp := *ref
		refs = append(refs, &cp)
	}
	return refs, nil
}

func matchesFilter(ref *Referral, f ReferralFilter) bool {
	if f.Status != nil && ref.Status != *f.Status {
		return false
	}
	if f.DestActorID != nil && (ref.DestActorID == nil || *ref.DestActorID != *f.DestActorID) {
		return false
	}
	if f.ReferringActorID != nil && (ref.ReferringActorID == nil || *ref.ReferringActorID != *f.ReferringActorID) {
		return false
	}
	if f.CaseID != nil && ref.CaseID != *f.CaseID {
		return false
	}
	return true
}

// SetStatus persists a recomputed status and stage.
func (m *MemoryReferralStore) SetStatus(ctx context.Context, id string, status ReferralStatus, stage string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	ref, ok := m.s.referrals[id]
	if !ok {
		return apperr.NotFound("referral", id)
	}
	ref.Status = status
	ref.WorkflowStage = stage
	ref.UpdatedAt = time.Now().UTC()
	return nil
}

// ── approvals ─────────────────────────────────────────────────────────────────

// MemoryApprovalStore implements the approval store against a MemoryStore.
type MemoryApprovalStore struct {
	s *MemoryStore
}

// GetByID returns a copy of the approval.
func (m *MemoryApprovalStore) GetByID(ctx context.Context, id string) (*Approval, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	appr, ok := m.s.approvals[id]
	if !ok {
		return nil, apperr.NotFound("approval", id)
	}
	cp := *appr
	return &cp, nil
}

// ListByReferral returns all approvals owned by a referral in creation order.
func (m *MemoryApprovalStore) ListByReferral(ctx context.Context, referralID string) ([]*Approval, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var approvals []*Approval
	for _, id := range m.s.approvalOrder {
		appr := m.s.approvals[id]
		if appr.ReferralID != referralID {
			continue
		}
		cp := *appr
		approvals = append(approvals, &cp)
	}
	return approvals, nil
}

// ListPendingByCategories returns pending approvals in the category set, oldest first.
func (m *MemoryApprovalStore) ListPendingByCategories(ctx context.Context, cats []ApprovalCategory) ([]*Approval, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	allowed := make(map[ApprovalCategory]struct{}, len(cats))
	for _, c := range cats {
		allowed[c] = struct{}{}
	}

	var approvals []*Approval
	for _, id := range m.s.approvalOrder {
		appr := m.s.approvals[id]
		if appr.Status != ApprovalPending {
			continue
		}
		if _, ok := allowed[appr.Category]; !ok {
			continue
		}
		cp := *appr
		approvals = append(approvals, &cp)
	}
	return approvals, nil
}

// Decide applies a decision iff the approval is still pending. The check and
// the write happen under a single lock, matching the postgres repository's
// conditional update.
func (m *MemoryApprovalStore) Decide(
	ctx context.Context,
	id string,
	status ApprovalStatus,
	decidedBy string,
	comments *string,
) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	appr, ok := m.s.approvals[id]
	if !ok {
		return apperr.NotFound("approval", id)
	}
	if appr.Status != ApprovalPending {
		return apperr.Conflict("approval has already been decided")
	}

	now := time.Now().UTC()
	appr.Status = status
	appr.DecidedBy = &decidedBy
	appr.DecidedAt = &now
	appr.Comments = comments
	appr.UpdatedAt = now
	return nil
}

// ── comments ──────────────────────────────────────────────────────────────────

// MemoryCommentStore implements the comment store against a MemoryStore.
type MemoryCommentStore struct {
	s *MemoryStore
}

// Append stores one comment at the end of the referral's trail.
func (m *MemoryCommentStore) Append(ctx context.Context, c *Comment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	c.CreatedAt = time.Now().UTC()
	cp := *c
	m.s.comments[c.ReferralID] = append(m.s.comments[c.ReferralID], &cp)
	return nil
}

// ListByReferral returns the trail in insertion order.
func (m *MemoryCommentStore) ListByReferral(ctx context.Context, referralID string) ([]*Comment, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	trail := m.s.comments[referralID]
	comments := make([]*Comment, 0, len(trail))
	for _, c := range trail {
		cp := *c
		comments = append(comments, &cp)
	}
	return comments, nil
}
