package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/lexworks/be-referrals/internal/apperr"
	"github.com/lexworks/be-referrals/internal/platform/database"
)

// ApprovalRepository handles reads and the single decide mutation on approval
// records. Approval creation is handled by ReferralRepository.CreateWithApprovals
// (transactionally); nothing else ever writes an approval.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `
	id, referral_id, category, status,
	decided_by, decided_at, comments,
	created_at, updated_at
`

// GetByID returns a single approval record.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM referral_approvals WHERE id = $1`

	appr, err := r.scanApproval(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("approval", id)
	}
	return appr, err
}

// ListByReferral returns all approvals for a referral in category order.
func (r *ApprovalRepository) ListByReferral(ctx context.Context, referralID string) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM referral_approvals
		WHERE referral_id = $1
		ORDER BY category ASC
	`

	rows, err := r.db.Query(ctx, query, referralID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListPendingByCategories returns pending approvals whose category is in the
// given set, oldest first. Used to build an approver's work queue.
func (r *ApprovalRepository) ListPendingByCategories(ctx context.Context, cats []ApprovalCategory) ([]*Approval, error) {
	if len(cats) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + approvalColumns + `
		FROM referral_approvals
		WHERE status = 'pending'
		  AND category = ANY($1)
		ORDER BY created_at ASC
	`

	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, string(c))
	}

	rows, err := r.db.Query(ctx, query, names)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// Decide records the outcome of an approval decision. The update is conditional
// on the record still being pending; when a concurrent decision got there first
// the update matches zero rows and the caller gets a state conflict, never a
// silent success.
func (r *ApprovalRepository) Decide(
	ctx context.Context,
	id string,
	status ApprovalStatus,
	decidedBy string,
	comments *string,
) error {
	query := `
		UPDATE referral_approvals
		SET status     = $2::approval_status,
		    decided_by = $3,
		    decided_at = NOW(),
		    comments   = $4,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, decidedBy, comments).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.Conflict("approval has already been decided")
	}
	return err
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type approvalScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanApproval(row approvalScanner) (*Approval, error) {
	a := &Approval{}
	err := row.Scan(
		&a.ID,
		&a.ReferralID,
		&a.Category,
		&a.Status,
		&a.DecidedBy,
		&a.DecidedAt,
		&a.Comments,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *ApprovalRepository) scanRows(rows pgx.Rows) ([]*Approval, error) {
	var approvals []*Approval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
