package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lexworks/be-referrals/internal/apperr"
	"github.com/lexworks/be-referrals/internal/platform/database"
)

// ReferralRepository manages referral records and their approval sets.
// Referral + approval creation is always done together in a single transaction
// so a partial referral is never persisted.
type ReferralRepository struct {
	db *database.DB
}

// NewReferralRepository creates a new ReferralRepository.
func NewReferralRepository(db *database.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// CreateWithApprovals inserts a referral and its pending approvals in one
// transaction.
func (r *ReferralRepository) CreateWithApprovals(ctx context.Context, ref *Referral, approvals []*Approval) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		refQuery := `
			INSERT INTO referrals
			    (id, case_id, referring_actor_id,
			     dest_actor_id, dest_external_name,
			     source_category, fee_cents, reason, consent_obtained,
			     priority, deadline, risk_score,
			     requires_case_manager, requires_firm_admin, requires_compliance,
			     status, workflow_stage)
			VALUES ($1, $2, $3,
			        $4, $5,
			        $6::referral_source_category, $7, $8, $9,
			        $10::referral_priority, $11, $12,
			        $13, $14, $15,
			        $16::referral_status, $17)
			RETURNING created_at, updated_at
		`

		err := tx.QueryRow(ctx, refQuery,
			ref.ID,
			ref.CaseID,
			ref.ReferringActorID,
			ref.DestActorID,
			ref.DestExternalName,
			ref.SourceCategory,
			ref.FeeCents,
			ref.Reason,
			ref.ConsentObtained,
			ref.Priority,
			ref.Deadline,
			ref.RiskScore,
			ref.RequiresCaseManager,
			ref.RequiresFirmAdmin,
			ref.RequiresCompliance,
			ref.Status,
			ref.WorkflowStage,
		).Scan(&ref.CreatedAt, &ref.UpdatedAt)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to create referral")
		}

		apprQuery := `
			INSERT INTO referral_approvals
			    (id, referral_id, category, status)
			VALUES ($1, $2, $3::approval_category, $4::approval_status)
			RETURNING created_at, updated_at
		`

		for _, appr := range approvals {
			appr.ReferralID = ref.ID
			err := tx.QueryRow(ctx, apprQuery,
				appr.ID,
				appr.ReferralID,
				appr.Category,
				appr.Status,
			).Scan(&appr.CreatedAt, &appr.UpdatedAt)
			if err != nil {
				return apperr.Wrap(err, apperr.CodeInternal, "failed to create approval")
			}
		}

		return nil
	})
}

const referralColumns = `
	id, case_id, referring_actor_id,
	dest_actor_id, dest_external_name,
	source_category, fee_cents, reason, consent_obtained,
	priority, deadline, risk_score,
	requires_case_manager, requires_firm_admin, requires_compliance,
	status, workflow_stage,
	created_at, updated_at
`

// GetByID retrieves a referral by primary key.
func (r *ReferralRepository) GetByID(ctx context.Context, id string) (*Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE id = $1`

	ref, err := r.scanReferral(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("referral", id)
	}
	return ref, err
}

// List returns referrals matching the filter, newest first.
func (r *ReferralRepository) List(ctx context.Context, filter ReferralFilter) ([]*Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE 1=1`
	var args []any

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d::referral_status", len(args))
	}
	if filter.DestActorID != nil {
		args = append(args, *filter.DestActorID)
		query += fmt.Sprintf(" AND dest_actor_id = $%d", len(args))
	}
	if filter.ReferringActorID != nil {
		args = append(args, *filter.ReferringActorID)
		query += fmt.Sprintf(" AND referring_actor_id = $%d", len(args))
	}
	if filter.CaseID != nil {
		args = append(args, *filter.CaseID)
		query += fmt.Sprintf(" AND case_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list referrals")
	}
	defer rows.Close()

	var refs []*Referral
	for rows.Next() {
		ref, err := r.scanReferral(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan referral")
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// SetStatus persists a recomputed status and workflow stage. Only the workflow
// service's status recomputation calls this.
func (r *ReferralRepository) SetStatus(ctx context.Context, id string, status ReferralStatus, stage string) error {
	query := `
		UPDATE referrals
		SET status         = $2::referral_status,
		    workflow_stage = $3,
		    updated_at     = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, stage).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("referral", id)
	}
	return err
}

// ── scan helper ───────────────────────────────────────────────────────────────

type referralScanner interface {
	Scan(dest ...any) error
}

func (r *ReferralRepository) scanReferral(row referralScanner) (*Referral, error) {
	ref := &Referral{}
	err := row.Scan(
		&ref.ID,
		&ref.CaseID,
		&ref.ReferringActorID,
		&ref.DestActorID,
		&ref.DestExternalName,
		&ref.SourceCategory,
		&ref.FeeCents,
		&ref.Reason,
		&ref.ConsentObtained,
		&ref.Priority,
		&ref.Deadline,
		&ref.RiskScore,
		&ref.RequiresCaseManager,
		&ref.RequiresFirmAdmin,
		&ref.RequiresCompliance,
		&ref.Status,
		&ref.WorkflowStage,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ref, nil
}
