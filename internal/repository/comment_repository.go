package repository

import (
	"context"

	"github.com/lexworks/be-referrals/internal/apperr"
	"github.com/lexworks/be-referrals/internal/platform/database"
)

// CommentRepository appends and reads the per-referral annotation trail.
// Comments are append-only; there is no update or delete.
type CommentRepository struct {
	db *database.DB
}

// NewCommentRepository creates a new CommentRepository.
func NewCommentRepository(db *database.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Append inserts one comment.
func (r *CommentRepository) Append(ctx context.Context, c *Comment) error {
	query := `
		INSERT INTO referral_comments
		    (id, referral_id, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	return r.db.QueryRow(ctx, query,
		c.ID,
		c.ReferralID,
		c.AuthorID,
		c.Text,
	).Scan(&c.CreatedAt)
}

// ListByReferral returns the full trail for a referral in insertion order.
func (r *CommentRepository) ListByReferral(ctx context.Context, referralID string) ([]*Comment, error) {
	query := `
		SELECT id, referral_id, author_id, body, created_at
		FROM referral_comments
		WHERE referral_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, referralID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list comments")
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.ID, &c.ReferralID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan comment")
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
