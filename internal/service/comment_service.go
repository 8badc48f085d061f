package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexworks/be-referrals/internal/apperr"
	"github.com/lexworks/be-referrals/internal/repository"
)

// CommentService maintains the append-only annotation trail beside a referral.
// It has no coupling to the approval state machine.
type CommentService struct {
	comments  CommentStore
	referrals ReferralStore
	log       zerolog.Logger
}

// NewCommentService creates a new CommentService.
func NewCommentService(comments CommentStore, referrals ReferralStore, log zerolog.Logger) *CommentService {
	return &CommentService{comments: comments, referrals: referrals, log: log}
}

// AddComment appends one comment to a referral's trail.
func (s *CommentService) AddComment(ctx context.Context, referralID, authorID, text string) (*repository.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.InvalidInput("text", "comment text is required")
	}
	if strings.TrimSpace(authorID) == "" {
		return nil, apperr.InvalidInput("author_id", "author id is required")
	}
	if _, err := s.referrals.GetByID(ctx, referralID); err != nil {
		return nil, err
	}

	c := &repository.Comment{
		ID:         uuid.New().String(),
		ReferralID: referralID,
		AuthorID:   authorID,
		Text:       text,
	}
	if err := s.comments.Append(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns the trail in insertion order.
func (s *CommentService) ListComments(ctx context.Context, referralID string) ([]*repository.Comment, error) {
	if _, err := s.referrals.GetByID(ctx, referralID); err != nil {
		return nil, err
	}
	return s.comments.ListByReferral(ctx, referralID)
}
