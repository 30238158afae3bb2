package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/cinescope/review-service/pkg/errors"
)

const (
	// Body length bounds, counted in runes of the trimmed body.
	BodyMinLen = 10
	BodyMaxLen = 1000

	RatingMin = 1
	RatingMax = 10
)

// ReviewNode represents one review or reply. Root reviews carry a rating and
// an optional target title; replies inherit the target and carry neither.
type ReviewNode struct {
	ID           string          `json:"id"`
	TargetID     string          `json:"target_id"`
	TargetTitle  string          `json:"target_title,omitempty"`
	ParentID     string          `json:"parent_id,omitempty"`
	AuthorID     string          `json:"author_id"`
	AuthorName   string          `json:"author_name"`
	AuthorAvatar string          `json:"author_avatar,omitempty"`
	Rating       int             `json:"rating,omitempty"`
	Body         string          `json:"body"`
	CreatedAt    time.Time       `json:"created_at"`
	EditedAt     time.Time       `json:"edited_at,omitempty"`
	IsEdited     bool            `json:"is_edited"`
	Reactions    *ReactionLedger `json:"-"`
	Children     []*ReviewNode   `json:"children"`
}

// IsRoot reports whether the node is a top-level review.
func (n *ReviewNode) IsRoot() bool {
	return n.ParentID == ""
}

// ValidateBody checks the trimmed body against the length bounds.
func ValidateBody(body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return apperrors.Validation(apperrors.CodeBodyEmpty, "review body must not be empty")
	}
	switch n := utf8.RuneCountInString(trimmed); {
	case n < BodyMinLen:
		return apperrors.Validation(apperrors.CodeBodyTooShort, "review body must be at least 10 characters")
	case n > BodyMaxLen:
		return apperrors.Validation(apperrors.CodeBodyTooLong, "review body must be at most 1000 characters")
	}
	return nil
}

// ValidateRating checks that a root review rating is within 1..10.
func ValidateRating(rating int) error {
	if rating < RatingMin || rating > RatingMax {
		return apperrors.Validation(apperrors.CodeInvalidRating, "rating must be between 1 and 10")
	}
	return nil
}
