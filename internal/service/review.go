package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cinescope/review-service/internal/domain"
	"github.com/cinescope/review-service/internal/event"
	"github.com/cinescope/review-service/internal/repository"
	apperrors "github.com/cinescope/review-service/pkg/errors"
	"github.com/cinescope/review-service/pkg/pagination"
)

// TreeCache caches assembled per-target tree snapshots. All methods are
// best-effort; a nil cache disables caching.
type TreeCache interface {
	Get(ctx context.Context, targetID string) ([]*domain.ReviewNode, bool)
	Set(ctx context.Context, targetID string, roots []*domain.ReviewNode)
	Invalidate(ctx context.Context, targetID string)
	InvalidateAll(ctx context.Context)
}

// TitleResolver resolves display titles for catalog targets. A nil resolver
// leaves titles empty.
type TitleResolver interface {
	GetTitle(ctx context.Context, targetID string) (string, error)
}

// ReviewService implements the review boundary: validation, identity and
// ownership policy, tree mutation orchestration, and refreshed projections
// after every mutation.
type ReviewService struct {
	repo     repository.ReviewRepository
	producer *event.Producer
	cache    TreeCache
	catalog  TitleResolver
	logger   *slog.Logger
}

// NewReviewService creates a review service. cache and catalog may be nil.
func NewReviewService(repo repository.ReviewRepository, producer *event.Producer, cache TreeCache, catalog TitleResolver, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		repo:     repo,
		producer: producer,
		cache:    cache,
		catalog:  catalog,
		logger:   logger,
	}
}

// CreateReviewInput holds the parameters for creating a root review.
type CreateReviewInput struct {
	TargetID     string
	AuthorID     string
	AuthorName   string
	AuthorAvatar string
	Rating       int
	Body         string
}

// ReplyInput holds the parameters for replying to an existing node.
type ReplyInput struct {
	ParentID     string
	AuthorID     string
	AuthorName   string
	AuthorAvatar string
	Body         string
}

// UpdateReviewInput holds the parameters for editing a node. A nil Rating
// leaves the stored rating alone; replies ignore it entirely.
type UpdateReviewInput struct {
	NodeID      string
	RequesterID string
	Rating      *int
	Body        string
}

// ReviewProjection is the response shape per node, viewer-specific where the
// viewer is known.
type ReviewProjection struct {
	ID            string              `json:"id"`
	TargetID      string              `json:"target_id"`
	TargetTitle   string              `json:"target_title,omitempty"`
	ParentID      string              `json:"parent_id,omitempty"`
	AuthorID      string              `json:"author_id"`
	AuthorName    string              `json:"author_name"`
	AuthorAvatar  string              `json:"author_avatar,omitempty"`
	Rating        int                 `json:"rating,omitempty"`
	Body          string              `json:"body"`
	CreatedAt     time.Time           `json:"created_at"`
	EditedAt      *time.Time          `json:"edited_at,omitempty"`
	IsEdited      bool                `json:"is_edited"`
	LikesCount    int                 `json:"likes_count"`
	DislikesCount int                 `json:"dislikes_count"`
	UserAction    string              `json:"user_action,omitempty"`
	Children      []*ReviewProjection `json:"children"`
}

// CreateReview validates and stores a new root review, returning its
// projection.
func (s *ReviewService) CreateReview(ctx context.Context, input *CreateReviewInput) (*ReviewProjection, error) {
	if input.AuthorID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if input.TargetID == "" {
		return nil, apperrors.InvalidInput("target id is required")
	}
	if err := domain.ValidateBody(input.Body); err != nil {
		return nil, err
	}
	if err := domain.ValidateRating(input.Rating); err != nil {
		return nil, err
	}

	node := &domain.ReviewNode{
		ID:           uuid.New().String(),
		TargetID:     input.TargetID,
		TargetTitle:  s.resolveTitle(ctx, input.TargetID),
		AuthorID:     input.AuthorID,
		AuthorName:   input.AuthorName,
		AuthorAvatar: input.AuthorAvatar,
		Rating:       input.Rating,
		Body:         strings.TrimSpace(input.Body),
		CreatedAt:    time.Now().UTC(),
		Reactions:    domain.NewReactionLedger(),
	}

	if err := s.repo.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	s.invalidate(ctx, node.TargetID)

	if err := s.producer.PublishReviewCreated(ctx, node); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.created event",
			slog.String("review_id", node.ID),
			slog.String("error", err.Error()),
		)
		// Event publishing never fails the operation.
	}

	s.logger.InfoContext(ctx, "review created",
		slog.String("review_id", node.ID),
		slog.String("target_id", node.TargetID),
		slog.String("author_id", node.AuthorID),
	)

	return projectNode(node, input.AuthorID), nil
}

// Reply validates and stores a reply under an existing node at any depth.
func (s *ReviewService) Reply(ctx context.Context, input *ReplyInput) (*ReviewProjection, error) {
	if input.AuthorID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if input.ParentID == "" {
		return nil, apperrors.InvalidInput("parent id is required")
	}
	if err := domain.ValidateBody(input.Body); err != nil {
		return nil, err
	}

	node := &domain.ReviewNode{
		ID:           uuid.New().String(),
		ParentID:     input.ParentID,
		AuthorID:     input.AuthorID,
		AuthorName:   input.AuthorName,
		AuthorAvatar: input.AuthorAvatar,
		Body:         strings.TrimSpace(input.Body),
		CreatedAt:    time.Now().UTC(),
		Reactions:    domain.NewReactionLedger(),
	}

	if err := s.repo.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	s.invalidate(ctx, node.TargetID)

	if err := s.producer.PublishReviewReplied(ctx, node); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.replied event",
			slog.String("review_id", node.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reply created",
		slog.String("review_id", node.ID),
		slog.String("parent_id", node.ParentID),
		slog.String("target_id", node.TargetID),
	)

	return projectNode(node, input.AuthorID), nil
}

// UpdateReview edits a node's body (and rating for roots) after re-checking
// ownership server-side.
func (s *ReviewService) UpdateReview(ctx context.Context, input *UpdateReviewInput) (*ReviewProjection, error) {
	if input.RequesterID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if err := domain.ValidateBody(input.Body); err != nil {
		return nil, err
	}

	node, err := s.repo.GetByID(ctx, input.NodeID)
	if err != nil {
		return nil, err
	}
	if node.AuthorID != input.RequesterID {
		return nil, apperrors.Forbidden("only the author can edit a review")
	}

	if node.IsRoot() && input.Rating != nil {
		if err := domain.ValidateRating(*input.Rating); err != nil {
			return nil, err
		}
		node.Rating = *input.Rating
	}
	node.Body = strings.TrimSpace(input.Body)
	node.EditedAt = time.Now().UTC()
	node.IsEdited = true

	if err := s.repo.Update(ctx, node); err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	s.invalidate(ctx, node.TargetID)

	if err := s.producer.PublishReviewUpdated(ctx, node); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.updated event",
			slog.String("review_id", node.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review updated",
		slog.String("review_id", node.ID),
		slog.String("target_id", node.TargetID),
	)

	return projectNode(node, input.RequesterID), nil
}

// DeleteReview removes a node and its entire subtree after re-checking
// ownership, then returns the refreshed tree for the target.
func (s *ReviewService) DeleteReview(ctx context.Context, nodeID, requesterID string) ([]*ReviewProjection, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	node, err := s.repo.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.AuthorID != requesterID {
		return nil, apperrors.Forbidden("only the author can delete a review")
	}

	removed, err := s.repo.Delete(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("delete review: %w", err)
	}
	s.invalidate(ctx, node.TargetID)

	if err := s.producer.PublishReviewDeleted(ctx, node.TargetID, removed); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.deleted event",
			slog.String("review_id", nodeID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("review_id", nodeID),
		slog.String("target_id", node.TargetID),
		slog.Int("removed_count", len(removed)),
	)

	return s.ListByTarget(ctx, node.TargetID, requesterID)
}

// React toggles the user's like/dislike on a node and returns the node's
// refreshed projection.
func (s *ReviewService) React(ctx context.Context, nodeID, userID, rawKind string) (*ReviewProjection, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	kind, err := domain.ParseReactionKind(rawKind)
	if err != nil {
		return nil, err
	}

	delta, err := s.repo.React(ctx, nodeID, userID, kind)
	if err != nil {
		return nil, err
	}

	node, err := s.repo.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, node.TargetID)

	if err := s.producer.PublishReviewReacted(ctx, nodeID, node.TargetID, userID, kind, delta); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.reacted event",
			slog.String("review_id", nodeID),
			slog.String("error", err.Error()),
		)
	}

	return projectNode(node, userID), nil
}

// ListByTarget returns the target's full tree projection. viewerID may be
// empty for anonymous readers; it only affects user_action.
func (s *ReviewService) ListByTarget(ctx context.Context, targetID, viewerID string) ([]*ReviewProjection, error) {
	if targetID == "" {
		return nil, apperrors.InvalidInput("target id is required")
	}

	if s.cache != nil {
		if roots, ok := s.cache.Get(ctx, targetID); ok {
			return projectRoots(roots, viewerID), nil
		}
	}

	roots, err := s.repo.ListByTarget(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, targetID, roots)
	}

	return projectRoots(roots, viewerID), nil
}

// ListMyReviews returns the caller's own reviews and replies, newest first.
func (s *ReviewService) ListMyReviews(ctx context.Context, authorID string, params pagination.Params) (*pagination.Result[*ReviewProjection], error) {
	if authorID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if params.PerPage <= 0 {
		params = pagination.DefaultParams()
	}

	nodes, total, err := s.repo.ListByAuthor(ctx, authorID, params.PerPage, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews by author: %w", err)
	}

	projections := make([]*ReviewProjection, 0, len(nodes))
	for _, n := range nodes {
		projections = append(projections, projectNode(n, authorID))
	}

	result := pagination.NewResult(projections, total, params)
	return &result, nil
}

// PurgeUserReactions removes every reaction by the given user. Admin
// operation; the role check lives at the transport boundary.
func (s *ReviewService) PurgeUserReactions(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, apperrors.InvalidInput("user id is required")
	}

	affected, err := s.repo.RemoveUserReactions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("purge user reactions: %w", err)
	}
	if s.cache != nil {
		s.cache.InvalidateAll(ctx)
	}

	s.logger.InfoContext(ctx, "user reactions purged",
		slog.String("user_id", userID),
		slog.Int("affected", affected),
	)
	return affected, nil
}

func (s *ReviewService) resolveTitle(ctx context.Context, targetID string) string {
	if s.catalog == nil {
		return ""
	}
	title, err := s.catalog.GetTitle(ctx, targetID)
	if err != nil {
		// Title is a display label only; reviews are accepted without it.
		s.logger.WarnContext(ctx, "failed to resolve target title",
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return title
}

func (s *ReviewService) invalidate(ctx context.Context, targetID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, targetID)
	}
}

func projectRoots(roots []*domain.ReviewNode, viewerID string) []*ReviewProjection {
	out := make([]*ReviewProjection, 0, len(roots))
	for _, n := range roots {
		out = append(out, projectNode(n, viewerID))
	}
	return out
}

// projectNode converts a node subtree into its response shape with an
// explicit stack, so projection depth mirrors storage depth without relying
// on call-stack headroom.
func projectNode(node *domain.ReviewNode, viewerID string) *ReviewProjection {
	root := projectOne(node, viewerID)

	type frame struct {
		src *domain.ReviewNode
		dst *ReviewProjection
	}
	stack := []frame{{src: node, dst: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range f.src.Children {
			childProj := projectOne(child, viewerID)
			f.dst.Children = append(f.dst.Children, childProj)
			stack = append(stack, frame{src: child, dst: childProj})
		}
	}
	return root
}

func projectOne(n *domain.ReviewNode, viewerID string) *ReviewProjection {
	p := &ReviewProjection{
		ID:           n.ID,
		TargetID:     n.TargetID,
		TargetTitle:  n.TargetTitle,
		ParentID:     n.ParentID,
		AuthorID:     n.AuthorID,
		AuthorName:   n.AuthorName,
		AuthorAvatar: n.AuthorAvatar,
		Rating:       n.Rating,
		Body:         n.Body,
		CreatedAt:    n.CreatedAt,
		IsEdited:     n.IsEdited,
		Children:     []*ReviewProjection{},
	}
	if !n.EditedAt.IsZero() {
		editedAt := n.EditedAt
		p.EditedAt = &editedAt
	}
	if n.Reactions != nil {
		p.LikesCount = n.Reactions.LikesCount()
		p.DislikesCount = n.Reactions.DislikesCount()
		if viewerID != "" {
			p.UserAction = n.Reactions.UserAction(viewerID)
		}
	}
	return p
}
