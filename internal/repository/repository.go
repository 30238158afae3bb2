package repository

import (
	"context"

	"github.com/cinescope/review-service/internal/domain"
)

// ReviewRepository is the persistence boundary for review trees. Backends
// must keep the reaction exclusivity and cascade-delete invariants regardless
// of storage engine.
type ReviewRepository interface {
	// Create stores a new node. Roots need no parent; replies must name an
	// existing parent and inherit its target.
	Create(ctx context.Context, node *domain.ReviewNode) error

	// GetByID returns the node with its ledger populated and children empty.
	GetByID(ctx context.Context, id string) (*domain.ReviewNode, error)

	// Update persists body, rating, and edit metadata of an existing node.
	Update(ctx context.Context, node *domain.ReviewNode) error

	// Delete removes the node and its entire subtree, returning the removed
	// ids (the given node first).
	Delete(ctx context.Context, id string) ([]string, error)

	// React applies the idempotent like/dislike toggle atomically and
	// returns the resulting counts and user state.
	React(ctx context.Context, nodeID, userID string, kind domain.ReactionKind) (domain.LedgerDelta, error)

	// ListByTarget returns the target's root nodes in creation order, each
	// with its full nested subtree and ledgers populated.
	ListByTarget(ctx context.Context, targetID string) ([]*domain.ReviewNode, error)

	// ListByAuthor returns the author's nodes newest first, with the total
	// count for pagination. Children are not populated.
	ListByAuthor(ctx context.Context, authorID string, limit, offset int) ([]*domain.ReviewNode, int, error)

	// RemoveUserReactions drops every reaction by the user across all
	// targets, returning how many nodes were affected.
	RemoveUserReactions(ctx context.Context, userID string) (int, error)
}
