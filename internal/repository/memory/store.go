package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cinescope/review-service/internal/domain"
	apperrors "github.com/cinescope/review-service/pkg/errors"
)

// Store is an in-memory review repository backed by one domain.ReviewTree
// per target. Each tree has its own lock, so operations on different targets
// never contend. Intended for development and tests.
type Store struct {
	mu         sync.RWMutex // guards trees and nodeTarget
	trees      map[string]*targetTree
	nodeTarget map[string]string // node id -> target id
}

type targetTree struct {
	mu   sync.RWMutex
	tree *domain.ReviewTree
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		trees:      make(map[string]*targetTree),
		nodeTarget: make(map[string]string),
	}
}

// Create stores a root review or a reply. Trees are created lazily on the
// first review for a target.
func (s *Store) Create(ctx context.Context, node *domain.ReviewNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if node.Reactions == nil {
		node.Reactions = domain.NewReactionLedger()
	}

	if node.ParentID == "" {
		s.mu.Lock()
		tt, ok := s.trees[node.TargetID]
		if !ok {
			tt = &targetTree{tree: domain.NewReviewTree(node.TargetID)}
			s.trees[node.TargetID] = tt
		}
		s.nodeTarget[node.ID] = node.TargetID
		s.mu.Unlock()

		tt.mu.Lock()
		defer tt.mu.Unlock()
		if err := tt.tree.AddRoot(node); err != nil {
			s.dropIndex(node.ID)
			return err
		}
		return nil
	}

	s.mu.Lock()
	targetID, ok := s.nodeTarget[node.ParentID]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("review", node.ParentID)
	}
	tt := s.trees[targetID]
	s.nodeTarget[node.ID] = targetID
	s.mu.Unlock()

	tt.mu.Lock()
	defer tt.mu.Unlock()
	if err := tt.tree.AddReply(node); err != nil {
		s.dropIndex(node.ID)
		return err
	}
	return nil
}

// GetByID returns a snapshot of the node without children.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.ReviewNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tt, err := s.treeFor(id)
	if err != nil {
		return nil, err
	}

	tt.mu.RLock()
	defer tt.mu.RUnlock()
	node, ok := tt.tree.Get(id)
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	return cloneFlat(node), nil
}

// Update persists body, rating, and edit metadata of an existing node.
func (s *Store) Update(ctx context.Context, node *domain.ReviewNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tt, err := s.treeFor(node.ID)
	if err != nil {
		return err
	}

	tt.mu.Lock()
	defer tt.mu.Unlock()
	stored, ok := tt.tree.Get(node.ID)
	if !ok {
		return apperrors.NotFound("review", node.ID)
	}
	stored.Body = node.Body
	stored.Rating = node.Rating
	stored.EditedAt = node.EditedAt
	stored.IsEdited = node.IsEdited
	return nil
}

// Delete removes the node and its subtree, returning the removed ids.
func (s *Store) Delete(ctx context.Context, id string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tt, err := s.treeFor(id)
	if err != nil {
		return nil, err
	}

	tt.mu.Lock()
	removed := tt.tree.RemoveSubtree(id)
	tt.mu.Unlock()

	if len(removed) == 0 {
		return nil, apperrors.NotFound("review", id)
	}

	s.mu.Lock()
	for _, rid := range removed {
		delete(s.nodeTarget, rid)
	}
	s.mu.Unlock()

	return removed, nil
}

// React applies the like/dislike toggle under the target tree's lock.
func (s *Store) React(ctx context.Context, nodeID, userID string, kind domain.ReactionKind) (domain.LedgerDelta, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerDelta{}, err
	}
	tt, err := s.treeFor(nodeID)
	if err != nil {
		return domain.LedgerDelta{}, err
	}

	tt.mu.Lock()
	defer tt.mu.Unlock()
	node, ok := tt.tree.Get(nodeID)
	if !ok {
		return domain.LedgerDelta{}, apperrors.NotFound("review", nodeID)
	}
	return node.Reactions.React(userID, kind), nil
}

// ListByTarget returns a nested snapshot of the target's tree. An unknown
// target yields an empty list.
func (s *Store) ListByTarget(ctx context.Context, targetID string) ([]*domain.ReviewNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	tt, ok := s.trees[targetID]
	s.mu.RUnlock()
	if !ok {
		return []*domain.ReviewNode{}, nil
	}

	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return tt.tree.Roots(), nil
}

// ListByAuthor returns the author's nodes newest first across all targets.
func (s *Store) ListByAuthor(ctx context.Context, authorID string, limit, offset int) ([]*domain.ReviewNode, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	trees := make([]*targetTree, 0, len(s.trees))
	for _, tt := range s.trees {
		trees = append(trees, tt)
	}
	s.mu.RUnlock()

	var matched []*domain.ReviewNode
	for _, tt := range trees {
		tt.mu.RLock()
		for _, node := range tt.tree.Nodes() {
			if node.AuthorID == authorID {
				matched = append(matched, node)
			}
		}
		tt.mu.RUnlock()
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []*domain.ReviewNode{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// RemoveUserReactions drops the user's reactions everywhere, returning how
// many nodes were affected.
func (s *Store) RemoveUserReactions(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	trees := make([]*targetTree, 0, len(s.trees))
	for _, tt := range s.trees {
		trees = append(trees, tt)
	}
	s.mu.RUnlock()

	affected := 0
	for _, tt := range trees {
		tt.mu.Lock()
		affected += tt.tree.RemoveUserReactions(userID)
		tt.mu.Unlock()
	}
	return affected, nil
}

// treeFor resolves the target tree holding the given node id.
func (s *Store) treeFor(nodeID string) (*targetTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	targetID, ok := s.nodeTarget[nodeID]
	if !ok {
		return nil, apperrors.NotFound("review", nodeID)
	}
	return s.trees[targetID], nil
}

func (s *Store) dropIndex(nodeID string) {
	s.mu.Lock()
	delete(s.nodeTarget, nodeID)
	s.mu.Unlock()
}

func cloneFlat(n *domain.ReviewNode) *domain.ReviewNode {
	clone := *n
	clone.Children = nil
	ledger := domain.NewReactionLedger()
	ledger.SetReactions(n.Reactions.LikedBy(), n.Reactions.DislikedBy())
	clone.Reactions = ledger
	return &clone
}
