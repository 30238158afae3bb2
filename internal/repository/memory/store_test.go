package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinescope/review-service/internal/domain"
	apperrors "github.com/cinescope/review-service/pkg/errors"
)

func rootNode(id, targetID, authorID string) *domain.ReviewNode {
	return &domain.ReviewNode{
		ID:        id,
		TargetID:  targetID,
		AuthorID:  authorID,
		Rating:    7,
		Body:      "A slow burn that rewards patience with a strong finale.",
		CreatedAt: time.Now().UTC(),
		Reactions: domain.NewReactionLedger(),
	}
}

func replyNode(id, parentID, authorID string) *domain.ReviewNode {
	return &domain.ReviewNode{
		ID:        id,
		ParentID:  parentID,
		AuthorID:  authorID,
		Body:      "Completely agree about the finale, the buildup pays off.",
		CreatedAt: time.Now().UTC(),
		Reactions: domain.NewReactionLedger(),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, rootNode("r1", "t1", "u1")))

	got, err := s.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TargetID)
	assert.Equal(t, "u1", got.AuthorID)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_Create_ReplyInheritsTarget(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, rootNode("r1", "t1", "u1")))

	reply := replyNode("c1", "r1", "u2")
	require.NoError(t, s.Create(ctx, reply))

	got, err := s.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TargetID)
}

func TestStore_Create_ReplyUnknownParent(t *testing.T) {
	s := NewStore()
	err := s.Create(context.Background(), replyNode("c1", "missing", "u2"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_Update(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, rootNode("r1", "t1", "u1")))

	edited := rootNode("r1", "t1", "u1")
	edited.Body = "On reflection the middle act earns its runtime after all."
	edited.Rating = 9
	edited.IsEdited = true
	edited.EditedAt = time.Now().UTC()
	require.NoError(t, s.Update(ctx, edited))

	got, err := s.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Rating)
	assert.True(t, got.IsEdited)
	assert.False(t, got.EditedAt.IsZero())
}

func TestStore_Update_NotFound(t *testing.T) {
	s := NewStore()
	err := s.Update(context.Background(), rootNode("missing", "t1", "u1"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_Delete_Cascades(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, rootNode("r1", "t1", "u1")))
	require.NoError(t, s.Create(ctx, replyNode("c1", "r1", "u2")))
	require.NoError(t, s.Create(ctx, replyNode("c2", "c1", "u3")))

	removed, err := s.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "c1", "c2"}, removed)

	// Mutations against removed ids now fail NotFound.
	_, err = s.React(ctx, "c1", "u3", domain.ReactionDislike)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	err = s.Create(ctx, replyNode("c3", "c2", "u4"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	roots, err := s.ListByTarget(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestStore_React_ToggleAndSwitch(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, rootNode("r1", "t1", "u1")))

	delta, err := s.React(ctx, "r1", "u2", domain.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, 1, delta.LikesCount)
	assert.Equal(t, "like", delta.UserAction)

	delta, err = s.React(ctx, "r1", "u2", domain.ReactionDislike)
	require.NoError(t, err)
	assert.Equal(t, 0, delta.LikesCount)
	assert.Equal(t, 1, delta.DislikesCount)
	assert.Equal(t, "dislike", delta.UserAction)

	delta, err = s.React(ctx, "r1", "u2", domain.ReactionDislike)
	require.NoError(t, err)
	assert.Equal(t, 0, delta.DislikesCount)
	assert.Empty(t, delta.UserAction)
}

func TestStore_React_ConcurrentUsers(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, rootNode("r1", "t1", "u1")))

	const users = 100
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.React(ctx, "r1", fmt.Sprintf("user-%d", i), domain.ReactionLike)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, users, got.Reactions.LikesCount())
}

func TestStore_ConcurrentTargetsIndependent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	const targets = 10
	var wg sync.WaitGroup
	for i := 0; i < targets; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			targetID := fmt.Sprintf("t%d", i)
			rootID := fmt.Sprintf("r%d", i)
			assert.NoError(t, s.Create(ctx, rootNode(rootID, targetID, "u1")))
			for j := 0; j < 5; j++ {
				id := fmt.Sprintf("c%d-%d", i, j)
				assert.NoError(t, s.Create(ctx, replyNode(id, rootID, "u2")))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < targets; i++ {
		roots, err := s.ListByTarget(ctx, fmt.Sprintf("t%d", i))
		require.NoError(t, err)
		require.Len(t, roots, 1)
		assert.Len(t, roots[0].Children, 5)
	}
}

func TestStore_ListByTarget_UnknownTargetEmpty(t *testing.T) {
	s := NewStore()
	roots, err := s.ListByTarget(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestStore_ListByAuthor(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		n := rootNode(fmt.Sprintf("r%d", i), fmt.Sprintf("t%d", i), "u1")
		n.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Create(ctx, n))
	}
	other := rootNode("rx", "t0", "u2")
	require.NoError(t, s.Create(ctx, other))

	nodes, total, err := s.ListByAuthor(ctx, "u1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, nodes, 2)
	assert.Equal(t, "r4", nodes[0].ID) // newest first
	assert.Equal(t, "r3", nodes[1].ID)

	nodes, total, err = s.ListByAuthor(ctx, "u1", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, nodes, 1)
	assert.Equal(t, "r0", nodes[0].ID)

	nodes, total, err = s.ListByAuthor(ctx, "u1", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, nodes)
}

func TestStore_RemoveUserReactions(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, rootNode("r1", "t1", "u1")))
	require.NoError(t, s.Create(ctx, rootNode("r2", "t2", "u1")))

	_, err := s.React(ctx, "r1", "u9", domain.ReactionLike)
	require.NoError(t, err)
	_, err = s.React(ctx, "r2", "u9", domain.ReactionDislike)
	require.NoError(t, err)
	_, err = s.React(ctx, "r2", "u8", domain.ReactionLike)
	require.NoError(t, err)

	affected, err := s.RemoveUserReactions(ctx, "u9")
	require.NoError(t, err)
	assert.Equal(t, 2, affected)

	got, err := s.GetByID(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Reactions.DislikesCount())
	assert.Equal(t, 1, got.Reactions.LikesCount())
}

func TestStore_ListByTarget_DeepChain(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, rootNode("n0", "t1", "u1")))

	parent := "n0"
	for i := 1; i <= 50; i++ {
		id := fmt.Sprintf("n%d", i)
		require.NoError(t, s.Create(ctx, replyNode(id, parent, "u1")))
		parent = id
	}

	roots, err := s.ListByTarget(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, roots, 1)

	// Walk the chain back down, checking linkage at every level.
	node := roots[0]
	for i := 1; i <= 50; i++ {
		require.Len(t, node.Children, 1, "depth %d", i)
		child := node.Children[0]
		assert.Equal(t, fmt.Sprintf("n%d", i), child.ID)
		assert.Equal(t, node.ID, child.ParentID)
		assert.Equal(t, "t1", child.TargetID)
		node = child
	}
	assert.Empty(t, node.Children)
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Create(ctx, rootNode("r1", "t1", "u1"))
	assert.ErrorIs(t, err, context.Canceled)
}
