package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReactionLedger_FirstReaction(t *testing.T) {
	l := NewReactionLedger()

	delta := l.React("u1", ReactionLike)

	assert.Equal(t, 1, delta.LikesCount)
	assert.Equal(t, 0, delta.DislikesCount)
	assert.Equal(t, "like", delta.UserAction)
}

func TestReactionLedger_ToggleOff(t *testing.T) {
	l := NewReactionLedger()

	l.React("u1", ReactionLike)
	delta := l.React("u1", ReactionLike)

	assert.Equal(t, 0, delta.LikesCount)
	assert.Equal(t, 0, delta.DislikesCount)
	assert.Empty(t, delta.UserAction)
}

func TestReactionLedger_Switch(t *testing.T) {
	l := NewReactionLedger()
	l.React("u2", ReactionLike) // another user's like must survive the switch

	l.React("u1", ReactionLike)
	delta := l.React("u1", ReactionDislike)

	assert.Equal(t, 1, delta.LikesCount)
	assert.Equal(t, 1, delta.DislikesCount)
	assert.Equal(t, "dislike", delta.UserAction)
	assert.Equal(t, "like", l.UserAction("u2"))
}

func TestReactionLedger_ExclusivityUnderSequences(t *testing.T) {
	l := NewReactionLedger()

	seq := []ReactionKind{
		ReactionLike, ReactionDislike, ReactionDislike,
		ReactionLike, ReactionLike, ReactionDislike,
	}
	for _, kind := range seq {
		l.React("u1", kind)
		inLiked := l.UserAction("u1") == "like"
		inDisliked := l.UserAction("u1") == "dislike"
		assert.False(t, inLiked && inDisliked)
		assert.LessOrEqual(t, l.LikesCount()+l.DislikesCount(), 1)
	}
}

func TestReactionLedger_RemoveUser(t *testing.T) {
	l := NewReactionLedger()
	l.React("u1", ReactionLike)
	l.React("u2", ReactionDislike)

	l.RemoveUser("u1")
	l.RemoveUser("u2")
	l.RemoveUser("u3") // unknown user is a no-op

	assert.Equal(t, 0, l.LikesCount())
	assert.Equal(t, 0, l.DislikesCount())
}

func TestReactionLedger_SetReactions(t *testing.T) {
	l := NewReactionLedger()
	l.React("stale", ReactionLike)

	l.SetReactions([]string{"u1", "u2"}, []string{"u3"})

	assert.Equal(t, 2, l.LikesCount())
	assert.Equal(t, 1, l.DislikesCount())
	assert.Empty(t, l.UserAction("stale"))
	assert.ElementsMatch(t, []string{"u1", "u2"}, l.LikedBy())
	assert.ElementsMatch(t, []string{"u3"}, l.DislikedBy())
}
