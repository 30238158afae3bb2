package domain

import (
	apperrors "github.com/cinescope/review-service/pkg/errors"
)

// ReactionKind is a user's reaction to a review node.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// ParseReactionKind validates a raw reaction kind string.
func ParseReactionKind(raw string) (ReactionKind, error) {
	switch ReactionKind(raw) {
	case ReactionLike:
		return ReactionLike, nil
	case ReactionDislike:
		return ReactionDislike, nil
	default:
		return "", apperrors.Validation(apperrors.CodeInvalidReaction, "reaction kind must be like or dislike")
	}
}

// ReactionLedger tracks which users like or dislike a single node. A user is
// in at most one of the two sets at any time.
type ReactionLedger struct {
	likedBy    map[string]struct{}
	dislikedBy map[string]struct{}
}

// NewReactionLedger returns an empty ledger.
func NewReactionLedger() *ReactionLedger {
	return &ReactionLedger{
		likedBy:    make(map[string]struct{}),
		dislikedBy: make(map[string]struct{}),
	}
}

// LedgerDelta is the outcome of a reaction toggle: the node's resulting
// counts and the acting user's resulting state.
type LedgerDelta struct {
	LikesCount    int
	DislikesCount int
	UserAction    string // "like", "dislike", or "" when the user has no reaction
}

// React applies the idempotent toggle. A first reaction adds the user to the
// requested set, repeating it removes the reaction, and reacting the other
// way moves the user between sets in one step.
func (l *ReactionLedger) React(userID string, kind ReactionKind) LedgerDelta {
	target, other := l.likedBy, l.dislikedBy
	if kind == ReactionDislike {
		target, other = l.dislikedBy, l.likedBy
	}

	if _, ok := target[userID]; ok {
		delete(target, userID)
	} else {
		delete(other, userID)
		target[userID] = struct{}{}
	}

	return LedgerDelta{
		LikesCount:    len(l.likedBy),
		DislikesCount: len(l.dislikedBy),
		UserAction:    l.UserAction(userID),
	}
}

// RemoveUser drops the user from both sets unconditionally. Used when an
// account's reactions are purged.
func (l *ReactionLedger) RemoveUser(userID string) {
	delete(l.likedBy, userID)
	delete(l.dislikedBy, userID)
}

// SetReactions replaces the ledger contents. Used when hydrating a node from
// stored rows.
func (l *ReactionLedger) SetReactions(likedBy, dislikedBy []string) {
	l.likedBy = make(map[string]struct{}, len(likedBy))
	for _, u := range likedBy {
		l.likedBy[u] = struct{}{}
	}
	l.dislikedBy = make(map[string]struct{}, len(dislikedBy))
	for _, u := range dislikedBy {
		l.dislikedBy[u] = struct{}{}
	}
}

// LikesCount returns the number of users who like the node.
func (l *ReactionLedger) LikesCount() int {
	return len(l.likedBy)
}

// DislikesCount returns the number of users who dislike the node.
func (l *ReactionLedger) DislikesCount() int {
	return len(l.dislikedBy)
}

// UserAction returns "like", "dislike", or "" for the given user.
func (l *ReactionLedger) UserAction(userID string) string {
	if _, ok := l.likedBy[userID]; ok {
		return string(ReactionLike)
	}
	if _, ok := l.dislikedBy[userID]; ok {
		return string(ReactionDislike)
	}
	return ""
}

// LikedBy returns the user ids who like the node.
func (l *ReactionLedger) LikedBy() []string {
	return keys(l.likedBy)
}

// DislikedBy returns the user ids who dislike the node.
func (l *ReactionLedger) DislikedBy() []string {
	return keys(l.dislikedBy)
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
