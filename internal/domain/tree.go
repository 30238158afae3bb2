package domain

import (
	apperrors "github.com/cinescope/review-service/pkg/errors"
)

// ReviewTree holds every review node for one target. Nodes live in a flat
// arena keyed by id with parent/child linkage kept as id lists, so cascade
// removal and snapshot assembly are iterative walks over the index rather
// than recursive structure teardown.
type ReviewTree struct {
	targetID string
	nodes    map[string]*ReviewNode
	childIDs map[string][]string
	rootIDs  []string
}

// NewReviewTree creates an empty tree for the given target.
func NewReviewTree(targetID string) *ReviewTree {
	return &ReviewTree{
		targetID: targetID,
		nodes:    make(map[string]*ReviewNode),
		childIDs: make(map[string][]string),
	}
}

// TargetID returns the target this tree belongs to.
func (t *ReviewTree) TargetID() string {
	return t.targetID
}

// Len returns the number of nodes in the tree.
func (t *ReviewTree) Len() int {
	return len(t.nodes)
}

// AddRoot appends a top-level review. The node's target must match the
// tree's and its id must be new.
func (t *ReviewTree) AddRoot(n *ReviewNode) error {
	if n.TargetID != t.targetID {
		return apperrors.InvalidInput("review target does not match tree target")
	}
	if _, exists := t.nodes[n.ID]; exists {
		return apperrors.Conflict("review id already exists")
	}
	t.nodes[n.ID] = n
	t.rootIDs = append(t.rootIDs, n.ID)
	return nil
}

// AddReply appends a reply under its parent, which may sit at any depth.
// The reply inherits the parent's target id.
func (t *ReviewTree) AddReply(n *ReviewNode) error {
	parent, ok := t.nodes[n.ParentID]
	if !ok {
		return apperrors.NotFound("review", n.ParentID)
	}
	if _, exists := t.nodes[n.ID]; exists {
		return apperrors.Conflict("review id already exists")
	}
	n.TargetID = parent.TargetID
	t.nodes[n.ID] = n
	t.childIDs[parent.ID] = append(t.childIDs[parent.ID], n.ID)
	return nil
}

// Get looks up a node anywhere in the tree.
func (t *ReviewTree) Get(id string) (*ReviewNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// RemoveSubtree removes the node and every transitive descendant, returning
// the removed ids (the given node first). Removing an unknown id returns nil.
func (t *ReviewTree) RemoveSubtree(id string) []string {
	node, ok := t.nodes[id]
	if !ok {
		return nil
	}

	// Collect the subtree with an explicit stack; depth is unbounded.
	var removed []string
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		removed = append(removed, cur)
		stack = append(stack, t.childIDs[cur]...)
	}

	for _, rid := range removed {
		delete(t.nodes, rid)
		delete(t.childIDs, rid)
	}

	if node.ParentID == "" {
		t.rootIDs = removeID(t.rootIDs, id)
	} else if siblings, ok := t.childIDs[node.ParentID]; ok {
		t.childIDs[node.ParentID] = removeID(siblings, id)
	}

	return removed
}

// Roots returns a deep snapshot of the tree: root nodes in creation order,
// each with its nested children populated recursively in creation order.
// The snapshot shares nothing with the live tree.
func (t *ReviewTree) Roots() []*ReviewNode {
	roots := make([]*ReviewNode, 0, len(t.rootIDs))
	for _, id := range t.rootIDs {
		roots = append(roots, t.snapshot(id))
	}
	return roots
}

// RemoveUserReactions drops the user's reactions from every node in the
// tree, returning the number of nodes affected.
func (t *ReviewTree) RemoveUserReactions(userID string) int {
	affected := 0
	for _, n := range t.nodes {
		if n.Reactions != nil && n.Reactions.UserAction(userID) != "" {
			n.Reactions.RemoveUser(userID)
			affected++
		}
	}
	return affected
}

// Nodes returns a flat snapshot of every node in the tree, children not
// populated. Order is unspecified.
func (t *ReviewTree) Nodes() []*ReviewNode {
	out := make([]*ReviewNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, cloneNode(n))
	}
	return out
}

// snapshot clones the subtree rooted at id iteratively, linking clones to
// their parent clones as the walk proceeds.
func (t *ReviewTree) snapshot(id string) *ReviewNode {
	root := cloneNode(t.nodes[id])
	clones := map[string]*ReviewNode{id: root}

	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		parentClone := clones[cur]
		for _, childID := range t.childIDs[cur] {
			child := cloneNode(t.nodes[childID])
			parentClone.Children = append(parentClone.Children, child)
			clones[childID] = child
			queue = append(queue, childID)
		}
	}

	return root
}

func cloneNode(n *ReviewNode) *ReviewNode {
	clone := *n
	clone.Children = nil
	if n.Reactions != nil {
		ledger := NewReactionLedger()
		ledger.SetReactions(n.Reactions.LikedBy(), n.Reactions.DislikedBy())
		clone.Reactions = ledger
	}
	return &clone
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
