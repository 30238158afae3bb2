package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cinescope/review-service/internal/domain"
	"github.com/cinescope/review-service/pkg/database"
	apperrors "github.com/cinescope/review-service/pkg/errors"
)

// ReviewRepository implements review tree persistence using PostgreSQL.
// Nodes live in the reviews table with a self-referential parent_id whose
// ON DELETE CASCADE gives the transitive subtree delete; review_reactions
// keys on (review_id, user_id) so a user holds at most one reaction per node.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

const nodeColumns = `id, target_id, target_title, COALESCE(parent_id::text, ''),
       author_id, author_name, author_avatar, rating, body, created_at, edited_at, is_edited`

// Create inserts a root review or a reply. A reply inherits its parent's
// target atomically; a missing parent fails NotFound.
func (r *ReviewRepository) Create(ctx context.Context, node *domain.ReviewNode) error {
	if node.ParentID == "" {
		query := `
			INSERT INTO reviews (id, target_id, target_title, author_id, author_name, author_avatar, rating, body, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		_, err := r.pool.Exec(ctx, query,
			node.ID,
			node.TargetID,
			node.TargetTitle,
			node.AuthorID,
			node.AuthorName,
			node.AuthorAvatar,
			node.Rating,
			node.Body,
			node.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		return nil
	}

	// The parent row supplies the target id in the same statement, so the
	// insert cannot race a parent delete into an orphan.
	query := `
		INSERT INTO reviews (id, target_id, parent_id, author_id, author_name, author_avatar, rating, body, created_at)
		SELECT $1, p.target_id, p.id, $3, $4, $5, 0, $6, $7
		FROM reviews p
		WHERE p.id = $2
		RETURNING target_id`

	err := r.pool.QueryRow(ctx, query,
		node.ID,
		node.ParentID,
		node.AuthorID,
		node.AuthorName,
		node.AuthorAvatar,
		node.Body,
		node.CreatedAt,
	).Scan(&node.TargetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("review", node.ParentID)
		}
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

// GetByID returns the node with its ledger populated and children empty.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*domain.ReviewNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM reviews WHERE id = $1`

	node, err := scanNode(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("get review: %w", err)
	}

	liked, disliked, err := r.reactionsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	node.Reactions.SetReactions(liked, disliked)

	return node, nil
}

// Update persists body, rating, and edit metadata of an existing node.
func (r *ReviewRepository) Update(ctx context.Context, node *domain.ReviewNode) error {
	query := `
		UPDATE reviews
		SET body = $1, rating = $2, edited_at = $3, is_edited = $4
		WHERE id = $5`

	tag, err := r.pool.Exec(ctx, query,
		node.Body,
		node.Rating,
		node.EditedAt,
		node.IsEdited,
		node.ID,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", node.ID)
	}
	return nil
}

// Delete removes the node and its entire subtree, returning the removed ids
// with the requested node first.
func (r *ReviewRepository) Delete(ctx context.Context, id string) ([]string, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id FROM reviews WHERE id = $1
			UNION ALL
			SELECT c.id FROM reviews c JOIN subtree s ON c.parent_id = s.id
		)
		DELETE FROM reviews WHERE id IN (SELECT id FROM subtree)
		RETURNING id`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("delete review subtree: %w", err)
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, fmt.Errorf("scan removed id: %w", err)
		}
		removed = append(removed, rid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate removed ids: %w", err)
	}

	if len(removed) == 0 {
		return nil, apperrors.NotFound("review", id)
	}

	// RETURNING order is unspecified; keep the requested node first.
	for i, rid := range removed {
		if rid == id && i != 0 {
			removed[0], removed[i] = removed[i], removed[0]
			break
		}
	}
	return removed, nil
}

// React applies the like/dislike toggle in one transaction. The review row is
// locked first, which both serializes concurrent reactions on the node and
// turns a raced delete into NotFound.
func (r *ReviewRepository) React(ctx context.Context, nodeID, userID string, kind domain.ReactionKind) (domain.LedgerDelta, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.LedgerDelta{}, fmt.Errorf("begin react tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lockedID string
	err = tx.QueryRow(ctx, `SELECT id FROM reviews WHERE id = $1 FOR UPDATE`, nodeID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LedgerDelta{}, apperrors.NotFound("review", nodeID)
		}
		return domain.LedgerDelta{}, fmt.Errorf("lock review: %w", err)
	}

	var current string
	err = tx.QueryRow(ctx,
		`SELECT kind FROM review_reactions WHERE review_id = $1 AND user_id = $2`,
		nodeID, userID,
	).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO review_reactions (review_id, user_id, kind, created_at) VALUES ($1, $2, $3, $4)`,
			nodeID, userID, string(kind), time.Now().UTC(),
		)
		if err != nil {
			return domain.LedgerDelta{}, fmt.Errorf("insert reaction: %w", err)
		}
	case err != nil:
		return domain.LedgerDelta{}, fmt.Errorf("get reaction: %w", err)
	case current == string(kind):
		// Same kind toggles the reaction off.
		_, err = tx.Exec(ctx,
			`DELETE FROM review_reactions WHERE review_id = $1 AND user_id = $2`,
			nodeID, userID,
		)
		if err != nil {
			return domain.LedgerDelta{}, fmt.Errorf("delete reaction: %w", err)
		}
	default:
		_, err = tx.Exec(ctx,
			`UPDATE review_reactions SET kind = $1 WHERE review_id = $2 AND user_id = $3`,
			string(kind), nodeID, userID,
		)
		if err != nil {
			return domain.LedgerDelta{}, fmt.Errorf("switch reaction: %w", err)
		}
	}

	var delta domain.LedgerDelta
	var userAction *string
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE kind = 'like'),
		       COUNT(*) FILTER (WHERE kind = 'dislike'),
		       MAX(kind) FILTER (WHERE user_id = $2)
		FROM review_reactions
		WHERE review_id = $1`,
		nodeID, userID,
	).Scan(&delta.LikesCount, &delta.DislikesCount, &userAction)
	if err != nil {
		return domain.LedgerDelta{}, fmt.Errorf("count reactions: %w", err)
	}
	if userAction != nil {
		delta.UserAction = *userAction
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.LedgerDelta{}, fmt.Errorf("commit react tx: %w", err)
	}
	return delta, nil
}

// ListByTarget reads the target's flat rows plus reactions and assembles the
// nested tree. Parents always precede their children in creation order, so a
// single ordered pass links every node.
func (r *ReviewRepository) ListByTarget(ctx context.Context, targetID string) ([]*domain.ReviewNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM reviews WHERE target_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var nodes []*domain.ReviewNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}

	if len(nodes) == 0 {
		return []*domain.ReviewNode{}, nil
	}

	if err := r.attachTargetReactions(ctx, targetID, nodes); err != nil {
		return nil, err
	}

	tree := domain.NewReviewTree(targetID)
	for _, node := range nodes {
		if node.ParentID == "" {
			if err := tree.AddRoot(node); err != nil {
				return nil, fmt.Errorf("assemble tree: %w", err)
			}
			continue
		}
		if err := tree.AddReply(node); err != nil {
			return nil, fmt.Errorf("assemble tree: %w", err)
		}
	}
	return tree.Roots(), nil
}

// ListByAuthor returns the author's nodes newest first with the total count.
func (r *ReviewRepository) ListByAuthor(ctx context.Context, authorID string, limit, offset int) ([]*domain.ReviewNode, int, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + nodeColumns + `, count(*) OVER() AS total_count
		FROM reviews
		WHERE author_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, authorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews by author: %w", err)
	}
	defer rows.Close()

	var (
		nodes      []*domain.ReviewNode
		totalCount int
	)
	for rows.Next() {
		node, err := scanNodeWithTotal(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}

	if len(nodes) == 0 {
		return []*domain.ReviewNode{}, totalCount, nil
	}

	ids := make([]string, len(nodes))
	byID := make(map[string]*domain.ReviewNode, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
		byID[n.ID] = n
	}

	reactionRows, err := r.pool.Query(ctx,
		`SELECT review_id, user_id, kind FROM review_reactions WHERE review_id = ANY($1)`, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("list reactions: %w", err)
	}
	defer reactionRows.Close()

	if err := applyReactions(reactionRows, byID); err != nil {
		return nil, 0, err
	}

	return nodes, totalCount, nil
}

// RemoveUserReactions drops every reaction by the user, returning how many
// rows were removed.
func (r *ReviewRepository) RemoveUserReactions(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM review_reactions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("remove user reactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// reactionsFor loads the like/dislike user sets for one node.
func (r *ReviewRepository) reactionsFor(ctx context.Context, id string) (liked, disliked []string, err error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, kind FROM review_reactions WHERE review_id = $1`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, kind string
		if err := rows.Scan(&userID, &kind); err != nil {
			return nil, nil, fmt.Errorf("scan reaction row: %w", err)
		}
		if kind == string(domain.ReactionLike) {
			liked = append(liked, userID)
		} else {
			disliked = append(disliked, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate reaction rows: %w", err)
	}
	return liked, disliked, nil
}

// attachTargetReactions hydrates ledgers for every node of a target in one
// query.
func (r *ReviewRepository) attachTargetReactions(ctx context.Context, targetID string, nodes []*domain.ReviewNode) error {
	byID := make(map[string]*domain.ReviewNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	rows, err := r.pool.Query(ctx, `
		SELECT rr.review_id, rr.user_id, rr.kind
		FROM review_reactions rr
		JOIN reviews rv ON rv.id = rr.review_id
		WHERE rv.target_id = $1`,
		targetID)
	if err != nil {
		return fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	return applyReactions(rows, byID)
}

func applyReactions(rows pgx.Rows, byID map[string]*domain.ReviewNode) error {
	liked := make(map[string][]string)
	disliked := make(map[string][]string)
	for rows.Next() {
		var reviewID, userID, kind string
		if err := rows.Scan(&reviewID, &userID, &kind); err != nil {
			return fmt.Errorf("scan reaction row: %w", err)
		}
		if kind == string(domain.ReactionLike) {
			liked[reviewID] = append(liked[reviewID], userID)
		} else {
			disliked[reviewID] = append(disliked[reviewID], userID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reaction rows: %w", err)
	}

	for id, node := range byID {
		node.Reactions.SetReactions(liked[id], disliked[id])
	}
	return nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*domain.ReviewNode, error) {
	node := &domain.ReviewNode{Reactions: domain.NewReactionLedger()}
	var editedAt *time.Time

	err := row.Scan(
		&node.ID,
		&node.TargetID,
		&node.TargetTitle,
		&node.ParentID,
		&node.AuthorID,
		&node.AuthorName,
		&node.AuthorAvatar,
		&node.Rating,
		&node.Body,
		&node.CreatedAt,
		&editedAt,
		&node.IsEdited,
	)
	if err != nil {
		return nil, err
	}
	if editedAt != nil {
		node.EditedAt = *editedAt
	}
	return node, nil
}

func scanNodeWithTotal(row rowScanner, total *int) (*domain.ReviewNode, error) {
	node := &domain.ReviewNode{Reactions: domain.NewReactionLedger()}
	var editedAt *time.Time

	err := row.Scan(
		&node.ID,
		&node.TargetID,
		&node.TargetTitle,
		&node.ParentID,
		&node.AuthorID,
		&node.AuthorName,
		&node.AuthorAvatar,
		&node.Rating,
		&node.Body,
		&node.CreatedAt,
		&editedAt,
		&node.IsEdited,
		total,
	)
	if err != nil {
		return nil, err
	}
	if editedAt != nil {
		node.EditedAt = *editedAt
	}
	return node, nil
}
