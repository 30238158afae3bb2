package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cinescope/review-service/internal/domain"
)

const treeKeyPrefix = "review:tree:"

// TreeCache keeps the assembled review tree per target in Redis. The cached
// snapshot is viewer-independent: it carries the raw ledger id-sets so the
// per-viewer reaction state can be derived at read time.
type TreeCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewTreeCache creates a tree cache with the given entry TTL.
func NewTreeCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *TreeCache {
	return &TreeCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// cachedNode is the wire form of a node snapshot, ledger sets included.
type cachedNode struct {
	ID           string        `json:"id"`
	TargetID     string        `json:"target_id"`
	TargetTitle  string        `json:"target_title,omitempty"`
	ParentID     string        `json:"parent_id,omitempty"`
	AuthorID     string        `json:"author_id"`
	AuthorName   string        `json:"author_name"`
	AuthorAvatar string        `json:"author_avatar,omitempty"`
	Rating       int           `json:"rating,omitempty"`
	Body         string        `json:"body"`
	CreatedAt    time.Time     `json:"created_at"`
	EditedAt     time.Time     `json:"edited_at,omitempty"`
	IsEdited     bool          `json:"is_edited"`
	LikedBy      []string      `json:"liked_by"`
	DislikedBy   []string      `json:"disliked_by"`
	Children     []*cachedNode `json:"children"`
}

// Get returns the cached tree for the target, or (nil, false) on a miss or
// cache error. Cache failures are logged, never surfaced.
func (c *TreeCache) Get(ctx context.Context, targetID string) ([]*domain.ReviewNode, bool) {
	raw, err := c.client.Get(ctx, treeKeyPrefix+targetID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "review tree cache get failed",
				slog.String("target_id", targetID),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	var cached []*cachedNode
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.logger.WarnContext(ctx, "review tree cache entry corrupt",
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	roots := make([]*domain.ReviewNode, 0, len(cached))
	for _, cn := range cached {
		roots = append(roots, fromCached(cn))
	}
	return roots, true
}

// Set stores the tree snapshot for the target. Best-effort.
func (c *TreeCache) Set(ctx context.Context, targetID string, roots []*domain.ReviewNode) {
	cached := make([]*cachedNode, 0, len(roots))
	for _, n := range roots {
		cached = append(cached, toCached(n))
	}

	raw, err := json.Marshal(cached)
	if err != nil {
		c.logger.WarnContext(ctx, "review tree cache marshal failed",
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := c.client.Set(ctx, treeKeyPrefix+targetID, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "review tree cache set failed",
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate drops the cached tree for the target. Best-effort.
func (c *TreeCache) Invalidate(ctx context.Context, targetID string) {
	if err := c.client.Del(ctx, treeKeyPrefix+targetID).Err(); err != nil {
		c.logger.WarnContext(ctx, "review tree cache invalidate failed",
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateAll drops every cached tree. Used after reaction purges, where
// the affected targets are not known. Best-effort.
func (c *TreeCache) InvalidateAll(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, treeKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.WarnContext(ctx, "review tree cache invalidate failed",
				slog.String("key", iter.Val()),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WarnContext(ctx, "review tree cache scan failed",
			slog.String("error", err.Error()),
		)
	}
}

func toCached(n *domain.ReviewNode) *cachedNode {
	cn := &cachedNode{
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
		EditedAt:     n.EditedAt,
		IsEdited:     n.IsEdited,
		LikedBy:      []string{},
		DislikedBy:   []string{},
	}
	if n.Reactions != nil {
		cn.LikedBy = n.Reactions.LikedBy()
		cn.DislikedBy = n.Reactions.DislikedBy()
	}
	for _, child := range n.Children {
		cn.Children = append(cn.Children, toCached(child))
	}
	return cn
}

func fromCached(cn *cachedNode) *domain.ReviewNode {
	ledger := domain.NewReactionLedger()
	ledger.SetReactions(cn.LikedBy, cn.DislikedBy)

	n := &domain.ReviewNode{
		ID:           cn.ID,
		TargetID:     cn.TargetID,
		TargetTitle:  cn.TargetTitle,
		ParentID:     cn.ParentID,
		AuthorID:     cn.AuthorID,
		AuthorName:   cn.AuthorName,
		AuthorAvatar: cn.AuthorAvatar,
		Rating:       cn.Rating,
		Body:         cn.Body,
		CreatedAt:    cn.CreatedAt,
		EditedAt:     cn.EditedAt,
		IsEdited:     cn.IsEdited,
		Reactions:    ledger,
	}
	for _, child := range cn.Children {
		n.Children = append(n.Children, fromCached(child))
	}
	return n
}

// HealthCheck pings Redis, for use with the readiness endpoint.
func (c *TreeCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
