package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/cinescope/review-service/pkg/kafka"

	"github.com/cinescope/review-service/internal/domain"
)

// Kafka topic constants for review domain events.
const (
	TopicReviewCreated = "cinescope.review.created"
	TopicReviewReplied = "cinescope.review.replied"
	TopicReviewUpdated = "cinescope.review.updated"
	TopicReviewDeleted = "cinescope.review.deleted"
	TopicReviewReacted = "cinescope.review.reacted"
)

// Aggregate type constant.
const AggregateTypeReview = "review"

// Source identifier for events originating from this service.
const SourceReviewService = "review-service"

// ReviewCreatedData is the payload for a review.created event.
type ReviewCreatedData struct {
	ID          string    `json:"id"`
	TargetID    string    `json:"target_id"`
	TargetTitle string    `json:"target_title,omitempty"`
	AuthorID    string    `json:"author_id"`
	Rating      int       `json:"rating"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReviewRepliedData is the payload for a review.replied event.
type ReviewRepliedData struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id"`
	TargetID  string    `json:"target_id"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewUpdatedData is the payload for a review.updated event.
type ReviewUpdatedData struct {
	ID       string    `json:"id"`
	TargetID string    `json:"target_id"`
	AuthorID string    `json:"author_id"`
	Rating   int       `json:"rating,omitempty"`
	EditedAt time.Time `json:"edited_at"`
}

// ReviewDeletedData is the payload for a review.deleted event. RemovedIDs
// covers the whole cascaded subtree, the deleted node first.
type ReviewDeletedData struct {
	ID         string   `json:"id"`
	TargetID   string   `json:"target_id"`
	RemovedIDs []string `json:"removed_ids"`
}

// ReviewReactedData is the payload for a review.reacted event.
type ReviewReactedData struct {
	ReviewID      string `json:"review_id"`
	TargetID      string `json:"target_id"`
	UserID        string `json:"user_id"`
	Kind          string `json:"kind"`
	UserAction    string `json:"user_action"`
	LikesCount    int    `json:"likes_count"`
	DislikesCount int    `json:"dislikes_count"`
}

// Producer publishes review domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates an event producer for the review service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishReviewCreated publishes a review.created event for a new root review.
func (p *Producer) PublishReviewCreated(ctx context.Context, node *domain.ReviewNode) error {
	data := ReviewCreatedData{
		ID:          node.ID,
		TargetID:    node.TargetID,
		TargetTitle: node.TargetTitle,
		AuthorID:    node.AuthorID,
		Rating:      node.Rating,
		CreatedAt:   node.CreatedAt,
	}
	return p.publish(ctx, TopicReviewCreated, node.ID, data)
}

// PublishReviewReplied publishes a review.replied event for a new reply.
func (p *Producer) PublishReviewReplied(ctx context.Context, node *domain.ReviewNode) error {
	data := ReviewRepliedData{
		ID:        node.ID,
		ParentID:  node.ParentID,
		TargetID:  node.TargetID,
		AuthorID:  node.AuthorID,
		CreatedAt: node.CreatedAt,
	}
	return p.publish(ctx, TopicReviewReplied, node.ID, data)
}

// PublishReviewUpdated publishes a review.updated event.
func (p *Producer) PublishReviewUpdated(ctx context.Context, node *domain.ReviewNode) error {
	data := ReviewUpdatedData{
		ID:       node.ID,
		TargetID: node.TargetID,
		AuthorID: node.AuthorID,
		Rating:   node.Rating,
		EditedAt: node.EditedAt,
	}
	return p.publish(ctx, TopicReviewUpdated, node.ID, data)
}

// PublishReviewDeleted publishes a review.deleted event covering the cascade.
func (p *Producer) PublishReviewDeleted(ctx context.Context, targetID string, removedIDs []string) error {
	if len(removedIDs) == 0 {
		return nil
	}
	data := ReviewDeletedData{
		ID:         removedIDs[0],
		TargetID:   targetID,
		RemovedIDs: removedIDs,
	}
	return p.publish(ctx, TopicReviewDeleted, removedIDs[0], data)
}

// PublishReviewReacted publishes a review.reacted event with the resulting
// counts.
func (p *Producer) PublishReviewReacted(ctx context.Context, reviewID, targetID, userID string, kind domain.ReactionKind, delta domain.LedgerDelta) error {
	data := ReviewReactedData{
		ReviewID:      reviewID,
		TargetID:      targetID,
		UserID:        userID,
		Kind:          string(kind),
		UserAction:    delta.UserAction,
		LikesCount:    delta.LikesCount,
		DislikesCount: delta.DislikesCount,
	}
	return p.publish(ctx, TopicReviewReacted, reviewID, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeReview, SourceReviewService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published review event",
		slog.String("topic", topic),
		slog.String("review_id", aggregateID),
	)
	return nil
}
