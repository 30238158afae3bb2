package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cinescope/review-service/internal/service"
	"github.com/cinescope/review-service/pkg/httputil"
	"github.com/cinescope/review-service/pkg/middleware"
	"github.com/cinescope/review-service/pkg/pagination"
	"github.com/cinescope/review-service/pkg/validator"
)

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateReviewRequest is the JSON request body for creating a root review.
// Body length bounds are enforced on the trimmed rune count by the service,
// so only presence is checked here.
type CreateReviewRequest struct {
	TargetID string `json:"target_id" validate:"required"`
	Rating   int    `json:"rating" validate:"required,gte=1,lte=10"`
	Body     string `json:"body" validate:"required"`
}

// ReplyRequest is the JSON request body for replying to a review or reply.
type ReplyRequest struct {
	Body string `json:"body" validate:"required"`
}

// UpdateReviewRequest is the JSON request body for editing a review. A nil
// rating leaves the stored rating untouched; replies ignore it.
type UpdateReviewRequest struct {
	Rating *int   `json:"rating" validate:"omitempty,gte=1,lte=10"`
	Body   string `json:"body" validate:"required"`
}

// ReactionRequest is the JSON request body for the like/dislike toggle.
type ReactionRequest struct {
	Kind string `json:"kind" validate:"required,oneof=like dislike"`
}

// --- Handlers ---

// CreateReview handles POST /api/v1/reviews
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody[CreateReviewRequest](w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	input := service.CreateReviewInput{
		TargetID: req.TargetID,
		Rating:   req.Rating,
		Body:     req.Body,
	}
	if claims != nil {
		input.AuthorID = claims.UserID
		input.AuthorName = claims.Name
		input.AuthorAvatar = claims.Avatar
	}

	review, err := h.service.CreateReview(r.Context(), &input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: review})
}

// Reply handles POST /api/v1/reviews/{id}/replies
func (h *ReviewHandler) Reply(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody[ReplyRequest](w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	input := service.ReplyInput{
		ParentID: chi.URLParam(r, "id"),
		Body:     req.Body,
	}
	if claims != nil {
		input.AuthorID = claims.UserID
		input.AuthorName = claims.Name
		input.AuthorAvatar = claims.Avatar
	}

	reply, err := h.service.Reply(r.Context(), &input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: reply})
}

// GetTargetReviews handles GET /api/v1/reviews/target/{targetId}
func (h *ReviewHandler) GetTargetReviews(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetId")
	viewerID := middleware.UserIDFromContext(r.Context())

	tree, err := h.service.ListByTarget(r.Context(), targetID, viewerID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tree})
}

// ListMyReviews handles GET /api/v1/reviews/my-reviews
func (h *ReviewHandler) ListMyReviews(w http.ResponseWriter, r *http.Request) {
	authorID := middleware.UserIDFromContext(r.Context())
	params := pagination.FromRequest(r)

	result, err := h.service.ListMyReviews(r.Context(), authorID, params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// UpdateReview handles PUT /api/v1/reviews/{id}
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody[UpdateReviewRequest](w, r)
	if !ok {
		return
	}

	review, err := h.service.UpdateReview(r.Context(), &service.UpdateReviewInput{
		NodeID:      chi.URLParam(r, "id"),
		RequesterID: middleware.UserIDFromContext(r.Context()),
		Rating:      req.Rating,
		Body:        req.Body,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// DeleteReview handles DELETE /api/v1/reviews/{id}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.DeleteReview(r.Context(),
		chi.URLParam(r, "id"),
		middleware.UserIDFromContext(r.Context()),
	)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// The refreshed tree so the caller is never left holding a stale view.
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tree})
}

// React handles POST /api/v1/reviews/{id}/reactions
func (h *ReviewHandler) React(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody[ReactionRequest](w, r)
	if !ok {
		return
	}

	review, err := h.service.React(r.Context(),
		chi.URLParam(r, "id"),
		middleware.UserIDFromContext(r.Context()),
		req.Kind,
	)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// PurgeUserReactions handles DELETE /api/v1/admin/users/{userId}/reactions
func (h *ReviewHandler) PurgeUserReactions(w http.ResponseWriter, r *http.Request) {
	affected, err := h.service.PurgeUserReactions(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]int{"affected": affected},
	})
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return req, false
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return req, false
	}
	return req, true
}
