package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinescope/review-service/internal/event"
	"github.com/cinescope/review-service/internal/repository/memory"
	"github.com/cinescope/review-service/internal/service"
	"github.com/cinescope/review-service/pkg/health"
	"github.com/cinescope/review-service/pkg/httputil"
	pkgkafka "github.com/cinescope/review-service/pkg/kafka"
	"github.com/cinescope/review-service/pkg/middleware"
)

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEventProducer() *event.Producer {
	logger := testLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

// testValidator accepts tokens of the form "id:role".
func testValidator(token string) (*middleware.Claims, error) {
	id, role, ok := strings.Cut(token, ":")
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return &middleware.Claims{UserID: id, Name: "name-" + id, Role: role}, nil
}

// setupRouter wires the production route layout over an in-memory store.
func setupRouter() http.Handler {
	logger := testLogger()
	svc := service.NewReviewService(memory.NewStore(), testEventProducer(), nil, nil, logger)
	return NewRouter(svc, health.NewHandler("review"), testValidator, RouterConfig{
		CORS: middleware.DefaultCORSConfig(),
	}, logger)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type singleResponse struct {
	Data  *service.ReviewProjection `json:"data"`
	Error *httputil.ErrorResponse   `json:"error"`
}

type treeResponse struct {
	Data  []*service.ReviewProjection `json:"data"`
	Error *httputil.ErrorResponse     `json:"error"`
}

func decodeSingle(t *testing.T, rec *httptest.ResponseRecorder) singleResponse {
	t.Helper()
	var resp singleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeTree(t *testing.T, rec *httptest.ResponseRecorder) treeResponse {
	t.Helper()
	var resp treeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

const reviewBody = "One of the strongest seasons of television in years."

func createReview(t *testing.T, router http.Handler, token, targetID string, rating int) *service.ReviewProjection {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/reviews", token, map[string]any{
		"target_id": targetID,
		"rating":    rating,
		"body":      reviewBody,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeSingle(t, rec).Data
}

// ============================================================================
// Tests
// ============================================================================

func TestCreateReview_HTTP(t *testing.T) {
	router := setupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reviews", "user-1:user", map[string]any{
		"target_id": "tt0903747",
		"rating":    9,
		"body":      reviewBody,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeSingle(t, rec)
	require.NotNil(t, resp.Data)
	assert.NotEmpty(t, resp.Data.ID)
	assert.Equal(t, "tt0903747", resp.Data.TargetID)
	assert.Equal(t, "user-1", resp.Data.AuthorID)
	assert.Equal(t, "name-user-1", resp.Data.AuthorName)
	assert.Equal(t, 9, resp.Data.Rating)
}

func TestCreateReview_HTTP_Unauthenticated(t *testing.T) {
	router := setupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reviews", "", map[string]any{
		"target_id": "tt0903747",
		"rating":    9,
		"body":      reviewBody,
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateReview_HTTP_ValidationError(t *testing.T) {
	router := setupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reviews", "user-1:user", map[string]any{
		"target_id": "tt0903747",
		"rating":    11,
		"body":      reviewBody,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateReview_HTTP_BodyTooShort(t *testing.T) {
	router := setupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reviews", "user-1:user", map[string]any{
		"target_id": "tt0903747",
		"rating":    7,
		"body":      "too short",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeSingle(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BODY_TOO_SHORT", resp.Error.Code)
}

func TestReply_HTTP(t *testing.T) {
	router := setupRouter()
	root := createReview(t, router, "user-1:user", "tt0903747", 8)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reviews/"+root.ID+"/replies", "user-2:user", map[string]any{
		"body": reviewBody,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeSingle(t, rec)
	assert.Equal(t, root.ID, resp.Data.ParentID)
	assert.Equal(t, "tt0903747", resp.Data.TargetID)
	assert.Zero(t, resp.Data.Rating)
}

func TestReply_HTTP_ParentNotFound(t *testing.T) {
	router := setupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reviews/missing/replies", "user-2:user", map[string]any{
		"body": reviewBody,
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTargetReviews_HTTP(t *testing.T) {
	router := setupRouter()
	root := createReview(t, router, "user-1:user", "tt0903747", 8)

	reactRec := doJSON(t, router, http.MethodPost, "/api/v1/reviews/"+root.ID+"/reactions", "user-2:user", map[string]any{
		"kind": "like",
	})
	require.Equal(t, http.StatusOK, reactRec.Code)

	// Anonymous viewer sees counts but no user_action.
	rec := doJSON(t, router, http.MethodGet, "/api/v1/reviews/target/tt0903747", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decodeTree(t, rec)
	require.Len(t, tree.Data, 1)
	assert.Equal(t, 1, tree.Data[0].LikesCount)
	assert.Empty(t, tree.Data[0].UserAction)

	// The reacting viewer sees their own action.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/reviews/target/tt0903747", "user-2:user", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree = decodeTree(t, rec)
	require.Len(t, tree.Data, 1)
	assert.Equal(t, "like", tree.Data[0].UserAction)
}

func TestUpdateReview_HTTP_NotOwner(t *testing.T) {
	router := setupRouter()
	root := createReview(t, router, "user-1:user", "tt0903747", 8)

	rec := doJSON(t, router, http.MethodPut, "/api/v1/reviews/"+root.ID, "user-2:user", map[string]any{
		"rating": 1,
		"body":   reviewBody,
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateReview_HTTP(t *testing.T) {
	router := setupRouter()
	root := createReview(t, router, "user-1:user", "tt0903747", 8)

	newBody := "On reflection this deserves a higher score than I first gave."
	rec := doJSON(t, router, http.MethodPut, "/api/v1/reviews/"+root.ID, "user-1:user", map[string]any{
		"rating": 10,
		"body":   newBody,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSingle(t, rec)
	assert.Equal(t, 10, resp.Data.Rating)
	assert.Equal(t, newBody, resp.Data.Body)
	assert.True(t, resp.Data.IsEdited)
}

func TestDeleteReview_HTTP_Cascade(t *testing.T) {
	router := setupRouter()
	root := createReview(t, router, "user-1:user", "tt0903747", 8)

	replyRec := doJSON(t, router, http.MethodPost, "/api/v1/reviews/"+root.ID+"/replies", "user-2:user", map[string]any{
		"body": reviewBody,
	})
	require.Equal(t, http.StatusCreated, replyRec.Code)
	reply := decodeSingle(t, replyRec).Data

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/reviews/"+root.ID, "user-1:user", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decodeTree(t, rec)
	assert.Empty(t, tree.Data)

	// The cascaded reply is gone too.
	reactRec := doJSON(t, router, http.MethodPost, "/api/v1/reviews/"+reply.ID+"/reactions", "user-2:user", map[string]any{
		"kind": "like",
	})
	assert.Equal(t, http.StatusNotFound, reactRec.Code)
}

func TestReact_HTTP_Toggle(t *testing.T) {
	router := setupRouter()
	root := createReview(t, router, "user-1:user", "tt0903747", 8)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reviews/"+root.ID+"/reactions", "user-2:user", map[string]any{
		"kind": "like",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSingle(t, rec)
	assert.Equal(t, 1, resp.Data.LikesCount)
	assert.Equal(t, "like", resp.Data.UserAction)

	// Same reaction again toggles it off.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/reviews/"+root.ID+"/reactions", "user-2:user", map[string]any{
		"kind": "like",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeSingle(t, rec)
	assert.Zero(t, resp.Data.LikesCount)
	assert.Empty(t, resp.Data.UserAction)
}

func TestReact_HTTP_InvalidKind(t *testing.T) {
	router := setupRouter()
	root := createReview(t, router, "user-1:user", "tt0903747", 8)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reviews/"+root.ID+"/reactions", "user-2:user", map[string]any{
		"kind": "love",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMyReviews_HTTP(t *testing.T) {
	router := setupRouter()
	createReview(t, router, "user-1:user", "tt0903747", 8)
	createReview(t, router, "user-1:user", "tt0108778", 6)
	createReview(t, router, "user-2:user", "tt0903747", 9)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/reviews/my-reviews?page=1&per_page=10", "user-1:user", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Data       []*service.ReviewProjection `json:"data"`
		TotalCount int                         `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Len(t, result.Data, 2)
	assert.Equal(t, 2, result.TotalCount)
}

func TestPurgeUserReactions_HTTP(t *testing.T) {
	router := setupRouter()
	root := createReview(t, router, "user-1:user", "tt0903747", 8)

	reactRec := doJSON(t, router, http.MethodPost, "/api/v1/reviews/"+root.ID+"/reactions", "user-2:user", map[string]any{
		"kind": "dislike",
	})
	require.Equal(t, http.StatusOK, reactRec.Code)

	// Non-admin cannot purge.
	rec := doJSON(t, router, http.MethodDelete, "/api/v1/admin/users/user-2/reactions", "user-3:user", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/admin/users/user-2/reactions", "admin-1:admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Data["affected"])

	// The dislike is gone from the tree.
	treeRec := doJSON(t, router, http.MethodGet, "/api/v1/reviews/target/tt0903747", "", nil)
	tree := decodeTree(t, treeRec)
	require.Len(t, tree.Data, 1)
	assert.Zero(t, tree.Data[0].DislikesCount)
}

func TestHealthEndpoints_HTTP(t *testing.T) {
	router := setupRouter()

	rec := doJSON(t, router, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
