package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cascade-engine/internal/auth"
	"cascade-engine/internal/database"
	"cascade-engine/internal/models"
	"cascade-engine/internal/repository"
	"cascade-engine/internal/services"
)

type testServer struct {
	router  *gin.Engine
	repo    *repository.Repository
	cascade *models.Cascade
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.InitJWT("test-secret")

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewRepository(db)
	settlement := services.NewSettlementService(repo,
		services.NewPredictionScorer(services.DefaultScoringConfig()),
		services.NewProgressionUpdater(services.DefaultProgressionRules()))
	queue := services.NewResolutionQueueService(repo, settlement)

	cascade := &models.Cascade{
		Name:           "Rate cut ripple",
		Domain:         models.DomainEconomic,
		Severity:       6,
		Status:         models.CascadeStatusLive,
		TriggerEventID: "10",
		Risks:          []string{},
		Effects: []models.CascadeEffect{{
			EventID: "11", MarketName: "Will mortgage rates fall below 6%?", Direction: models.DirectionDown,
			Confidence: 0.8, Level: models.LevelPrimary,
		}},
	}
	require.NoError(t, repo.CreateCascade(context.Background(), cascade, []models.Event{
		{ID: "10", Slug: "fed-cut-march", Title: "Will the Fed cut rates in March?", Domain: models.DomainEconomic},
		{ID: "11", Slug: "mortgage-below-6", Title: "Will mortgage rates fall below 6%?", Domain: models.DomainEconomic},
	}))

	resolution := NewResolutionHandler(queue)
	cascades := NewCascadeHandler(repo)
	predictions := NewPredictionHandler(services.NewPredictionService(repo), repo)

	r := gin.New()
	r.GET("/api/resolution/status", resolution.GetStatus)
	r.GET("/api/cascades", cascades.GetCascades)
	r.GET("/api/cascades/:id", cascades.GetCascadeByID)
	r.GET("/api/progress/:userId", predictions.GetProgress)
	r.POST("/api/predictions", auth.AuthMiddleware(), predictions.CreatePrediction)
	r.POST("/api/admin/resolution/resolve", auth.AuthMiddleware(), auth.RequireAdmin(), resolution.ResolveManually)

	return &testServer{router: r, repo: repo, cascade: cascade}
}

func (s *testServer) do(t *testing.T, method, path, role string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := auth.GenerateToken("user-"+role, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestResolutionStatus(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodGet, "/api/resolution/status", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["pending"])
	assert.Equal(t, float64(0), data["resolved"])
	assert.Equal(t, false, data["sweep_active"])
}

func TestManualResolveRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	payload := gin.H{"event": "10", "outcome": "yes"}

	w, _ := s.do(t, http.MethodPost, "/api/admin/resolution/resolve", "", payload)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/admin/resolution/resolve", auth.RoleUser, payload)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/admin/resolution/resolve", auth.RoleAdmin, payload)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "yes", data["outcome"])
	assert.Equal(t, true, data["entry_resolved"])
}

func TestManualResolveErrors(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/admin/resolution/resolve", auth.RoleAdmin, gin.H{"event": "10", "outcome": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/admin/resolution/resolve", auth.RoleAdmin, gin.H{"event": "unknown", "outcome": "no"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/admin/resolution/resolve", auth.RoleAdmin, gin.H{"outcome": "no"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCascadeEndpoints(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/api/cascades?status=live", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, body = s.do(t, http.MethodGet, "/api/cascades?status=resolved", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])

	w, body = s.do(t, http.MethodGet, "/api/cascades/"+s.cascade.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Rate cut ripple", data["name"])
	assert.Len(t, data["effects"], 1)

	w, _ = s.do(t, http.MethodGet, "/api/cascades/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/cascades/00000000-0000-0000-0000-000000000001", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictionFlow(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/predictions", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/predictions", auth.RoleUser, gin.H{
		"target_type": "cascade", "target_id": s.cascade.ID.String(), "predicted_outcome": "yes", "confidence": 9,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/predictions", auth.RoleUser, gin.H{
		"target_type": "cascade", "target_id": s.cascade.ID.String(), "predicted_outcome": "yes", "confidence": 3, "tier": "EXPERT",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/predictions", auth.RoleUser, gin.H{
		"target_type": "cascade", "target_id": s.cascade.ID.String(), "predicted_outcome": "yes", "confidence": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "10", data["event_id"])
	assert.Equal(t, "user-user", data["user_id"])

	w, _ = s.do(t, http.MethodPost, "/api/admin/resolution/resolve", auth.RoleAdmin, gin.H{"event": "fed-cut-march", "outcome": "yes"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/progress/user-user", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	progress := body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), progress["correct_count"])
	assert.Equal(t, float64(180), progress["experience"])

	w, _ = s.do(t, http.MethodPost, "/api/predictions", auth.RoleUser, gin.H{
		"target_type": "challenge", "target_id": "10", "predicted_outcome": "no", "confidence": 2,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/progress/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
