package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatvote-worker/model"
	"chatvote-worker/repository"
)

// setupOpsTest wires the ops handlers onto a fresh router backed by an
// in-memory database. The message queue adapter stays nil on purpose.
func setupOpsTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Poll{}, &model.Slot{}, &model.Option{}, &model.Participant{}, &model.Ballot{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})

	Init(nil, repository.NewGormPollRepository(db))

	router := gin.New()
	router.GET("/api/health", HealthCheck)
	router.GET("/api/status", SystemStatus)
	router.GET("/api/polls/:id/results", GetPollResults)
	router.GET("/api/mq/stats", QueueStats)

	return router, db
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupOpsTest(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetPollResults(t *testing.T) {
	router, db := setupOpsTest(t)

	require.NoError(t, db.Create(&model.Poll{
		ID: "p1", Kind: model.PollKindBasic, Title: "Lunch", OwnerID: "o",
		Status: model.PollStatusOpen,
	}).Error)
	require.NoError(t, db.Create(&model.Poll{
		ID: "p2", Kind: model.PollKindBasic, Title: "Dinner", OwnerID: "o",
		Status:     model.PollStatusFinalized,
		ResultJSON: `{"voter_count":3,"winner_ids":["o1"]}`,
	}).Error)

	// Unknown poll.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/polls/ghost/results", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Still open: results are not published before the finalize step.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/polls/p1/results", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Finalized poll returns the persisted result verbatim.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/polls/p2/results", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		PollID string          `json:"poll_id"`
		Title  string          `json:"title"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "p2", body.PollID)
	assert.Equal(t, "Dinner", body.Title)
	assert.JSONEq(t, `{"voter_count":3,"winner_ids":["o1"]}`, string(body.Result))
}

func TestQueueStatsWithoutAdapter(t *testing.T) {
	router, _ := setupOpsTest(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/mq/stats", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSystemStatus(t *testing.T) {
	router, _ := setupOpsTest(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "running", body["status"])
	assert.NotEmpty(t, body["uptime"])
}
