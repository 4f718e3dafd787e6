package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"atmcore/config"
	"atmcore/database"
	"atmcore/utils"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	cfg.JWT.SecretKey = "main-test-secret"
	cfg.DB.Driver = "memory"
	cfg.Scheduler.Enabled = true

	a, err := newApp(context.Background(), cfg, utils.NewDiscardLogger(), database.NewMemoryStore())
	require.NoError(t, err)
	return a
}

func TestHealthHandler(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	a.ops.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthHandlerMethodNotAllowed(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rr := httptest.NewRecorder()
	a.ops.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetricsHandler(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	a.ops.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "total_requests")
	assert.Contains(t, body, "error_types")
}

func TestNewApp_SeedsMemoryStore(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cards/validate-pin",
		jsonBody(t, map[string]string{"cardNumber": database.DemoCardNumber, "pin": database.DemoPIN}))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.api.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotNil(t, a.scheduler)
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func TestOpsBlockAndUnblockCard(t *testing.T) {
	a := newTestApp(t)
	card, err := a.store.FindCardByNumber(context.Background(),
		utils.CardNumberDigest(database.DemoCardNumber, a.cfg.Security.CardHMACKey))
	require.NoError(t, err)

	login := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/cards/validate-pin",
			jsonBody(t, map[string]string{"cardNumber": database.DemoCardNumber, "pin": database.DemoPIN}))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		a.api.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	req := httptest.NewRequest(http.MethodPost, "/cards/"+card.ID.String()+"/block",
		jsonBody(t, map[string]string{"reason": "REPORTED_STOLEN"}))
	rr := httptest.NewRecorder()
	a.ops.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, http.StatusUnauthorized, login())

	req = httptest.NewRequest(http.MethodPost, "/cards/"+card.ID.String()+"/unblock", nil)
	rr = httptest.NewRecorder()
	a.ops.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, http.StatusOK, login())
}

func TestOpsBlockCard_Validation(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/cards/not-a-uuid/block", jsonBody(t, map[string]string{"reason": "x"}))
	rr := httptest.NewRecorder()
	a.ops.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/cards/5b0f4f44-6f5e-4c44-9b55-4f1b1d1a0c11/unblock", nil)
	rr = httptest.NewRecorder()
	a.ops.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRun_LogsSchedulerStartOnce(t *testing.T) {
	cfg := config.Default()
	cfg.JWT.SecretKey = "main-test-secret"
	cfg.DB.Driver = "memory"
	cfg.Scheduler.Enabled = true
	cfg.Server.Port = 0
	cfg.Ops.Port = 0

	log, hook := test.NewNullLogger()
	a, err := newApp(context.Background(), cfg, log, database.NewMemoryStore())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.run(ctx))

	started := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "Планировщик обслуживания запущен" {
			started++
		}
	}
	assert.Equal(t, 1, started)
}
