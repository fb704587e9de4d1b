package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/poflow-backend/pkg/config"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthLive(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthLive(&config.Config{App: config.AppConfig{Env: "dev"}}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":{"status":"live","env":"dev"}}`, resp.Body.String())
}

func TestHealthReady(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthReady(nil, map[string]Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{},
		"gcs":   nil,
	}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHealthReadyReportsFailures(t *testing.T) {
	resp := httptest.NewRecorder()
	HealthReady(nil, map[string]Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: errors.New("connection refused")},
		"gcs":   stubPinger{err: errors.New("timeout")},
	}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), `"failed":["gcs","redis"]`)
}
