package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/learnizone/enrollcore/pkg/enrollment"
	"github.com/learnizone/enrollcore/pkg/metrics"
	"github.com/learnizone/enrollcore/pkg/storage"
	"github.com/learnizone/enrollcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-0123456789"

type testServer struct {
	server *Server
	tokens *TokenManager
	svc    *enrollment.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc, err := enrollment.NewService(storage.NewMemoryStore(), enrollment.Config{RetryBackoff: time.Millisecond})
	require.NoError(t, err)
	tokens, err := NewTokenManager(testSecret, "enrollcore-test", time.Hour)
	require.NoError(t, err)
	return &testServer{server: NewServer(svc, tokens, Config{}), tokens: tokens, svc: svc}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorDetail    `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path, userID, body string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := ts.tokens.Issue(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func TestEnrollFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, env := ts.do(t, http.MethodPost, "/v1/courses/go-101/enrollment", "alice", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, env.Success)

	var record types.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, "alice", record.UserID)
	assert.Equal(t, "go-101", record.CourseID)
	assert.Equal(t, types.EnrollmentStatusActive, record.Status)

	resp, env = ts.do(t, http.MethodPost, "/v1/courses/go-101/enrollment", "alice", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "already_enrolled", env.Error.Code)

	resp, env = ts.do(t, http.MethodGet, "/v1/me/courses", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var courses []string
	require.NoError(t, json.Unmarshal(env.Data, &courses))
	assert.Equal(t, []string{"go-101"}, courses)

	resp, _ = ts.do(t, http.MethodDelete, "/v1/courses/go-101/enrollment", "alice", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, env = ts.do(t, http.MethodDelete, "/v1/courses/go-101/enrollment", "alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_enrolled", env.Error.Code)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)

	resp, env := ts.do(t, http.MethodPost, "/v1/courses/go-101/enrollment", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "not_authenticated", env.Error.Code)

	other, err := NewTokenManager("another-secret-0123456789", "enrollcore-test", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue("alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/me/courses", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	res, err := ts.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestProgressEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/v1/courses/go-101/enrollment", "alice", "")

	resp, env := ts.do(t, http.MethodPut, "/v1/courses/go-101/progress", "alice",
		`{"progress":0.5,"timeSpentMinutes":30,"lessonsCompleted":5,"totalLessons":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var record types.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, 0.5, record.Progress)
	assert.Equal(t, 30, record.TimeSpentMinutes)

	var derived map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &derived))
	assert.Equal(t, true, derived["isActive"])
	assert.Equal(t, false, derived["isCompleted"])
	assert.Equal(t, "50.0%", derived["progressPercentage"])
	assert.Equal(t, "30min", derived["formattedTimeSpent"])
	assert.Equal(t, 50.0, derived["completionPercentage"])

	resp, env = ts.do(t, http.MethodPut, "/v1/courses/go-101/progress", "alice", `{"timeSpentMinutes":-5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", env.Error.Code)

	resp, _ = ts.do(t, http.MethodPut, "/v1/courses/go-101/progress", "alice", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPut, "/v1/courses/go-101/progress", "alice", `{"progress":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = ts.do(t, http.MethodPost, "/v1/courses/go-101/certificate", "alice", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "not_completed", env.Error.Code)

	ts.do(t, http.MethodPut, "/v1/courses/go-101/progress", "alice", `{"progress":1}`)
	resp, env = ts.do(t, http.MethodPost, "/v1/courses/go-101/certificate", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.True(t, record.CertificateIssued)
	assert.Equal(t, types.EnrollmentStatusCompleted, record.Status)
}

func TestListingEndpoints(t *testing.T) {
	ts := newTestServer(t)
	for _, c := range []string{"a", "b", "c"} {
		ts.do(t, http.MethodPost, "/v1/courses/"+c+"/enrollment", "alice", "")
	}
	ts.do(t, http.MethodPut, "/v1/courses/b/progress", "alice", `{"progress":0.4}`)
	ts.do(t, http.MethodDelete, "/v1/courses/c/enrollment", "alice", "")

	_, env := ts.do(t, http.MethodGet, "/v1/enrollments", "alice", "")
	var records []types.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &records))
	assert.Len(t, records, 3)

	_, env = ts.do(t, http.MethodGet, "/v1/enrollments?status=active,completed", "alice", "")
	require.NoError(t, json.Unmarshal(env.Data, &records))
	assert.Len(t, records, 2)

	resp, _ := ts.do(t, http.MethodGet, "/v1/enrollments?status=paused", "alice", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, env = ts.do(t, http.MethodGet, "/v1/enrollments/in-progress", "alice", "")
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].CourseID)

	_, env = ts.do(t, http.MethodGet, "/v1/courses/b/enrollment", "alice", "")
	var record types.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, 0.4, record.Progress)

	resp, env = ts.do(t, http.MethodGet, "/v1/courses/a/stats", "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats types.CourseStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalEnrollments)
	assert.Equal(t, 1, stats.ActiveEnrollments)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	resp, env := ts.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.server.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health metrics.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.NotZero(t, health.Timestamp)

	metrics.RegisterComponent("store", true, "")
	metrics.RegisterComponent("api", true, "")
	resp, err = ts.server.App().Test(httptest.NewRequest(http.MethodGet, "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metrics.UpdateComponent("store", false, "disk full")
	resp, err = ts.server.App().Test(httptest.NewRequest(http.MethodGet, "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	metrics.UpdateComponent("store", true, "")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/v1/courses/go-101/enrollment", "alice", "")

	resp, err := ts.server.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "enrollcore_api_requests_total")
	assert.Contains(t, string(body), "enrollcore_operations_total")
}
