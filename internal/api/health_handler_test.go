package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBucket struct{ err error }

func (s stubBucket) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, s.err
}

func TestHealthReadiness(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hc := NewHealthChecker(db, rdb, stubBucket{}, "images")
	w := httptest.NewRecorder()
	hc.HandleReadiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Ready        bool                       `json:"ready"`
		Status       string                     `json:"status"`
		Dependencies map[string]DependencyState `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.Equal(t, dirServing, body.Status)
	assert.Equal(t, depOK, body.Dependencies["listings_db"].State)
	assert.True(t, body.Dependencies["listings_db"].Required)
	assert.Equal(t, depOK, body.Dependencies["usage_cache"].State)
	assert.Equal(t, depOK, body.Dependencies["image_bucket"].State)
}

func TestHealthReadinessDatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	hc := NewHealthChecker(db, nil, stubBucket{err: errors.New("forbidden")}, "images")
	w := httptest.NewRecorder()
	hc.HandleReadiness(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = httptest.NewRecorder()
	hc.HandleLiveness(w, httptest.NewRequest("GET", "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthBucketFailureOnlyDegrades(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	hc := NewHealthChecker(db, nil, stubBucket{err: errors.New("forbidden")}, "images")
	w := httptest.NewRecorder()
	hc.HandleHealth(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, dirDegraded, body.Status)
	assert.Equal(t, depOff, body.Dependencies["usage_cache"].State)
	bucket := body.Dependencies["image_bucket"]
	assert.Equal(t, depUnreachable, bucket.State)
	assert.Contains(t, bucket.Detail, "bucket images")
}

func TestDependencyCheckSlow(t *testing.T) {
	d := dependency{
		name:      "usage_cache",
		timeout:   time.Second,
		slowAfter: time.Millisecond,
		ping: func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		},
	}
	assert.Equal(t, depSlow, d.check(context.Background()).State)
}

func TestDirectoryState(t *testing.T) {
	assert.Equal(t, dirServing, directoryState(map[string]DependencyState{
		"listings_db": {State: depOK, Required: true},
		"usage_cache": {State: depOff},
	}))
	assert.Equal(t, dirDegraded, directoryState(map[string]DependencyState{
		"listings_db":  {State: depOK, Required: true},
		"image_bucket": {State: depUnreachable},
	}))
	assert.Equal(t, dirDegraded, directoryState(map[string]DependencyState{
		"listings_db": {State: depSlow, Required: true},
	}))
	assert.Equal(t, dirDown, directoryState(map[string]DependencyState{
		"listings_db": {State: depUnreachable, Required: true},
	}))
	assert.Equal(t, dirDown, directoryState(map[string]DependencyState{
		"listings_db": {State: depOff, Required: true},
	}))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "42s", formatUptime(42*time.Second))
	assert.Equal(t, "2m 5s", formatUptime(125*time.Second))
	assert.Equal(t, "1d 1h 0m 3s", formatUptime(25*time.Hour+3*time.Second))
}
