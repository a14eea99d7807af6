package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/httputil"
)

// Dependency states.
const (
	depOK          = "ok"
	depSlow        = "slow"
	depUnreachable = "unreachable"
	depOff         = "off"
)

// Directory states. Listings can be served without Redis or the image
// bucket (pool rotation resets, cards fall back to placeholders) but not
// without Postgres.
const (
	dirServing  = "serving"
	dirDegraded = "degraded"
	dirDown     = "down"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status       string                     `json:"status"`
	Version      string                     `json:"version"`
	Uptime       string                     `json:"uptime"`
	Dependencies map[string]DependencyState `json:"dependencies"`
}

// DependencyState is the last observed state of one backing service.
type DependencyState struct {
	State    string `json:"state"`
	Required bool   `json:"required"`
	Took     string `json:"took,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// BucketHeader is the S3 call used to check the image bucket.
type BucketHeader interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// dependency is one backing service and how to reach it. A nil ping means
// the service is not configured in this deployment.
type dependency struct {
	name      string
	required  bool
	timeout   time.Duration
	slowAfter time.Duration
	ping      func(ctx context.Context) error
}

// HealthChecker reports whether the directory can serve listings.
type HealthChecker struct {
	deps      []dependency
	startTime time.Time
}

// NewHealthChecker wires the listing database, the usage cache and the
// image bucket. Any of them may be nil.
func NewHealthChecker(db *sql.DB, redisClient redis.Cmdable, s3Client BucketHeader, s3Bucket string) *HealthChecker {
	listings := dependency{name: "listings_db", required: true, timeout: 3 * time.Second, slowAfter: time.Second}
	if db != nil {
		listings.ping = db.PingContext
	}

	usage := dependency{name: "usage_cache", timeout: 2 * time.Second, slowAfter: 500 * time.Millisecond}
	if redisClient != nil {
		usage.ping = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	images := dependency{name: "image_bucket", timeout: 3 * time.Second, slowAfter: 2 * time.Second}
	if s3Client != nil && s3Bucket != "" {
		bucket := s3Bucket
		images.ping = func(ctx context.Context) error {
			if _, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucket}); err != nil {
				return fmt.Errorf("bucket %s: %w", bucket, err)
			}
			return nil
		}
	}

	return &HealthChecker{deps: []dependency{listings, usage, images}, startTime: time.Now()}
}

const healthVersion = "1.0.0"

// HandleHealth reports every dependency. It answers 200 even when the
// directory is down; use /health/ready for routing decisions.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	deps := hc.checkAll(r.Context())
	httputil.JSON(w, http.StatusOK, HealthStatus{
		Status:       directoryState(deps),
		Version:      healthVersion,
		Uptime:       formatUptime(time.Since(hc.startTime)),
		Dependencies: deps,
	})
}

// HandleLiveness answers 200 while the process is up.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness answers 503 when listings cannot be served.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	deps := hc.checkAll(r.Context())
	state := directoryState(deps)

	code := http.StatusOK
	if state == dirDown {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]interface{}{
		"ready":        state != dirDown,
		"status":       state,
		"dependencies": deps,
	})
}

func (hc *HealthChecker) checkAll(ctx context.Context) map[string]DependencyState {
	out := make(map[string]DependencyState, len(hc.deps))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, d := range hc.deps {
		wg.Add(1)
		go func(d dependency) {
			defer wg.Done()
			st := d.check(ctx)
			mu.Lock()
			out[d.name] = st
			mu.Unlock()
		}(d)
	}
	wg.Wait()
	return out
}

func (d dependency) check(ctx context.Context) DependencyState {
	st := DependencyState{Required: d.required}
	if d.ping == nil {
		st.State = depOff
		return st
	}

	pingCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.ping(pingCtx)
	took := time.Since(start)
	st.Took = took.Round(time.Millisecond).String()

	switch {
	case err != nil:
		st.State = depUnreachable
		st.Detail = err.Error()
	case took > d.slowAfter:
		st.State = depSlow
		st.Detail = fmt.Sprintf("answered after %s, limit %s", st.Took, d.slowAfter)
	default:
		st.State = depOK
	}
	return st
}

// directoryState folds dependency states into one. A required dependency
// that is unreachable or not configured takes the directory down. Anything
// else short of ok only degrades it; optional services that are off are
// ignored.
func directoryState(deps map[string]DependencyState) string {
	state := dirServing
	for _, d := range deps {
		switch {
		case d.Required && (d.State == depUnreachable || d.State == depOff):
			return dirDown
		case d.State == depUnreachable || d.State == depSlow:
			state = dirDegraded
		}
	}
	return state
}

// formatUptime renders d as e.g. "3d 4h 12m 5s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	secs := int(d.Seconds())
	days, secs := secs/86400, secs%86400
	hours, secs := secs/3600, secs%3600
	mins, secs := secs/60, secs%60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, mins, secs)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
