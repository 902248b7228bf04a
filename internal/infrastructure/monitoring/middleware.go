package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests that hit no route, keeping path cardinality bounded
const unmatchedRoute = "unmatched"

// Middleware records request count and latency per route template.
// The websocket upgrade route is skipped since its duration is the session length.
func Middleware(metrics *Metrics, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one component operation
type Timer struct {
	start     time.Time
	metrics   *Metrics
	component string
	operation string
}

// NewTimer starts a timer; a nil metrics collector makes Stop a no-op
func NewTimer(metrics *Metrics, component, operation string) *Timer {
	return &Timer{start: time.Now(), metrics: metrics, component: component, operation: operation}
}

// Stop records the elapsed time under the given status and returns it
func (t *Timer) Stop(status string) time.Duration {
	elapsed := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.RecordOperation(t.component, t.operation, status, elapsed)
	}
	return elapsed
}
