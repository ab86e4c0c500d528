package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"SignalScanner/internal/model"
	"SignalScanner/internal/store"
)

// parseQuery reads symbol, from, to, limit and latest. On failure it writes
// a 400 and returns false.
func parseQuery(c *gin.Context) (store.Query, bool) {
	q := store.Query{Symbol: c.Query("symbol"), Limit: defaultLimit}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := model.ParseDay(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": p.name + " must be YYYY-MM-DD"})
			return q, false
		}
		*p.dst = t
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to is before from"})
		return q, false
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return q, false
		}
		q.Limit = min(n, maxLimit)
	}
	if v := c.Query("latest"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "latest must be true or false"})
			return q, false
		}
		q.Latest = b
	}
	return q, true
}

type runJSON struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Degraded   int       `json:"degraded"`
	Cancelled  bool      `json:"cancelled"`
}

func toRunJSON(r model.RunSummary) runJSON {
	return runJSON{
		RunID:      r.RunID,
		Mode:       string(r.Mode),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Attempted:  r.Attempted,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Degraded:   r.Degraded,
		Cancelled:  r.Cancelled,
	}
}
