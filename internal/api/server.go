// Package api serves stored signals over HTTP and can trigger scans.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"SignalScanner/internal/export"
	"SignalScanner/internal/model"
	"SignalScanner/internal/scan"
	"SignalScanner/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Scanner runs full and incremental scans.
type Scanner interface {
	Scan(ctx context.Context, req scan.ScanRequest, progress scan.ProgressFunc) (model.RunSummary, error)
	ScanIncremental(ctx context.Context, req scan.IncrementalRequest, progress scan.ProgressFunc) (model.RunSummary, error)
}

// Server is the reporting HTTP API.
type Server struct {
	addr    string
	reader  store.Reader
	scanner Scanner
	router  *gin.Engine
	log     zerolog.Logger

	scanMu sync.Mutex
}

// NewServer builds the router. scanner may be nil, which disables POST /scans.
func NewServer(addr string, reader store.Reader, scanner Scanner, log zerolog.Logger) *Server {
	if addr == "" {
		addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    addr,
		reader:  reader,
		scanner: scanner,
		router:  router,
		log:     log.With().Str("component", "api").Logger(),
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	api := s.router.Group("/api/v1")
	api.GET("/fractals", s.handleFractals)
	api.GET("/narrow-ranges", s.handleNarrowRanges)
	api.GET("/crosses", s.handleCrosses)
	api.GET("/divergences", s.handleDivergences)
	api.GET("/runs", s.handleRuns)
	api.POST("/scans", s.handleScan)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleFractals(c *gin.Context) {
	q, ok := parseQuery(c)
	if !ok {
		return
	}
	events, err := s.reader.Fractals(c.Request.Context(), q)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fractals": export.FractalRows(events)})
}

func (s *Server) handleNarrowRanges(c *gin.Context) {
	q, ok := parseQuery(c)
	if !ok {
		return
	}
	events, err := s.reader.NarrowRanges(c.Request.Context(), q)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"narrow_ranges": export.NarrowRangeRows(events)})
}

func (s *Server) handleCrosses(c *gin.Context) {
	q, ok := parseQuery(c)
	if !ok {
		return
	}
	events, err := s.reader.Crosses(c.Request.Context(), q)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"crosses": export.CrossRows(events)})
}

func (s *Server) handleDivergences(c *gin.Context) {
	q, ok := parseQuery(c)
	if !ok {
		return
	}
	events, err := s.reader.Divergences(c.Request.Context(), q)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"divergences": export.DivergenceRows(events)})
}

func (s *Server) handleRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	runs, err := s.reader.Runs(c.Request.Context(), min(limit, maxLimit))
	if err != nil {
		s.storageError(c, err)
		return
	}
	out := make([]runJSON, len(runs))
	for i, r := range runs {
		out[i] = toRunJSON(r)
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

type scanBody struct {
	Mode         string `json:"mode"`
	Period       int    `json:"period"`
	LookbackDays int    `json:"lookback_days"`
	AsOf         string `json:"as_of"`
	SymbolLimit  int    `json:"symbol_limit"`
}

func (s *Server) handleScan(c *gin.Context) {
	if s.scanner == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "scans are disabled"})
		return
	}
	var body scanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var asOf time.Time
	if body.AsOf != "" {
		t, err := model.ParseDay(body.AsOf)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be YYYY-MM-DD"})
			return
		}
		asOf = t
	}
	if body.Period < 0 || body.LookbackDays < 0 || body.SymbolLimit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period, lookback_days and symbol_limit must not be negative"})
		return
	}

	if !s.scanMu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "a scan is already running"})
		return
	}
	defer s.scanMu.Unlock()

	ctx := c.Request.Context()
	var (
		sum model.RunSummary
		err error
	)
	switch body.Mode {
	case "", string(model.ModeIncremental):
		sum, err = s.scanner.ScanIncremental(ctx, scan.IncrementalRequest{
			Period: body.Period, AsOf: asOf, SymbolLimit: body.SymbolLimit,
		}, nil)
	case string(model.ModeFull):
		sum, err = s.scanner.Scan(ctx, scan.ScanRequest{
			Period: body.Period, LookbackDays: body.LookbackDays, AsOf: asOf, SymbolLimit: body.SymbolLimit,
		}, nil)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be full or incremental"})
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Str("mode", body.Mode).Msg("scan request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run": toRunJSON(sum)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": toRunJSON(sum)})
}

func (s *Server) storageError(c *gin.Context, err error) {
	s.log.Error().Err(err).Str("path", c.FullPath()).Msg("read")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info().Str("addr", s.addr).Msg("api listening")

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}
