// Package web serves the live monitor: a JSON API to start and stop hunts, a
// WebSocket feed of crawl events and the generated documents.
package web

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/PentesterFlow/APIHunter/internal/analyzer"
	"github.com/PentesterFlow/APIHunter/internal/auth"
	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/models"
	"github.com/PentesterFlow/APIHunter/internal/output"
	"github.com/PentesterFlow/APIHunter/internal/websocket"
	"github.com/PentesterFlow/APIHunter/pkg/crawler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Phases reported by /api/status.
const (
	PhaseIdle      = "idle"
	PhaseStarting  = "starting"
	PhaseCrawling  = "crawling"
	PhaseAnalyzing = "analyzing"
	PhaseWriting   = "writing"
	PhaseDone      = "done"
	PhaseStopped   = "stopped"
	PhaseFailed    = "failed"
)

// Status is the body of GET /api/status.
type Status struct {
	Running       bool            `json:"running"`
	Phase         string          `json:"phase"`
	RunID         string          `json:"run_id,omitempty"`
	StartURL      string          `json:"start_url,omitempty"`
	PagesVisited  int             `json:"pages_visited"`
	MaxPages      int             `json:"max_pages"`
	Queue         int             `json:"queue"`
	Captured      int             `json:"captured"`
	Errors        int             `json:"errors"`
	Endpoints     int             `json:"endpoints"`
	WaitingFor2FA bool            `json:"waiting_for_2fa"`
	Challenge     *auth.Challenge `json:"challenge,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// EndpointSummary is one row of GET /api/endpoints.
type EndpointSummary struct {
	Method        string   `json:"method"`
	Path          string   `json:"path"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	CapturedCount int      `json:"captured_count"`
	Responses     []int    `json:"responses"`
}

// Complete is the payload of the complete message.
type Complete struct {
	RunID          string   `json:"run_id"`
	PagesVisited   int      `json:"pages_visited"`
	EndpointsFound int      `json:"endpoints_found"`
	Duration       float64  `json:"duration_seconds"`
	Stopped        bool     `json:"stopped"`
	Files          []string `json:"files"`
}

// Server runs at most one hunt at a time and streams its progress.
type Server struct {
	outputDir string
	log       *logger.Logger
	hub       *websocket.Hub
	codes     *auth.ChannelProvider
	crawlOpts []crawler.Option
	router    chi.Router

	mu        sync.Mutex
	status    Status
	endpoints []EndpointSummary
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithCrawlOptions appends options to every crawler the server builds.
func WithCrawlOptions(opts ...crawler.Option) Option {
	return func(s *Server) { s.crawlOpts = append(s.crawlOpts, opts...) }
}

// WithCodeTimeout bounds how long a 2FA challenge waits for POST /api/2fa.
func WithCodeTimeout(d time.Duration) Option {
	return func(s *Server) { s.codes = auth.NewChannelProvider(d, s.announceChallenge) }
}

// NewServer creates a monitor writing documents under outputDir.
func NewServer(outputDir string, opts ...Option) *Server {
	s := &Server{
		outputDir: outputDir,
		log:       logger.Nop(),
		status:    Status{Phase: PhaseIdle},
	}
	s.codes = auth.NewChannelProvider(auth.DefaultCodeTimeout, s.announceChallenge)
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("web")
	s.hub = websocket.NewHub(websocket.WithLogger(s.log), websocket.WithMessageHandler(s.onClientMessage))
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then stops any
// running hunt and shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Monitor listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Stop()
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.Wait()
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/endpoints", s.handleEndpoints)
		r.Get("/docs/openapi", s.handleDoc(output.OpenAPIYAMLFile, "application/yaml"))
		r.Get("/docs/markdown", s.handleDoc(output.MarkdownFile, "text/markdown; charset=utf-8"))
		r.Post("/crawl", s.handleCrawl)
		r.Post("/stop", s.handleStop)
		r.Post("/2fa", s.handleTwoFactor)
	})
	r.Handle("/ws", s.hub)

	snapshots := http.FileServer(http.Dir(filepath.Join(s.outputDir, "snapshots")))
	r.Handle("/snapshots/*", http.StripPrefix("/snapshots/", snapshots))
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithField("status", ww.Status()).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Debugf("%s %s", r.Method, r.URL.Path)
	})
}

// Start launches a hunt in the background. It fails if one is running or cfg is invalid.
func (s *Server) Start(cfg *crawler.Config) error {
	cfg = cfg.Clone()
	cfg.OutputDir = s.outputDir

	opts := append([]crawler.Option{
		crawler.WithConfig(cfg),
		crawler.WithLogger(s.log),
		crawler.WithNotifier(s.forward),
		crawler.WithCodeProvider(s.codes),
	}, s.crawlOpts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Running {
		return ErrBusy
	}

	c, err := crawler.New(opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.endpoints = nil
	s.status = Status{
		Running:   true,
		Phase:     PhaseStarting,
		StartURL:  cfg.StartURL,
		MaxPages:  cfg.MaxPages,
		StartedAt: &now,
	}
	s.hub.Reset()

	go s.run(ctx, c, s.done)
	return nil
}

// Stop cancels the running hunt, if any.
func (s *Server) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Running || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Wait blocks until the current hunt, if any, has finished.
func (s *Server) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status returns a snapshot of the hunt state.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Endpoints = len(s.endpoints)
	if ch, ok := s.codes.Pending(); ok {
		st.WaitingFor2FA = true
		st.Challenge = &ch
	}
	return st
}

// Endpoints returns the endpoint table of the last hunt.
func (s *Server) Endpoints() []EndpointSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EndpointSummary(nil), s.endpoints...)
}

func (s *Server) run(ctx context.Context, c *crawler.Crawler, done chan struct{}) {
	defer close(done)
	defer s.finish(PhaseFailed)

	cfg := c.Config()
	s.setPhase(PhaseCrawling)
	s.broadcast(websocket.TypeStatus, s.Status())

	res, captured, err := c.Crawl(ctx)
	stopped := stderrors.Is(err, context.Canceled)
	if err != nil && !stopped {
		s.fail(err)
		if res == nil || len(res.VisitedURLs) == 0 {
			return
		}
	}
	if res != nil {
		s.mu.Lock()
		s.status.RunID = res.RunID
		s.status.PagesVisited = len(res.VisitedURLs)
		s.status.Captured = res.Stats.Captured
		s.status.Errors = res.Stats.ErrorCount
		s.mu.Unlock()
	}

	// A stopped hunt still documents what it captured.
	s.setPhase(PhaseAnalyzing)
	acfg := cfg.AnalyzerConfig()
	acfg.Logger = s.log
	groups := analyzer.New(acfg).Analyze(captured)

	summaries := summarize(groups)
	s.mu.Lock()
	s.endpoints = summaries
	s.mu.Unlock()
	s.broadcast(websocket.TypeEndpoints, summaries)

	s.setPhase(PhaseWriting)
	manifest, werr := output.NewGenerator(s.outputDir, cfg.OutputFormat, s.log).Write(groups, cfg.DocOptions())
	if werr != nil {
		s.fail(werr)
		return
	}

	final := PhaseDone
	switch {
	case stopped:
		final = PhaseStopped
	case err != nil:
		final = PhaseFailed
	}
	s.finish(final)

	complete := Complete{
		EndpointsFound: len(groups),
		Stopped:        stopped,
		Files:          manifest.Files(),
	}
	if res != nil {
		complete.RunID = res.RunID
		complete.PagesVisited = len(res.VisitedURLs)
		complete.Duration = res.Duration.Seconds()
	}
	s.broadcast(websocket.TypeComplete, complete)
}

// finish marks the hunt as over. Only the first call for a hunt has effect.
func (s *Server) finish(phase string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Running {
		return
	}
	s.status.Running = false
	s.status.Phase = phase
	s.status.FinishedAt = &now
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Server) fail(err error) {
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.mu.Unlock()

	s.log.WithError(err).Warn("Hunt failed")
	s.broadcast(websocket.TypeError, map[string]string{"message": err.Error()})
}

func (s *Server) setPhase(phase string) {
	s.mu.Lock()
	s.status.Phase = phase
	s.mu.Unlock()
}

// forward relays crawler events to the hub and keeps the status counters current.
func (s *Server) forward(ev crawler.Event) {
	switch data := ev.Data.(type) {
	case crawler.Status:
		s.mu.Lock()
		if data.State == crawler.StateAuthenticating || data.State == crawler.StateCrawling {
			s.status.Phase = data.State
		}
		s.status.PagesVisited = data.PagesVisited
		s.status.Queue = data.Queue
		s.status.Captured = data.Captured
		s.status.Errors = data.Errors
		s.mu.Unlock()
		s.broadcast(websocket.TypeStatus, s.Status())
		return
	case crawler.SnapshotNotice:
		data.Path = "/snapshots/" + filepath.Base(data.Path)
		s.broadcast(websocket.TypeSnapshot, data)
		return
	}

	switch ev.Type {
	case crawler.EventPage:
		s.broadcast(websocket.TypePage, ev.Data)
	case crawler.EventCaptured:
		s.broadcast(websocket.TypeCaptured, ev.Data)
	case crawler.EventError:
		s.broadcast(websocket.TypeError, ev.Data)
	}
}

func (s *Server) broadcast(t websocket.MessageType, data interface{}) {
	if err := s.hub.Broadcast(t, data); err != nil {
		s.log.WithError(err).Debugf("Broadcast %s failed", t)
	}
}

func (s *Server) announceChallenge(ch auth.Challenge) {
	s.broadcast(websocket.TypeTwoFactorRequired, ch)
}

func (s *Server) onClientMessage(msg websocket.ClientMessage) {
	if msg.Type != "2fa_code" {
		return
	}
	if err := s.codes.Submit(msg.Data["code"]); err != nil {
		s.log.WithError(err).Debug("Ignoring 2FA code from WebSocket")
	}
}

func summarize(groups []models.EndpointGroup) []EndpointSummary {
	out := make([]EndpointSummary, 0, len(groups))
	for _, g := range groups {
		statuses := make([]int, 0, len(g.Responses))
		for _, r := range g.Responses {
			statuses = append(statuses, r.StatusCode)
		}
		tags := g.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, EndpointSummary{
			Method:        string(g.Method),
			Path:          g.PathPattern,
			Summary:       g.Summary,
			Tags:          tags,
			CapturedCount: len(g.Captured),
			Responses:     statuses,
		})
	}
	return out
}
