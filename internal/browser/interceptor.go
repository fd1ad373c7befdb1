package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PentesterFlow/APIHunter/internal/discovery"
	"github.com/PentesterFlow/APIHunter/internal/errors"
	"github.com/PentesterFlow/APIHunter/internal/logger"
	"github.com/PentesterFlow/APIHunter/internal/metrics"
	"github.com/PentesterFlow/APIHunter/internal/models"
	"github.com/PentesterFlow/APIHunter/internal/scope"
)

// Resource types that never carry API traffic.
var skippedResourceTypes = map[string]bool{
	"document":   true,
	"stylesheet": true,
	"image":      true,
	"font":       true,
	"media":      true,
	"manifest":   true,
}

const bodyFetchTimeout = 5 * time.Second

// InterceptorConfig configures request filtering and buffering.
type InterceptorConfig struct {
	IncludePatterns []string
	ExcludePatterns []string
	// BufferSize bounds the event channel between the browser and the correlator.
	BufferSize int

	Logger   *logger.Logger
	Metrics  *metrics.Collector
	ErrorLog *errors.Log
}

// InterceptorStats counts what the correlator did with the events it saw.
type InterceptorStats struct {
	Requests   int `json:"requests"`
	Captured   int `json:"captured"`
	Duplicates int `json:"duplicates"`
	Unmatched  int `json:"unmatched"`
	BodyErrors int `json:"body_errors"`
	Pending    int `json:"pending"`
}

type pendingRequest struct {
	key        string
	request    models.CapturedRequest
	response   *models.CapturedResponse
	sourcePage string
}

type queued struct {
	ev    NetworkEvent
	flush chan struct{}
}

// Interceptor correlates request and response events into captured endpoints,
// keeping one example per request pattern.
type Interceptor struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
	log     *logger.Logger
	metrics *metrics.Collector
	errLog  *errors.Log

	events chan queued
	done   chan struct{}
	closed sync.Once

	mu         sync.RWMutex
	pending    map[string]*pendingRequest // METHOD:URL:requestID
	byID       map[string]string          // requestID -> pending key
	seen       map[string]struct{}
	captured   []models.CapturedEndpoint
	sourcePage string
	onCapture  func(models.CapturedEndpoint)
	stats      InterceptorStats
}

// NewInterceptor compiles the patterns and starts the correlator goroutine.
func NewInterceptor(config InterceptorConfig) (*Interceptor, error) {
	include, err := scope.CompilePatterns(config.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exclude, err := scope.CompilePatterns(config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}

	size := config.BufferSize
	if size <= 0 {
		size = 1024
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	i := &Interceptor{
		include: include,
		exclude: exclude,
		log:     log.WithComponent("interceptor"),
		metrics: config.Metrics,
		errLog:  config.ErrorLog,
		events:  make(chan queued, size),
		done:    make(chan struct{}),
		pending: make(map[string]*pendingRequest),
		byID:    make(map[string]string),
		seen:    make(map[string]struct{}),
	}
	go i.run()
	return i, nil
}

// ShouldCapture decides whether a request looks like an API call.
func (i *Interceptor) ShouldCapture(rawURL, resourceType string) bool {
	rt := strings.ToLower(resourceType)
	if skippedResourceTypes[rt] {
		return false
	}
	if scope.MatchAny(i.exclude, rawURL) {
		return false
	}
	if len(i.include) > 0 {
		return scope.MatchAny(i.include, rawURL)
	}

	u, err := url.Parse(rawURL)
	if err == nil && scope.IsAPIPath(u.Path) {
		return true
	}
	return rt == "xhr" || rt == "fetch"
}

// Signature identifies a request pattern: method, host, normalized path and sorted query keys.
func Signature(method models.HTTPMethod, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return string(method) + " " + rawURL
	}

	keys := make([]string, 0, len(u.Query()))
	for k := range u.Query() {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return string(method) + " " + u.Host + models.NormalizePath(u.Path) + "?" + strings.Join(keys, ",")
}

// Handle queues an event for the correlator. It blocks while the buffer is full.
func (i *Interceptor) Handle(ev NetworkEvent) {
	select {
	case i.events <- queued{ev: ev}:
	case <-i.done:
	}
}

// SetSourcePage records the page URL attributed to requests seen from now on.
func (i *Interceptor) SetSourcePage(pageURL string) {
	i.mu.Lock()
	i.sourcePage = pageURL
	i.mu.Unlock()
}

// OnCapture registers a callback invoked from the correlator for each capture.
func (i *Interceptor) OnCapture(fn func(models.CapturedEndpoint)) {
	i.mu.Lock()
	i.onCapture = fn
	i.mu.Unlock()
}

// Flush waits until every event queued before the call has been processed.
func (i *Interceptor) Flush(ctx context.Context) error {
	marker := queued{flush: make(chan struct{})}
	select {
	case i.events <- marker:
	case <-i.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-marker.flush:
		return nil
	case <-i.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Captured returns a copy of the captures so far, in completion order.
func (i *Interceptor) Captured() []models.CapturedEndpoint {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]models.CapturedEndpoint, len(i.captured))
	copy(out, i.captured)
	return out
}

// Count returns the number of captures.
func (i *Interceptor) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.captured)
}

// Stats returns correlator counters.
func (i *Interceptor) Stats() InterceptorStats {
	i.mu.RLock()
	defer i.mu.RUnlock()

	s := i.stats
	s.Captured = len(i.captured)
	s.Pending = len(i.pending)
	return s
}

// Clear resets captures, pending requests and seen patterns.
func (i *Interceptor) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.captured = nil
	i.pending = make(map[string]*pendingRequest)
	i.byID = make(map[string]string)
	i.seen = make(map[string]struct{})
	i.stats = InterceptorStats{}
}

// Abandon drops requests still waiting for a response and returns how many there were.
func (i *Interceptor) Abandon() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	n := len(i.pending)
	i.pending = make(map[string]*pendingRequest)
	i.byID = make(map[string]string)
	return n
}

// Close stops the correlator. Events queued afterwards are dropped.
func (i *Interceptor) Close() {
	i.closed.Do(func() { close(i.done) })
}

func (i *Interceptor) run() {
	for {
		select {
		case <-i.done:
			return
		case q := <-i.events:
			if q.flush != nil {
				close(q.flush)
				continue
			}
			i.process(q.ev)
		}
	}
}

func (i *Interceptor) process(ev NetworkEvent) {
	switch ev.Kind {
	case EventRequest:
		i.onRequest(ev)
	case EventResponse:
		i.onResponse(ev)
	case EventLoadingFinished:
		i.onFinished(ev)
	case EventLoadingFailed:
		i.onFailed(ev)
	}
}

func (i *Interceptor) onRequest(ev NetworkEvent) {
	if !i.ShouldCapture(ev.URL, ev.ResourceType) {
		return
	}
	method, ok := models.ParseMethod(ev.Method)
	if !ok {
		return
	}

	sig := Signature(method, ev.URL)

	i.mu.Lock()
	i.stats.Requests++
	if _, dup := i.seen[sig]; dup {
		i.stats.Duplicates++
		i.mu.Unlock()
		if i.metrics != nil {
			i.metrics.RecordRequest()
			i.metrics.RecordDuplicate()
		}
		return
	}
	i.seen[sig] = struct{}{}
	source := i.sourcePage
	i.mu.Unlock()

	if i.metrics != nil {
		i.metrics.RecordRequest()
	}

	req := models.CapturedRequest{
		URL:       ev.URL,
		Method:    method,
		Headers:   ev.Headers,
		Body:      ev.PostData,
		Timestamp: ev.Timestamp,
	}
	if err := discovery.Annotate(&req); err != nil {
		i.log.WithURL(ev.URL).WithError(err).Debug("Body parameters not extracted")
	}

	key := string(method) + ":" + ev.URL + ":" + ev.RequestID
	i.mu.Lock()
	i.pending[key] = &pendingRequest{key: key, request: req, sourcePage: source}
	i.byID[ev.RequestID] = key
	i.mu.Unlock()

	i.log.Debugf("→ %s %s", method, ev.URL)
}

func (i *Interceptor) lookup(requestID string) *pendingRequest {
	key, ok := i.byID[requestID]
	if !ok {
		return nil
	}
	return i.pending[key]
}

func (i *Interceptor) onResponse(ev NetworkEvent) {
	i.mu.Lock()
	p := i.lookup(ev.RequestID)
	if p == nil {
		i.stats.Unmatched++
		i.mu.Unlock()
		if i.metrics != nil {
			i.metrics.RecordUnmatched()
		}
		return
	}
	p.response = &models.CapturedResponse{
		StatusCode: ev.Status,
		Headers:    ev.ResponseHeaders,
		Timestamp:  ev.Timestamp,
	}
	i.mu.Unlock()
}

func (i *Interceptor) onFinished(ev NetworkEvent) {
	i.mu.RLock()
	p := i.lookup(ev.RequestID)
	i.mu.RUnlock()
	if p == nil || p.response == nil {
		return
	}

	if ev.Body != nil {
		body, err := i.readBody(ev.Body)
		if err != nil {
			i.recordBodyError(p.request.URL, err)
		} else {
			p.response.Body = &body
		}
	}
	i.complete(ev.RequestID, p)
}

func (i *Interceptor) onFailed(ev NetworkEvent) {
	i.mu.Lock()
	p := i.lookup(ev.RequestID)
	if p == nil {
		i.mu.Unlock()
		return
	}
	if p.response == nil {
		delete(i.pending, p.key)
		delete(i.byID, ev.RequestID)
		i.mu.Unlock()
		return
	}
	i.mu.Unlock()
	i.complete(ev.RequestID, p)
}

func (i *Interceptor) readBody(fetch BodyFunc) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), bodyFetchTimeout)
	defer cancel()

	body, encoded, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	if encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return "", err
		}
		body = string(raw)
	}
	if !utf8.ValidString(body) {
		return "", fmt.Errorf("body is not valid UTF-8")
	}
	return body, nil
}

func (i *Interceptor) recordBodyError(rawURL string, cause error) {
	err := errors.NewCaptureError(rawURL, cause)
	i.log.WithURL(rawURL).WithError(cause).Debug("Response body dropped")
	if i.errLog != nil {
		i.errLog.Add(err, rawURL)
	}

	i.mu.Lock()
	i.stats.BodyErrors++
	i.mu.Unlock()
	if i.metrics != nil {
		i.metrics.RecordBodyError()
	}
}

func (i *Interceptor) complete(requestID string, p *pendingRequest) {
	endpoint := models.CapturedEndpoint{
		Request:    p.request,
		Response:   *p.response,
		SourcePage: p.sourcePage,
	}

	i.mu.Lock()
	if _, ok := i.pending[p.key]; !ok {
		i.mu.Unlock()
		return
	}
	delete(i.pending, p.key)
	delete(i.byID, requestID)
	i.captured = append(i.captured, endpoint)
	cb := i.onCapture
	i.mu.Unlock()

	if i.metrics != nil {
		i.metrics.RecordCapture(endpoint.Response.StatusCode)
	}
	i.log.CaptureEvent(string(endpoint.Request.Method), endpoint.Request.URL, endpoint.Response.StatusCode)
	if cb != nil {
		cb(endpoint)
	}
}
