package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// EventKind identifies a network event.
type EventKind int

const (
	EventRequest EventKind = iota + 1
	EventResponse
	EventLoadingFinished
	EventLoadingFailed
)

func (k EventKind) String() string {
	switch k {
	case EventRequest:
		return "request"
	case EventResponse:
		return "response"
	case EventLoadingFinished:
		return "finished"
	case EventLoadingFailed:
		return "failed"
	}
	return "unknown"
}

// BodyFunc fetches a response body on demand. base64 reports whether body is base64 encoded.
type BodyFunc func(ctx context.Context) (body string, base64 bool, err error)

// NetworkEvent is one browser network notification, flattened across event kinds.
type NetworkEvent struct {
	Kind      EventKind
	RequestID string
	Timestamp time.Time

	// Request fields.
	URL          string
	Method       string
	Headers      map[string]string
	PostData     *string
	ResourceType string // lower case: xhr, fetch, document, image...

	// Response fields.
	Status          int
	ResponseHeaders map[string]string

	// Body is set on EventLoadingFinished.
	Body BodyFunc
}

// EventSink receives network events in the order the browser emitted them.
type EventSink func(NetworkEvent)

// Pump forwards events to a sink while tracking requests still in flight.
type Pump struct {
	sink EventSink

	mu           sync.Mutex
	inFlight     map[string]struct{}
	lastActivity time.Time
}

// NewPump creates a pump. A nil sink only tracks activity.
func NewPump(sink EventSink) *Pump {
	return &Pump{
		sink:         sink,
		inFlight:     make(map[string]struct{}),
		lastActivity: time.Now(),
	}
}

// Emit records ev and hands it to the sink.
func (p *Pump) Emit(ev NetworkEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	p.mu.Lock()
	switch ev.Kind {
	case EventRequest:
		p.inFlight[ev.RequestID] = struct{}{}
	case EventLoadingFinished, EventLoadingFailed:
		delete(p.inFlight, ev.RequestID)
	}
	p.lastActivity = ev.Timestamp
	p.mu.Unlock()

	if p.sink != nil {
		p.sink(ev)
	}
}

// InFlight returns the number of requests without a finished or failed event.
func (p *Pump) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

func (p *Pump) idleFor() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inFlight) > 0 {
		return 0
	}
	return time.Since(p.lastActivity)
}

// WaitIdle blocks until no request has been in flight for quiet, or ctx ends.
func (p *Pump) WaitIdle(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.idleFor() >= quiet {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// watchNetwork subscribes to the page's network domain and feeds the pump until ctx ends.
func watchNetwork(ctx context.Context, page *rod.Page, pump *Pump) error {
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return err
	}

	target := string(page.TargetID)
	id := func(rid proto.NetworkRequestID) string {
		return target + ":" + string(rid)
	}

	wait := page.Context(ctx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			ev := NetworkEvent{
				Kind:         EventRequest,
				RequestID:    id(e.RequestID),
				URL:          e.Request.URL,
				Method:       e.Request.Method,
				Headers:      headerMap(e.Request.Headers),
				ResourceType: strings.ToLower(string(e.Type)),
			}
			if e.Request.PostData != "" {
				body := e.Request.PostData
				ev.PostData = &body
			}
			pump.Emit(ev)
		},
		func(e *proto.NetworkResponseReceived) {
			pump.Emit(NetworkEvent{
				Kind:            EventResponse,
				RequestID:       id(e.RequestID),
				URL:             e.Response.URL,
				ResourceType:    strings.ToLower(string(e.Type)),
				Status:          e.Response.Status,
				ResponseHeaders: headerMap(e.Response.Headers),
			})
		},
		func(e *proto.NetworkLoadingFinished) {
			rid := e.RequestID
			pump.Emit(NetworkEvent{
				Kind:      EventLoadingFinished,
				RequestID: id(rid),
				Body: func(ctx context.Context) (string, bool, error) {
					res, err := proto.NetworkGetResponseBody{RequestID: rid}.Call(page.Context(ctx))
					if err != nil {
						return "", false, err
					}
					return res.Body, res.Base64Encoded, nil
				},
			})
		},
		func(e *proto.NetworkLoadingFailed) {
			pump.Emit(NetworkEvent{
				Kind:      EventLoadingFailed,
				RequestID: id(e.RequestID),
			})
		},
	)
	go wait()
	return nil
}

func headerMap(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}
