package websocket

import (
	"sync"
)

// Recorder keeps the most recent broadcasts so late clients can catch up.
type Recorder struct {
	mu      sync.RWMutex
	frames  [][]byte
	latest  map[MessageType][]byte
	maxMsgs int
	total   int
}

// NewRecorder creates a recorder holding up to maxMessages frames.
func NewRecorder(maxMessages int) *Recorder {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Recorder{
		frames:  make([][]byte, 0, maxMessages),
		latest:  make(map[MessageType][]byte),
		maxMsgs: maxMessages,
	}
}

// Record stores an encoded frame. Status and endpoint snapshots are also kept
// as the latest of their type, so a replay always starts from current state.
func (r *Recorder) Record(t MessageType, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	switch t {
	case TypeStatus, TypeEndpoints:
		r.latest[t] = frame
		return
	}

	if len(r.frames) == r.maxMsgs {
		copy(r.frames, r.frames[1:])
		r.frames = r.frames[:len(r.frames)-1]
	}
	r.frames = append(r.frames, frame)
}

// Replay returns the latest status, the latest endpoint list, then the
// recorded event frames oldest first.
func (r *Recorder) Replay() [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([][]byte, 0, len(r.frames)+2)
	for _, t := range []MessageType{TypeStatus, TypeEndpoints} {
		if f, ok := r.latest[t]; ok {
			out = append(out, f)
		}
	}
	return append(out, r.frames...)
}

// Reset forgets everything, typically when a new crawl starts.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = r.frames[:0]
	r.latest = make(map[MessageType][]byte)
}

// Len returns the number of event frames held.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// Total returns how many frames were ever recorded.
func (r *Recorder) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}
