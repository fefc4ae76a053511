// Package reveal exposes a fully received summary one character at a time.
//
// Every call to SetText or Clear starts a new generation. A tick only mutates
// state when its captured generation is still current, so a late tick from a
// replaced summary can never touch the displayed prefix.
package reveal

import (
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultInterval is the pause between revealed characters.
const DefaultInterval = 15 * time.Millisecond

// Frame is one observation of the reveal. Prefix is always a prefix of the
// generation's text and never mixes two generations.
type Frame struct {
	Generation uint64 `json:"generation"`
	Prefix     string `json:"prefix"`
	Cursor     int    `json:"cursor"`
	Total      int    `json:"total"`
}

// Done reports whether the whole text is visible.
func (f Frame) Done() bool { return f.Cursor >= f.Total }

// Revealing reports whether characters are still pending.
func (f Frame) Revealing() bool { return f.Cursor < f.Total }

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Scheduler drives the reveal of the current text.
type Scheduler struct {
	interval  time.Duration
	newTicker func(time.Duration) ticker

	mu      sync.Mutex
	gen     uint64
	text    string
	offset  int // bytes of text revealed
	cursor  int // characters revealed
	total   int
	stop    chan struct{}
	subs    map[uint64]chan Frame
	nextSub uint64
	closed  bool
}

// New creates a Scheduler ticking every interval.
func New(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		interval:  interval,
		newTicker: newTimeTicker,
		subs:      make(map[uint64]chan Frame),
	}
}

// SetText replaces the text and restarts the reveal from an empty prefix. It
// restarts even when text equals the previous value. The new generation is
// returned.
func (s *Scheduler) SetText(text string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.gen
	}
	s.stopLocked()
	s.gen++
	s.text = text
	s.offset = 0
	s.cursor = 0
	s.total = utf8.RuneCountInString(text)
	s.publishLocked()
	if text != "" {
		stop := make(chan struct{})
		s.stop = stop
		go s.run(s.gen, stop, s.newTicker(s.interval))
	}
	return s.gen
}

// Clear empties the text immediately. No ticking follows.
func (s *Scheduler) Clear() uint64 {
	return s.SetText("")
}

// Frame returns the current observation.
func (s *Scheduler) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

// Subscribe returns a channel that always holds the most recent frame.
// Intermediate frames may be skipped by slow readers; the final one is not.
// The returned func unsubscribes and closes the channel.
func (s *Scheduler) Subscribe() (<-chan Frame, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Frame, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.frameLocked()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close stops ticking and closes every subscription.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopLocked()
	for id, c := range s.subs {
		delete(s.subs, id)
		close(c)
	}
}

func (s *Scheduler) run(gen uint64, stop <-chan struct{}, t ticker) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if !s.advance(gen) {
				return
			}
		}
	}
}

// advance reveals one more character of generation gen. It returns false once
// there is nothing left to do for gen.
func (s *Scheduler) advance(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return false
	}
	if s.offset >= len(s.text) {
		return false
	}
	_, size := utf8.DecodeRuneInString(s.text[s.offset:])
	s.offset += size
	s.cursor++
	s.publishLocked()
	return s.offset < len(s.text)
}

func (s *Scheduler) stopLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Scheduler) frameLocked() Frame {
	return Frame{
		Generation: s.gen,
		Prefix:     s.text[:s.offset],
		Cursor:     s.cursor,
		Total:      s.total,
	}
}

func (s *Scheduler) publishLocked() {
	f := s.frameLocked()
	for _, c := range s.subs {
		offer(c, f)
	}
}

// offer replaces whatever is buffered in c with f. Callers hold s.mu, so
// there is a single sender and the final send cannot block.
func offer(c chan Frame, f Frame) {
	select {
	case c <- f:
		return
	default:
	}
	select {
	case <-c:
	default:
	}
	c <- f
}
