package pipeline

import (
	"log"
	"sync"
)

// Mode names what currently owns the browser surface.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeRecording Mode = "recording"
	ModePlayback  Mode = "playback"
)

// Surface serializes ownership of the single browser page. Recording and
// playback are mutually exclusive; starting one while the other is active
// tears the previous owner down first instead of failing the request.
type Surface struct {
	mu       sync.Mutex
	mode     Mode
	gen      uint64
	teardown func()
}

// Token identifies one ownership grant. An evicted owner unwinding late holds
// a stale token, so its End cannot clear the successor's registration.
type Token uint64

func NewSurface() *Surface {
	return &Surface{mode: ModeIdle}
}

// Begin takes ownership for the given mode and returns the token the owner
// must pass to End. The previous owner's teardown, if any, runs before Begin
// returns, outside the lock.
func (s *Surface) Begin(mode Mode, teardown func()) Token {
	s.mu.Lock()
	prev := s.teardown
	prevMode := s.mode
	s.gen++
	tok := Token(s.gen)
	s.mode = mode
	s.teardown = teardown
	s.mu.Unlock()
	if prev != nil {
		log.Printf("🔄 [Surface] tearing down %s session for %s", prevMode, mode)
		prev()
	}
	return tok
}

// End releases ownership without running the teardown. The owner calls this
// after its own cleanup; a stale token from an evicted owner is a no-op.
func (s *Surface) End(tok Token) {
	s.mu.Lock()
	if Token(s.gen) == tok {
		s.mode = ModeIdle
		s.teardown = nil
	}
	s.mu.Unlock()
}

func (s *Surface) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}
