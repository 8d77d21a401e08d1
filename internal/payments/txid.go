package payments

import (
	"strconv"
	"sync"
	"time"
)

// txIDSource generates correlation ids for payment attempts. Ids are
// millisecond timestamps forced strictly monotonic so two attempts in the
// same millisecond never collide.
type txIDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newTxIDSource(now func() time.Time) *txIDSource {
	if now == nil {
		now = time.Now
	}
	return &txIDSource{now: now}
}

func (s *txIDSource) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return strconv.FormatInt(ms, 10)
}
