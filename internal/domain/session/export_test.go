package session

import "time"

// SetNow overrides the service clock so tests can move time.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}
