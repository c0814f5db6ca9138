package discovery

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/plcworks/go-plclight-server/internal/metrics"
)

// Registry tracks live sessions by id so the daemon can report how many
// are running and shut them down cleanly. It does not arbitrate access to
// a transmitter; concurrent sessions against one device are the caller's
// problem.
type Registry struct {
	sessions *xsync.MapOf[string, *Session]
}

func NewRegistry() *Registry {
	return &Registry{sessions: xsync.NewMapOf[string, *Session]()}
}

// Add registers a session under id.
func (r *Registry) Add(id string, s *Session) {
	r.sessions.Store(id, s)
	metrics.SetDiscoverySessions(r.sessions.Size())
}

// Remove unregisters a session; safe to call for unknown ids.
func (r *Registry) Remove(id string) {
	r.sessions.Delete(id)
	metrics.SetDiscoverySessions(r.sessions.Size())
}

// Count reports the number of live sessions.
func (r *Registry) Count() int { return r.sessions.Size() }

// CloseAll stops every live session. Sessions unregister themselves as
// their Run returns; CloseAll only signals.
func (r *Registry) CloseAll() {
	r.sessions.Range(func(id string, s *Session) bool {
		s.Stop()
		return true
	})
}
