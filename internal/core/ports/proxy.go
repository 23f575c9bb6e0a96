package ports

import "github.com/melih/bamview-paas/internal/core/domain"

// RouteTable is the shared dynamic-routing table of the proxy. Entries are
// keyed by session ID; operations on one session never block operations on
// another.
type RouteTable interface {
	// Bind registers (or refreshes) the route for a session and returns
	// the public path the proxy serves it under.
	Bind(sessionID, targetHost string, targetPort int) string
	Lookup(sessionID string) (domain.ProxyBinding, bool)
	// Unbind removes the session's route. Unbinding a session that has no
	// route is a no-op.
	Unbind(sessionID string)
}
