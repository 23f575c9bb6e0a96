package proxy

import (
	"sync"
	"time"

	"github.com/melih/bamview-paas/internal/core/domain"
)

// Table is the in-memory routing table of the dynamic proxy. Entries are
// keyed by session ID; sync.Map keeps sessions from contending with each
// other while a single session's entry is updated atomically.
type Table struct {
	routes sync.Map // sessionID -> domain.ProxyBinding
}

func NewTable() *Table {
	return &Table{}
}

// Bind registers the route for a session and returns its public path.
// Binding a session that already has a route replaces it (a refresh, not a
// duplicate).
func (t *Table) Bind(sessionID, targetHost string, targetPort int) string {
	publicPath := "/proxy/" + sessionID + "/"
	t.routes.Store(sessionID, domain.ProxyBinding{
		SessionID:  sessionID,
		PublicPath: publicPath,
		TargetHost: targetHost,
		TargetPort: targetPort,
		CreatedAt:  time.Now(),
	})
	return publicPath
}

func (t *Table) Lookup(sessionID string) (domain.ProxyBinding, bool) {
	v, ok := t.routes.Load(sessionID)
	if !ok {
		return domain.ProxyBinding{}, false
	}
	return v.(domain.ProxyBinding), true
}

// Unbind removes the session's route. Safe to call when no route exists.
func (t *Table) Unbind(sessionID string) {
	t.routes.Delete(sessionID)
}
