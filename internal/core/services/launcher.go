package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/melih/bamview-paas/internal/config"
	"github.com/melih/bamview-paas/internal/core/domain"
	"github.com/melih/bamview-paas/internal/core/ports"
	"github.com/melih/bamview-paas/internal/readiness"
)

// ErrSessionNotFound is returned for operations on a session the launcher
// does not know about.
var ErrSessionNotFound = errors.New("session not found")

type sessionEntry struct {
	done    chan struct{} // closed once the launch attempt finished
	session *domain.Session
	err     error
	cancel  context.CancelFunc // stops the readiness poller
}

// Launcher runs the launch sequence for viewer sessions: allocate a host
// port, start the container, register the proxy route, render the access
// URL, and watch readiness. Launch is idempotent per session ID.
type Launcher struct {
	containers ports.ContainerService
	builder    ports.BuilderService
	routes     ports.RouteTable
	allocator  *PortAllocator

	publicHost   string
	readinessCfg config.ReadinessConfig
	prober       readiness.Prober
	clock        readiness.Clock

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type LauncherOptions struct {
	Containers ports.ContainerService
	Builder    ports.BuilderService // optional; only needed for source_repo plugins
	Routes     ports.RouteTable
	PublicHost string
	Readiness  config.ReadinessConfig

	// Prober and Clock default to the HTTP prober and the real clock.
	Prober readiness.Prober
	Clock  readiness.Clock
}

func NewLauncher(opts LauncherOptions) *Launcher {
	return &Launcher{
		containers:   opts.Containers,
		builder:      opts.Builder,
		routes:       opts.Routes,
		allocator:    NewPortAllocator(),
		publicHost:   opts.PublicHost,
		readinessCfg: opts.Readiness,
		prober:       opts.Prober,
		clock:        opts.Clock,
		sessions:     make(map[string]*sessionEntry),
	}
}

// Launch starts the session's container and wires it up. Launching a
// session that already exists returns the existing instance without
// touching the runtime; a concurrent duplicate waits for the first launch
// to finish and shares its outcome.
func (l *Launcher) Launch(ctx context.Context, sessionID string, spec domain.LaunchSpec) (domain.Session, error) {
	l.mu.Lock()
	if entry, ok := l.sessions[sessionID]; ok {
		l.mu.Unlock()
		<-entry.done
		return l.snapshot(entry)
	}
	entry := &sessionEntry{done: make(chan struct{})}
	l.sessions[sessionID] = entry
	l.mu.Unlock()

	err := l.launch(ctx, sessionID, spec, entry)
	l.mu.Lock()
	entry.err = err
	if err != nil {
		// A failed launch must not block a retry of the same session.
		delete(l.sessions, sessionID)
	}
	l.mu.Unlock()
	close(entry.done)

	if err != nil {
		return domain.Session{}, err
	}
	return l.snapshot(entry)
}

// snapshot copies the entry's session under the lock, since the readiness
// poller updates it concurrently.
func (l *Launcher) snapshot(entry *sessionEntry) (domain.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.err != nil {
		return domain.Session{}, entry.err
	}
	return *entry.session, nil
}

func (l *Launcher) launch(ctx context.Context, sessionID string, spec domain.LaunchSpec, entry *sessionEntry) error {
	hostPort := spec.HostPort
	if hostPort == 0 {
		port, err := l.allocator.Allocate()
		if err != nil {
			return &domain.LaunchError{SessionID: sessionID, Diagnostics: "port allocation failed", Err: err}
		}
		hostPort = port
	}

	if spec.SourceRepo != "" && l.builder != nil {
		if _, err := l.builder.BuildImage(ctx, spec.SourceRepo, spec.Image); err != nil {
			return &domain.LaunchError{SessionID: sessionID, Diagnostics: "image build failed", Err: err}
		}
	}

	instanceID, err := l.containers.StartContainer(ctx, spec, hostPort, "bamview-"+sessionID)
	if err != nil {
		return &domain.LaunchError{SessionID: sessionID, Diagnostics: "container start failed", Err: err}
	}

	publicPath := l.routes.Bind(sessionID, l.publicHost, hostPort)

	bindings := make(map[string]string, len(spec.URLBindings)+3)
	for k, v := range spec.URLBindings {
		bindings[k] = v
	}
	bindings["PROXY_URL"] = strings.TrimSuffix(publicPath, "/")
	bindings["HOST"] = l.publicHost
	bindings["PORT"] = strconv.Itoa(hostPort)

	accessURL, err := domain.RenderTemplate(spec.URLTemplate, bindings)
	if err != nil {
		// A failed launch must not leave a partial proxy binding behind.
		l.routes.Unbind(sessionID)
		if stopErr := l.containers.StopContainer(ctx, instanceID); stopErr != nil {
			log.Printf("cleanup after failed launch of %s: %v", sessionID, stopErr)
		}
		return err
	}

	session := &domain.Session{
		ID:         sessionID,
		Plugin:     spec.Plugin,
		InstanceID: instanceID,
		HostPort:   hostPort,
		AccessURL:  accessURL,
		Readiness:  domain.ReadinessPending,
		CreatedAt:  time.Now(),
	}

	checkURL := fmt.Sprintf("http://%s:%d%s", l.publicHost, hostPort, spec.ReadinessPath)
	pollCtx, cancel := context.WithCancel(context.Background())

	// Publish the session before the poller starts so its callbacks always
	// find it.
	l.mu.Lock()
	entry.session = session
	entry.cancel = cancel
	l.mu.Unlock()

	poller := readiness.New(readiness.Options{
		CheckURL:     checkURL,
		AccessURL:    accessURL,
		InitialDelay: l.readinessCfg.InitialDelay,
		Interval:     l.readinessCfg.Interval,
		Budget:       l.readinessCfg.Budget,
		Prober:       l.prober,
		Clock:        l.clock,
		OnReady: func(string) {
			l.setReadiness(sessionID, domain.ReadinessReady)
		},
		OnTimeout: func(err error) {
			log.Printf("session %s readiness: %v", sessionID, err)
			l.setReadiness(sessionID, domain.ReadinessTimedOut)
		},
	})
	go poller.Run(pollCtx)

	return nil
}

func (l *Launcher) setReadiness(sessionID string, state domain.ReadinessState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.sessions[sessionID]; ok && entry.session != nil {
		entry.session.Readiness = state
	}
}

// Get returns a snapshot of the session.
func (l *Launcher) Get(sessionID string) (domain.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.sessions[sessionID]
	if !ok || entry.session == nil {
		return domain.Session{}, ErrSessionNotFound
	}
	return *entry.session, nil
}

// List returns snapshots of all live sessions.
func (l *Launcher) List() []domain.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	sessions := make([]domain.Session, 0, len(l.sessions))
	for _, entry := range l.sessions {
		if entry.session != nil {
			sessions = append(sessions, *entry.session)
		}
	}
	return sessions
}

// Running queries the runtime for the session's container state.
func (l *Launcher) Running(ctx context.Context, sessionID string) (bool, error) {
	session, err := l.Get(sessionID)
	if err != nil {
		return false, err
	}
	return l.containers.ContainerRunning(ctx, session.InstanceID)
}

// Logs streams the session's container logs.
func (l *Launcher) Logs(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	session, err := l.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return l.containers.GetContainerLogs(ctx, session.InstanceID)
}

// Stop ends the session: the readiness poller is cancelled, the proxy route
// removed, and the container stopped.
func (l *Launcher) Stop(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	entry, ok := l.sessions[sessionID]
	if ok {
		delete(l.sessions, sessionID)
	}
	l.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	<-entry.done
	if entry.cancel != nil {
		entry.cancel()
	}
	l.routes.Unbind(sessionID)
	if entry.session != nil {
		if err := l.containers.StopContainer(ctx, entry.session.InstanceID); err != nil {
			return fmt.Errorf("stop session %q: %w", sessionID, err)
		}
	}
	return nil
}
