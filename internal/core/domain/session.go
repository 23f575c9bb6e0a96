package domain

import "time"

// ReadinessState tracks whether a session's backing service has come up.
// Transitions are monotonic: pending moves to exactly one of the other
// states and never back.
type ReadinessState string

const (
	ReadinessPending   ReadinessState = "pending"
	ReadinessReady     ReadinessState = "ready"
	ReadinessTimedOut  ReadinessState = "timed_out"
	ReadinessCancelled ReadinessState = "cancelled"
)

// LaunchSpec is the resolved set of parameters needed to start one viewer
// instance. It is built once per session request and not mutated afterwards.
type LaunchSpec struct {
	Plugin        string            `json:"plugin"`
	Image         string            `json:"image"`
	SourceRepo    string            `json:"source_repo,omitempty"`
	InternalPort  int               `json:"internal_port"`
	HostPort      int               `json:"host_port,omitempty"` // 0 means allocate
	Env           map[string]string `json:"env,omitempty"`
	URLTemplate   string            `json:"url_template"`
	ReadinessPath string            `json:"readiness_path"`
	URLBindings   map[string]string `json:"-"`
}

// ProxyBinding maps a public proxy path to a private container address.
// At most one binding exists per session; rebinding the same session
// replaces the entry.
type ProxyBinding struct {
	SessionID  string    `json:"session_id"`
	PublicPath string    `json:"public_path"`
	TargetHost string    `json:"target_host"`
	TargetPort int       `json:"target_port"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is one user-visible viewer instance for the lifetime of its
// proxy binding.
type Session struct {
	ID         string         `json:"id"`
	Plugin     string         `json:"plugin"`
	InstanceID string         `json:"instance_id"`
	HostPort   int            `json:"host_port"`
	AccessURL  string         `json:"access_url"`
	Readiness  ReadinessState `json:"readiness"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Container represents a container known to the runtime (Docker, K8s, etc.)
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
	State  string `json:"state"` // running, exited, etc.
}
