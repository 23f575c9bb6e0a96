package ports

import (
	"context"
	"io"

	"github.com/melih/bamview-paas/internal/core/domain"
)

// ContainerService defines the core operations for managing viewer
// containers. This interface allows us to switch between Docker, Podman,
// or Kubernetes without changing the launch logic.
type ContainerService interface {
	ListContainers(ctx context.Context) ([]domain.Container, error)
	// StartContainer pulls the spec's image if needed, creates the
	// container with the spec's environment and the internal port
	// published on hostPort, and starts it. Returns the container ID.
	StartContainer(ctx context.Context, spec domain.LaunchSpec, hostPort int, name string) (string, error)
	StopContainer(ctx context.Context, id string) error
	// ContainerRunning reports whether the container is currently running.
	ContainerRunning(ctx context.Context, id string) (bool, error)
	GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)
}
