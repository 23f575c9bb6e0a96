package docker

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/melih/bamview-paas/internal/core/domain"
)

// dockerAPI is the slice of the Docker client the adapter uses. Narrowing
// it here lets tests stand in for the daemon.
type dockerAPI interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerLogs(ctx context.Context, containerID string, options types.ContainerLogsOptions) (io.ReadCloser, error)
}

// Adapter implements ports.ContainerService using the Docker SDK.
type Adapter struct {
	cli         dockerAPI
	stopTimeout time.Duration
}

// NewAdapter creates a new Docker adapter instance.
func NewAdapter(stopTimeout time.Duration) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &Adapter{cli: cli, stopTimeout: stopTimeout}, nil
}

// ListContainers returns the running containers with details.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	containers, err := a.cli.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var result []domain.Container
	for _, c := range containers {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0][1:]
		}

		result = append(result, domain.Container{
			ID:     c.ID[:12], // Short ID
			Name:   name,
			Image:  c.Image,
			Status: c.Status,
			State:  c.State,
		})
	}
	return result, nil
}

// ensureImage pulls the image unless the daemon already has it. Images built
// from a plugin's source repo exist only in the local daemon and must not be
// pulled.
func (a *Adapter) ensureImage(ctx context.Context, image string) error {
	_, _, err := a.cli.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect image %q: %w", image, err)
	}

	reader, err := a.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %q: %w", image, err)
	}
	defer reader.Close()

	// The pull is asynchronous; the stream carries progress and any daemon
	// error.
	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image %q: %w", image, err)
	}
	return nil
}

// StartContainer pulls the spec's image if the daemon does not have it,
// creates the container with the spec's environment and the internal port
// published on hostPort, and starts it.
func (a *Adapter) StartContainer(ctx context.Context, spec domain.LaunchSpec, hostPort int, name string) (string, error) {
	if err := a.ensureImage(ctx, spec.Image); err != nil {
		return "", err
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	internalPort, err := nat.NewPort("tcp", strconv.Itoa(spec.InternalPort))
	if err != nil {
		return "", fmt.Errorf("invalid internal port %d: %w", spec.InternalPort, err)
	}

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image: spec.Image,
		Env:   env,
		ExposedPorts: nat.PortSet{
			internalPort: struct{}{},
		},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			internalPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)},
			},
		},
	}, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		// Remove the created container so a retry of the session does not
		// collide with its name.
		if rmErr := a.cli.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true}); rmErr != nil {
			log.Printf("remove container %s after failed start: %v", resp.ID, rmErr)
		}
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	return resp.ID, nil
}

// StopContainer stops and removes a session's container.
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, a.stopTimeout)
	defer cancel()
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := a.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// ContainerRunning reports whether the container is currently running.
func (a *Adapter) ContainerRunning(ctx context.Context, id string) (bool, error) {
	inspect, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to inspect container: %w", err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

// GetContainerLogs returns a stream of container logs.
func (a *Adapter) GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	options := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Timestamps: true,
	}
	return a.cli.ContainerLogs(ctx, id, options)
}
