package builder

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
)

// imageBuildAPI is the slice of the Docker client the builder uses.
type imageBuildAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// Adapter implements ports.BuilderService: it builds a viewer image from a
// plugin's source repository.
type Adapter struct {
	cli imageBuildAPI
}

func NewAdapter() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// BuildImage clones repoURL and builds imageName from its Dockerfile.
func (a *Adapter) BuildImage(ctx context.Context, repoURL string, imageName string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "bamview-build-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	log.Printf("Cloning %s into %s", repoURL, tmpDir)
	_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
		URL:   repoURL,
		Depth: 1, // Shallow clone for speed
	})
	if err != nil {
		return "", fmt.Errorf("failed to clone repo: %w", err)
	}

	buildCtx, err := archive.TarWithOptions(tmpDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}

	log.Printf("Building image %s", imageName)
	resp, err := a.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{imageName},
		Dockerfile: "Dockerfile",
		Remove:     true, // Remove intermediate containers
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The daemon streams build progress; failures arrive inside the stream,
	// not as an ImageBuild error.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil); err != nil {
		return "", fmt.Errorf("image build failed: %w", err)
	}

	return imageName, nil
}
