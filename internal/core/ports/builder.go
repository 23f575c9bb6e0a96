package ports

import "context"

// BuilderService defines operations for building viewer images from source
// code, for plugins that ship a repository instead of a prebuilt image.
type BuilderService interface {
	// BuildImage clones a repository and builds a container image from it.
	// It returns the name of the built image or an error.
	BuildImage(ctx context.Context, repoURL string, imageName string) (string, error)
}
