package backend

import (
	"archive/tar"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

//go:embed Dockerfile
var agentDockerfile []byte

// ImageBuilder is the process-wide ensure-image capability: the agent
// image is built at most once per process and reused until explicitly
// invalidated.
type ImageBuilder struct {
	cli    *client.Client
	tag    string
	logger *slog.Logger

	mu      sync.Mutex
	ensured bool
}

func NewImageBuilder(cli *client.Client, tag string, logger *slog.Logger) *ImageBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageBuilder{cli: cli, tag: tag, logger: logger}
}

// Ensure makes the agent image available, building it only when it
// does not already exist.
func (ib *ImageBuilder) Ensure(ctx context.Context) error {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if ib.ensured {
		return nil
	}

	exists, err := ib.exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		ib.ensured = true
		return nil
	}

	ib.logger.Info("building agent image, this can take a few minutes", "tag", ib.tag)
	if err := ib.build(ctx); err != nil {
		return err
	}
	ib.ensured = true
	return nil
}

// Invalidate removes the cached image so the next Ensure rebuilds it.
func (ib *ImageBuilder) Invalidate(ctx context.Context) error {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.ensured = false

	_, err := ib.cli.ImageRemove(ctx, ib.tag, image.RemoveOptions{Force: true})
	if err != nil && !isGone(err) {
		return fmt.Errorf("remove image %q: %w", ib.tag, err)
	}
	return nil
}

func (ib *ImageBuilder) exists(ctx context.Context) (bool, error) {
	images, err := ib.cli.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ib.tag)),
	})
	if err != nil {
		return false, fmt.Errorf("list images: %w", err)
	}
	return len(images) > 0, nil
}

func (ib *ImageBuilder) build(ctx context.Context) error {
	buildContext, err := dockerfileContext()
	if err != nil {
		return err
	}

	resp, err := ib.cli.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:       []string{ib.tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("build image %q: %w", ib.tag, err)
	}
	defer resp.Body.Close()

	// The daemon streams progress as JSON lines; a failed step arrives
	// as an error message in the stream, not as an HTTP error.
	dec := json.NewDecoder(resp.Body)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read build output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("build image %q: %s", ib.tag, msg.Error)
		}
	}
	return nil
}

// dockerfileContext packs the embedded Dockerfile into the tar build
// context the daemon expects.
func dockerfileContext() (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: "Dockerfile",
		Mode: 0o644,
		Size: int64(len(agentDockerfile)),
	}); err != nil {
		return nil, fmt.Errorf("write build context: %w", err)
	}
	if _, err := tw.Write(agentDockerfile); err != nil {
		return nil, fmt.Errorf("write build context: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("write build context: %w", err)
	}
	return &buf, nil
}
