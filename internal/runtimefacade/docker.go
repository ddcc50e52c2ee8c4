package runtimefacade

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// dockerRuntime is an alternate Runtime: every method except subprocess
// launch is delegated to the embedded default Runtime; subprocess launch
// runs the command inside a container instead of a bare os/exec child.
type dockerRuntime struct {
	Runtime
	cli   *client.Client
	image string
}

// NewDocker builds a Runtime that launches subprocesses as containers from
// image. Everything else passes through to the default stdlib Runtime.
func NewDocker(image string) (Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &dockerRuntime{Runtime: NewDefault(), cli: cli, image: image}, nil
}

func (r *dockerRuntime) Close() error {
	return r.cli.Close()
}

type containerProcess struct {
	cli *client.Client
	ctx context.Context
	id  string
}

func (p *containerProcess) Wait() error {
	statusCh, errCh := p.cli.ContainerWait(p.ctx, p.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("waiting on container %s: %w", p.id, err)
		}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return fmt.Errorf("container %s exited with status %d", p.id, status.StatusCode)
		}
	}
	return nil
}

func (p *containerProcess) Kill() error {
	return p.cli.ContainerKill(p.ctx, p.id, "SIGKILL")
}

func (p *containerProcess) Pid() int { return -1 }

func (r *dockerRuntime) StartProcess(ctx context.Context, shell, name string, args ...string) (Process, error) {
	cmd := append([]string{name}, args...)
	created, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image: r.image,
		Cmd:   cmd,
	}, nil, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("creating container for %s: %w", name, err)
	}
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container %s: %w", created.ID, err)
	}
	return &containerProcess{cli: r.cli, ctx: ctx, id: created.ID}, nil
}

// Logs returns the container's combined stdout/stderr.
func (r *dockerRuntime) Logs(ctx context.Context, containerID string) (string, error) {
	reader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("fetching logs for %s: %w", containerID, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading logs for %s: %w", containerID, err)
	}
	return string(data), nil
}
