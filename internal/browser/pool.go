package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const cdpPort = "3000/tcp"

// BrowserInstance is a running Chrome container
type BrowserInstance struct {
	ContainerID string
	RunID       string
	ConnectURL  string
	Port        string
}

// ContainerPool runs Chrome in local docker containers
type ContainerPool struct {
	client *client.Client
	image  string
}

// NewContainerPool connects to the docker daemon from the environment
func NewContainerPool(image string) (*ContainerPool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &ContainerPool{
		client: cli,
		image:  image,
	}, nil
}

// LaunchBrowser starts a container and waits until its CDP endpoint answers
func (p *ContainerPool) LaunchBrowser(ctx context.Context, runID string) (*BrowserInstance, error) {
	if err := p.EnsureImage(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure image: %w", err)
	}

	containerConfig := &container.Config{
		Image: p.image,
		Labels: map[string]string{
			"run-id":     runID,
			"managed-by": "birdhouse",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",     // Disable connection timeout
			"MAX_CONCURRENT_SESSIONS=1", // One run per container
			"PREBOOT_CHROME=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			cdpPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			cdpPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
	}

	name := runID
	if len(name) > 8 {
		name = name[:8]
	}

	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, fmt.Sprintf("birdhouse-%s", name))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.remove(resp.ID)
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[cdpPort]
	if len(bindings) == 0 {
		p.remove(resp.ID)
		return nil, fmt.Errorf("container %s published no port for %s", resp.ID[:12], cdpPort)
	}
	port := bindings[0].HostPort

	if err := waitForBrowserReady(ctx, fmt.Sprintf("http://127.0.0.1:%s/json/version", port)); err != nil {
		p.remove(resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	return &BrowserInstance{
		ContainerID: resp.ID,
		RunID:       runID,
		ConnectURL:  fmt.Sprintf("ws://127.0.0.1:%s", port),
		Port:        port,
	}, nil
}

// StopBrowser stops and removes a container
func (p *ContainerPool) StopBrowser(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

func (p *ContainerPool) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// EnsureImage pulls the browser image if it is not present locally
func (p *ContainerPool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.image {
				return nil
			}
		}
	}

	reader, err := p.client.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (p *ContainerPool) Close() error {
	return p.client.Close()
}

// waitForBrowserReady polls the /json/version endpoint
func waitForBrowserReady(ctx context.Context, url string) error {
	const maxRetries = 20 // 10 seconds total (20 * 500ms)

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}
