// Package vllm manages a local vLLM container serving the OCR model behind
// an OpenAI-compatible API.
package vllm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	DefaultImage           = "vllm/vllm-openai:latest"
	DefaultContainerName   = "chandra-vllm"
	DefaultPort            = "8000"
	DefaultCheckpoint      = "datalab-to/chandra"
	DefaultServedModelName = "chandra"
	ContainerPort          = "8000/tcp"
	CacheDir               = "/root/.cache/huggingface"
	Label                  = "chandra-vllm"

	// DefaultReadyTimeout covers weight download and load on first start.
	DefaultReadyTimeout = 10 * time.Minute
)

// ContainerStatus represents the state of the vLLM container.
type ContainerStatus string

const (
	StatusRunning   ContainerStatus = "running"
	StatusStopped   ContainerStatus = "stopped"
	StatusNotFound  ContainerStatus = "not_found"
	StatusUnhealthy ContainerStatus = "unhealthy"
	StatusStarting  ContainerStatus = "starting"
)

// DockerManager manages the vLLM Docker container lifecycle.
type DockerManager struct {
	cli             *client.Client
	containerName   string
	imageName       string
	hostPort        string
	checkpoint      string
	servedModelName string
	gpus            []string
	cachePath       string // Host HF cache mounted into the container
	labels          map[string]string
}

// DockerConfig holds configuration for the Docker manager.
type DockerConfig struct {
	ContainerName   string
	Image           string
	HostPort        string
	Checkpoint      string
	ServedModelName string
	// GPUs is a comma separated device id list; empty requests all GPUs.
	GPUs string
	// CachePath is the host Hugging Face cache; empty disables the mount.
	CachePath string
	Labels    map[string]string // Optional labels for container (used for test cleanup)
}

// NewDockerManager creates a new Docker manager for vLLM.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	cfg = cfg.withDefaults()

	labels := map[string]string{Label: "true"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}

	return &DockerManager{
		cli:             cli,
		containerName:   cfg.ContainerName,
		imageName:       cfg.Image,
		hostPort:        cfg.HostPort,
		checkpoint:      cfg.Checkpoint,
		servedModelName: cfg.ServedModelName,
		gpus:            splitGPUs(cfg.GPUs),
		cachePath:       cfg.CachePath,
		labels:          labels,
	}, nil
}

func (cfg DockerConfig) withDefaults() DockerConfig {
	if cfg.ContainerName == "" {
		cfg.ContainerName = DefaultContainerName
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.HostPort == "" {
		cfg.HostPort = DefaultPort
	}
	if cfg.Checkpoint == "" {
		cfg.Checkpoint = DefaultCheckpoint
	}
	if cfg.ServedModelName == "" {
		cfg.ServedModelName = DefaultServedModelName
	}
	return cfg
}

func splitGPUs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Close closes the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// Start starts the vLLM container and waits until it serves requests.
func (m *DockerManager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}

	switch status {
	case StatusRunning:
		return nil
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing container: %w", err)
		}
		return m.WaitReady(ctx, DefaultReadyTimeout)
	case StatusNotFound:
		return m.createAndStart(ctx)
	default:
		return fmt.Errorf("container in unexpected state: %s", status)
	}
}

// Stop stops the vLLM container.
func (m *DockerManager) Stop(ctx context.Context) error {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}
	if status == StatusNotFound {
		return nil
	}

	timeout := 30
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// Remove stops and removes the vLLM container.
func (m *DockerManager) Remove(ctx context.Context) error {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}
	if status == StatusNotFound {
		return nil
	}
	if status == StatusRunning {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}
	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Status returns the current status of the vLLM container.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	status, _, err := m.getContainerStatus(ctx)
	return status, err
}

// Logs returns the container logs.
func (m *DockerManager) Logs(ctx context.Context, tail string) (string, error) {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return "", err
	}
	if status == StatusNotFound {
		return "", fmt.Errorf("container not found")
	}

	logs, err := m.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer logs.Close()

	logBytes, err := io.ReadAll(logs)
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return string(logBytes), nil
}

// URL returns the server root URL.
func (m *DockerManager) URL() string {
	return fmt.Sprintf("http://localhost:%s", m.hostPort)
}

// BaseURL returns the OpenAI-compatible API base URL.
func (m *DockerManager) BaseURL() string {
	return m.URL() + "/v1"
}

// WaitReady waits for vLLM to answer its health check.
func (m *DockerManager) WaitReady(ctx context.Context, timeout time.Duration) error {
	return WaitForHealthy(ctx, m.URL()+"/health", timeout, 2*time.Second)
}

// serveArgs are the vllm serve arguments for the configured checkpoint.
func (m *DockerManager) serveArgs() []string {
	return []string{
		"--model", m.checkpoint,
		"--served-model-name", m.servedModelName,
		"--port", "8000",
		"--max-model-len", "32768",
		"--gpu-memory-utilization", "0.85",
		"--max-num-seqs", "32",
	}
}

// createAndStart creates and starts a new vLLM container.
func (m *DockerManager) createAndStart(ctx context.Context) error {
	if err := m.ensureImage(ctx); err != nil {
		return err
	}

	containerConfig := &container.Config{
		Image:  m.imageName,
		Cmd:    m.serveArgs(),
		Labels: m.labels,
		ExposedPorts: nat.PortSet{
			ContainerPort: struct{}{},
		},
	}

	gpu := container.DeviceRequest{
		Driver:       "nvidia",
		Capabilities: [][]string{{"gpu"}},
	}
	if len(m.gpus) > 0 {
		gpu.DeviceIDs = m.gpus
	} else {
		gpu.Count = -1
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: m.hostPort},
			},
		},
		IpcMode: "host",
		Resources: container.Resources{
			DeviceRequests: []container.DeviceRequest{gpu},
		},
	}
	if m.cachePath != "" {
		hostConfig.Mounts = []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: m.cachePath,
				Target: CacheDir,
			},
		}
	}

	resp, err := m.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, m.containerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}

	return m.WaitReady(ctx, DefaultReadyTimeout)
}

// getContainerStatus returns the status and ID of the container.
func (m *DockerManager) getContainerStatus(ctx context.Context) (ContainerStatus, string, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", m.containerName)

	containers, err := m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return StatusNotFound, "", nil
	}

	c := containers[0]
	switch c.State {
	case "running":
		return StatusRunning, c.ID, nil
	case "exited", "dead":
		return StatusStopped, c.ID, nil
	case "created", "restarting":
		return StatusStarting, c.ID, nil
	default:
		return ContainerStatus(c.State), c.ID, nil
	}
}

// ensureImage pulls the vLLM image if not present.
func (m *DockerManager) ensureImage(ctx context.Context) error {
	if _, err := m.cli.ImageInspect(ctx, m.imageName); err == nil {
		return nil
	}

	reader, err := m.cli.ImagePull(ctx, m.imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// WaitForHealthy polls url every interval until it answers 200 or timeout
// elapses.
func WaitForHealthy(ctx context.Context, url string, timeout, interval time.Duration) error {
	httpClient := &http.Client{Timeout: 2 * time.Second}
	attempts := max(uint(timeout/interval), 1)

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}
