package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// sandboxDockerfile builds the minimal non-root execution image. Built once,
// lazily, and cached under DockerConfig.Image from then on.
const sandboxDockerfile = `FROM python:3.11-slim
RUN useradd --create-home --shell /bin/sh sandbox
USER sandbox
WORKDIR /home/sandbox
ENV PYTHONDONTWRITEBYTECODE=1 PYTHONUNBUFFERED=1
`

// DockerConfig holds the configuration for the container tier.
type DockerConfig struct {
	// Image is the tag the sandbox image is built under and looked up by.
	Image string
	// MemoryLimit is the container memory ceiling in bytes.
	MemoryLimit int64
	// CPULimit is the CPU quota as a fraction of one core.
	CPULimit float64
	// PoolSize is the number of pre-warmed containers to keep ready.
	PoolSize int
}

// DefaultDockerConfig provides the defaults for the container tier.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Image:       "execbox-sandbox:latest",
		MemoryLimit: 128 * 1024 * 1024,
		CPULimit:    0.5,
		PoolSize:    2,
	}
}

// DockerTier is the strongest isolation tier: each request runs in a fresh
// container with no network, a read-only root filesystem except a private
// tmpfs on /tmp, a memory ceiling and a CPU quota. Containers come from a
// pre-warmed pool and are force-removed after a single use.
type DockerTier struct {
	cfg    DockerConfig
	logger *slog.Logger

	mu         sync.Mutex
	cli        *client.Client
	pool       *containerPool
	imageReady bool
}

// NewDockerTier creates the container tier. The Docker client is initialized
// lazily on first probe so that constructing the chain never requires a
// reachable daemon.
func NewDockerTier(cfg DockerConfig, logger *slog.Logger) *DockerTier {
	return &DockerTier{cfg: cfg, logger: logger}
}

func (d *DockerTier) Tier() Tier { return TierDocker }

func (d *DockerTier) Supports(lang Language) bool {
	return lang == LanguagePython || lang == LanguageShell
}

// Probe pings the daemon. The chain caches this tier's result for five
// minutes — pinging a down daemon on every request is what the cache exists
// to avoid.
func (d *DockerTier) Probe(ctx context.Context) error {
	cli, err := d.client()
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Execute runs the code in a one-use container from the pool.
func (d *DockerTier) Execute(ctx context.Context, req Request, limits Limits) (*Outcome, error) {
	start := time.Now()

	cli, err := d.client()
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if err := d.ensureImage(ctx, cli); err != nil {
		return nil, fmt.Errorf("building sandbox image: %w", err)
	}

	containerID, err := d.acquireContainer(ctx, cli)
	if err != nil {
		return nil, fmt.Errorf("acquiring container: %w", err)
	}

	// One use per container, success or not.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Error("failed to remove container",
				slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	script := scriptName(req.Language)
	if err := copyCodeToContainer(ctx, cli, containerID, script, req.Code); err != nil {
		return nil, fmt.Errorf("copying code into container: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, limits.WallClock)
	defer cancel()

	execResp, err := cli.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          interpreterCmd(req.Language, "/tmp/"+script),
	})
	if err != nil {
		return nil, fmt.Errorf("creating exec: %w", err)
	}

	attachResp, err := cli.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("attaching to exec: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan struct{})
	go func() {
		// stdcopy demultiplexes the Docker stream back into the two pipes.
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-execCtx.Done():
		return &Outcome{
			Text:      fmt.Sprintf("execution timed out after %s", limits.WallClock),
			Tier:      TierDocker,
			ErrorKind: ErrorKindTimeout,
			ExitCode:  -1,
			Duration:  time.Since(start),
		}, nil
	}

	exitCode := 0
	if inspect, err := cli.ContainerExecInspect(ctx, execResp.ID); err == nil {
		exitCode = inspect.ExitCode
	}

	outcome := &Outcome{
		Text:      combineOutput(stdout.String(), stderr.String(), exitCode),
		Tier:      TierDocker,
		ErrorKind: ErrorKindNone,
		ExitCode:  exitCode,
		Duration:  time.Since(start),
	}
	// 137 = SIGKILL, which inside the container almost always means the
	// cgroup memory ceiling fired.
	if exitCode == 137 {
		outcome.ErrorKind = ErrorKindResourceLimit
		outcome.Text += "\n(killed: memory limit exceeded)"
	}
	return outcome, nil
}

// Close stops the container pool and the Docker client.
func (d *DockerTier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		d.pool.Stop()
		d.pool = nil
	}
	if d.cli != nil {
		return d.cli.Close()
	}
	return nil
}

// client lazily initializes the Docker API client.
func (d *DockerTier) client() (*client.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cli != nil {
		return d.cli, nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	d.cli = cli
	return cli, nil
}

// ensureImage builds the sandbox image if it is not already present.
// Cached by tag: once seen (or built), never checked again for the process
// lifetime.
func (d *DockerTier) ensureImage(ctx context.Context, cli *client.Client) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.imageReady {
		return nil
	}

	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	summaries, err := cli.ImageList(listCtx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", d.cfg.Image)),
	})
	if err != nil {
		return fmt.Errorf("listing images: %w", err)
	}
	if len(summaries) > 0 {
		d.imageReady = true
		return nil
	}

	d.logger.Info("building sandbox image", slog.String("tag", d.cfg.Image))

	buildCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	resp, err := cli.ImageBuild(buildCtx, dockerfileContext(), build.ImageBuildOptions{
		Tags:        []string{d.cfg.Image},
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()
	// Drain to block until the build finishes.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("reading build output: %w", err)
	}

	d.logger.Info("sandbox image ready", slog.String("tag", d.cfg.Image))
	d.imageReady = true
	return nil
}

// acquireContainer returns a fresh container, starting the pre-warm pool on
// first use.
func (d *DockerTier) acquireContainer(ctx context.Context, cli *client.Client) (string, error) {
	d.mu.Lock()
	if d.pool == nil {
		d.pool = newContainerPool(cli, d.cfg, d.logger)
		d.pool.Start()
	}
	pool := d.pool
	d.mu.Unlock()

	acquireCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return pool.Get(acquireCtx)
}

// dockerfileContext wraps the inline Dockerfile in the tar stream the build
// API expects.
func dockerfileContext() io.Reader {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	_ = tw.WriteHeader(&tar.Header{
		Name: "Dockerfile",
		Mode: 0o644,
		Size: int64(len(sandboxDockerfile)),
	})
	_, _ = tw.Write([]byte(sandboxDockerfile))
	_ = tw.Close()
	return &buf
}

// copyCodeToContainer places the code file on the container's private tmpfs,
// read-only for the sandbox user.
func copyCodeToContainer(ctx context.Context, cli *client.Client, containerID, name, code string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: name,
		Mode: 0o444,
		Size: int64(len(code)),
	}); err != nil {
		return err
	}
	if _, err := tw.Write([]byte(code)); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return cli.CopyToContainer(ctx, containerID, "/tmp", &buf, container.CopyToContainerOptions{})
}

// scriptName picks the code file name for the language.
func scriptName(lang Language) string {
	if lang == LanguageShell {
		return "code.sh"
	}
	return "code.py"
}

// interpreterCmd returns the argv that runs the code file for the language.
func interpreterCmd(lang Language, path string) []string {
	if lang == LanguageShell {
		return []string{"sh", path}
	}
	return []string{"python3", path}
}
