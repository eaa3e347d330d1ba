package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// containerPool keeps a small number of pre-warmed sandbox containers so an
// execution request doesn't pay container startup latency. Every container
// is handed out exactly once and force-removed by the tier after use — the
// pool never recycles a scratch context between requests.
type containerPool struct {
	cli        *client.Client
	cfg        DockerConfig
	logger     *slog.Logger
	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

func newContainerPool(cli *client.Client, cfg DockerConfig, logger *slog.Logger) *containerPool {
	size := cfg.PoolSize
	if size <= 0 {
		size = 1
	}
	return &containerPool{
		cli:        cli,
		cfg:        cfg,
		logger:     logger,
		containers: make(chan string, size),
		done:       make(chan struct{}),
	}
}

// Start begins filling the pool in the background.
func (p *containerPool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting container pool", slog.Int("size", cap(p.containers)))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop shuts down the manager and removes all pre-warmed containers.
func (p *containerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		for {
			select {
			case id := <-p.containers:
				p.removeContainer(id)
			default:
				return
			}
		}
	})
}

// Get returns a ready container ID, blocking until one is warm or the
// context expires.
func (p *containerPool) Get(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// manager keeps the pool at capacity, backing off when the daemon is
// unhappy so a down daemon isn't hammered in a tight loop.
func (p *containerPool) manager() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		default:
			if len(p.containers) < cap(p.containers) {
				id, err := p.createContainer()
				if err != nil {
					p.logger.Error("failed to create pre-warmed container",
						slog.String("error", err.Error()))
					time.Sleep(1 * time.Second)
					continue
				}
				select {
				case p.containers <- id:
				case <-p.done:
					p.removeContainer(id)
					return
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

// createContainer starts an idle container with the tier's full confinement:
// no network, read-only rootfs, private tmpfs on /tmp, memory and CPU caps.
func (p *containerPool) createContainer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   p.cfg.MemoryLimit,
			NanoCPUs: int64(p.cfg.CPULimit * 1e9),
		},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,size=16m"},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image: p.cfg.Image,
		// The container idles until the tier execs the code into it.
		Cmd: []string{"sleep", "infinity"},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return "", fmt.Errorf("ContainerStart failed: %w", err)
	}

	return resp.ID, nil
}

func (p *containerPool) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}
