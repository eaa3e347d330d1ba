package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// probeTTL is how long a Docker availability verdict stays fresh. Only the
// Docker tier is cached: its probe is a network round-trip to the daemon,
// while every other tier's probe is a cheap local check.
const probeTTL = 5 * time.Minute

// Config assembles the knobs for a chain. Zero values fall back to defaults.
type Config struct {
	Docker DockerConfig
	Limits Limits
	// ProbeInterval is the cadence of the background availability prober.
	// Zero disables it.
	ProbeInterval time.Duration
}

// DefaultConfig returns the chain configuration used by the server.
func DefaultConfig() Config {
	return Config{
		Docker:        DefaultDockerConfig(),
		Limits:        DefaultLimits(),
		ProbeInterval: probeTTL,
	}
}

// Chain is the ordered fallback chain of isolation tiers. Strongest first:
// Docker, firejail, namespaces, Starlark, local. A request walks the chain at
// most once; the first tier that launches the code wins, whatever the code
// itself then does.
type Chain struct {
	tiers     []Executor
	limits    Limits
	installer Installer
	logger    *slog.Logger

	mu           sync.Mutex
	dockerOK     bool
	dockerDetail string
	dockerAt     time.Time

	probeInterval time.Duration
	stopProber    chan struct{}
	proberDone    chan struct{}
}

// New builds the chain with its five standard tiers.
func New(cfg Config, logger *slog.Logger) *Chain {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Docker == (DockerConfig{}) {
		cfg.Docker = DefaultDockerConfig()
	}
	return &Chain{
		tiers: []Executor{
			NewDockerTier(cfg.Docker, logger),
			NewFirejailTier(logger),
			NewNamespaceTier(logger),
			NewStarlarkTier(logger),
			NewLocalTier(logger),
		},
		limits:        cfg.Limits,
		installer:     NewPipInstaller(logger),
		logger:        logger,
		probeInterval: cfg.ProbeInterval,
	}
}

// SetInstaller overrides the dependency installer. Nil disables resolution.
func (c *Chain) SetInstaller(inst Installer) {
	c.installer = inst
}

// Run executes the request through the chain and, when the output shows a
// recognizable missing-module failure and policy permits, installs the
// package and re-runs the whole chain exactly once.
func (c *Chain) Run(ctx context.Context, req Request, pol Policy) *Outcome {
	out := c.Execute(ctx, req, pol)

	if !pol.AllowInstalls || !pol.AllowExec || c.installer == nil {
		return out
	}
	pkg := MissingModule(out.Text)
	if pkg == "" {
		return out
	}

	if err := c.installer.Install(ctx, pkg); err != nil {
		c.logger.Warn("dependency install failed",
			slog.String("package", pkg), slog.String("error", err.Error()))
		out.Text += fmt.Sprintf("\n\n(attempted to install missing package %q: %v)", pkg, err)
		return out
	}

	c.logger.Info("re-running after dependency install", slog.String("package", pkg))
	retry := c.Execute(ctx, req, pol)
	retry.Text = fmt.Sprintf("(installed missing package %q and re-ran)\n%s", pkg, retry.Text)
	return retry
}

// Execute walks the chain once and returns the first tier's outcome, its text
// prefixed with the tier label so the caller always knows which isolation
// level ran the code. Never returns nil.
func (c *Chain) Execute(ctx context.Context, req Request, pol Policy) *Outcome {
	start := time.Now()

	var failures []string
	for _, ex := range c.tiers {
		tier := ex.Tier()

		if pol.PreferLocal && tier != TierLocal {
			continue
		}
		if !ex.Supports(req.Language) {
			failures = append(failures, fmt.Sprintf("%s: language %q not supported", tier.Label(), req.Language))
			continue
		}

		if ok, detail := c.availability(ctx, ex); !ok {
			c.logger.Debug("tier unavailable",
				slog.String("tier", string(tier)), slog.String("reason", detail))
			failures = append(failures, fmt.Sprintf("%s: %s", tier.Label(), detail))
			continue
		}

		out, err := ex.Execute(ctx, req, c.limits)
		if err != nil {
			// The isolation mechanism failed, not the user's code. Fall
			// through to the next tier; this tier is not retried for this
			// request.
			c.logger.Warn("tier execution failed, falling through",
				slog.String("tier", string(tier)), slog.String("error", err.Error()))
			failures = append(failures, fmt.Sprintf("%s: %s", tier.Label(), err.Error()))
			continue
		}

		c.logger.Info("code executed",
			slog.String("tier", string(tier)),
			slog.String("errorKind", string(out.ErrorKind)),
			slog.Int("exitCode", out.ExitCode),
			slog.Duration("duration", out.Duration))
		out.Text = tier.Label() + ":\n" + out.Text
		return out
	}

	// Every tier declined or broke. With local in the chain this is rare;
	// it happens when the language is unsupported everywhere.
	var b strings.Builder
	b.WriteString("no sandbox tier could run the code:\n")
	for _, f := range failures {
		b.WriteString("  - ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return &Outcome{
		Text:      b.String(),
		Tier:      TierNone,
		ErrorKind: ErrorKindRuntime,
		ExitCode:  -1,
		Duration:  time.Since(start),
	}
}

// availability answers "may this tier be dispatched to right now". Docker's
// verdict comes from the TTL cache; everything else probes fresh.
func (c *Chain) availability(ctx context.Context, ex Executor) (bool, string) {
	if ex.Tier() == TierDocker {
		return c.dockerAvailability(ctx, ex)
	}
	if err := ex.Probe(ctx); err != nil {
		return false, err.Error()
	}
	return true, "available"
}

func (c *Chain) dockerAvailability(ctx context.Context, ex Executor) (bool, string) {
	c.mu.Lock()
	if !c.dockerAt.IsZero() && time.Since(c.dockerAt) < probeTTL {
		ok, detail := c.dockerOK, c.dockerDetail
		c.mu.Unlock()
		return ok, detail
	}
	c.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := ex.Probe(probeCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dockerAt = time.Now()
	if err != nil {
		c.dockerOK = false
		c.dockerDetail = err.Error()
	} else {
		c.dockerOK = true
		c.dockerDetail = "available"
	}
	return c.dockerOK, c.dockerDetail
}

// Refresh discards the cached Docker verdict and probes again immediately.
// Exposed to callers so a just-started daemon can be picked up without
// waiting out the TTL.
func (c *Chain) Refresh(ctx context.Context) {
	c.mu.Lock()
	c.dockerAt = time.Time{}
	c.mu.Unlock()

	for _, ex := range c.tiers {
		if ex.Tier() == TierDocker {
			c.dockerAvailability(ctx, ex)
			return
		}
	}
}

// TierStatus probes every tier and reports availability in chain order.
func (c *Chain) TierStatus(ctx context.Context) map[Tier]Status {
	statuses := make(map[Tier]Status, len(c.tiers))
	for _, ex := range c.tiers {
		ok, detail := c.availability(ctx, ex)
		statuses[ex.Tier()] = Status{Available: ok, Detail: detail}
	}
	return statuses
}

// Tiers returns the chain's tier order for display.
func (c *Chain) Tiers() []Tier {
	order := make([]Tier, len(c.tiers))
	for i, ex := range c.tiers {
		order[i] = ex.Tier()
	}
	return order
}

// Start launches the background prober that keeps the Docker verdict warm.
// No-op when ProbeInterval is zero.
func (c *Chain) Start() {
	if c.probeInterval <= 0 || c.stopProber != nil {
		return
	}
	c.stopProber = make(chan struct{})
	c.proberDone = make(chan struct{})

	go func() {
		defer close(c.proberDone)
		ticker := time.NewTicker(c.probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Refresh(context.Background())
			case <-c.stopProber:
				return
			}
		}
	}()
}

// Stop halts the background prober and releases tier resources.
func (c *Chain) Stop() {
	if c.stopProber != nil {
		close(c.stopProber)
		<-c.proberDone
		c.stopProber = nil
	}
	for _, ex := range c.tiers {
		if closer, ok := ex.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				c.logger.Error("closing tier",
					slog.String("tier", string(ex.Tier())), slog.String("error", err.Error()))
			}
		}
	}
}
