// Package app assembles scout's process-wide resources from a configuration:
// the model provider, the shared browser, the filesystem sandbox, the tool
// registry, the streaming bridge and the session manager. Commands build one
// App and hand its parts to a front end.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/agent"
	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/bridge"
	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/ipc"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/gemini"
	"github.com/entrhq/scout/pkg/llm/openai"
	"github.com/entrhq/scout/pkg/llm/tokenizer"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/observability"
	"github.com/entrhq/scout/pkg/security/workspace"
	browsertools "github.com/entrhq/scout/pkg/tools/browser"
	"github.com/entrhq/scout/pkg/tools/filesystem"
)

// App holds the resources shared by every session of a process.
type App struct {
	Config   *config.Config
	Provider llm.Provider
	Browser  *browser.Controller
	Sandbox  *workspace.Sandbox
	Registry *tools.Registry
	Bridge   *bridge.Bridge
	Sessions *agent.Manager

	tracer *observability.TracerProvider
	logger *zap.Logger
}

type options struct {
	provider    llm.Provider
	launcher    browser.Launcher
	traceWriter io.Writer
	version     string
}

// Option customizes New.
type Option func(*options)

// WithProvider uses p instead of building a provider from the configuration.
func WithProvider(p llm.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithLauncher uses launch instead of the configured browser backend.
func WithLauncher(launch browser.Launcher) Option {
	return func(o *options) {
		o.launcher = launch
	}
}

// WithTraceWriter sets where spans are exported when tracing is enabled.
func WithTraceWriter(w io.Writer) Option {
	return func(o *options) {
		o.traceWriter = w
	}
}

// WithVersion sets the version reported on traces.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// New builds an App. Nothing is launched until first use: the browser starts
// on the first navigation.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{traceWriter: os.Stderr, version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: logging.Named("app")}

	if cfg.Tracing.Enabled {
		tp, err := observability.NewTracerProvider("scout", o.version, o.traceWriter)
		if err != nil {
			return nil, err
		}
		a.tracer = tp
	}

	a.Provider = o.provider
	if a.Provider == nil {
		provider, err := NewProvider(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
		a.Provider = provider
	}

	launch := o.launcher
	if launch == nil {
		var err error
		launch, err = browser.NewLauncher(cfg.Browser.Backend, browser.SurfaceOptions{
			UserAgent:         cfg.Browser.UserAgent,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			Headless:          cfg.Browser.Headless,
			InstallBrowsers:   cfg.Browser.Backend == browser.BackendPlaywright,
		})
		if err != nil {
			return nil, err
		}
	}
	a.Browser = browser.NewController(launch,
		browser.WithContentLimit(cfg.Browser.ContentLimit),
		browser.WithNavigationTimeout(cfg.Browser.NavigationTimeout),
		browser.WithLogger(logging.Named("browser")),
	)

	sandbox, err := workspace.NewSandbox(
		workspace.WithMaxFileSize(cfg.Sandbox.MaxFileSize),
		workspace.WithDenyPatterns(cfg.Sandbox.DenyPatterns...),
		workspace.WithLogger(logging.Named("workspace")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}
	if cfg.Sandbox.Root != "" {
		if _, err := sandbox.SetRoot(cfg.Sandbox.Root); err != nil {
			return nil, fmt.Errorf("sandbox.root: %w", err)
		}
	}
	a.Sandbox = sandbox

	a.Registry = tools.NewRegistry(logging.Named("tools"))
	if err := a.Registry.Register(browsertools.Tools(a.Browser)...); err != nil {
		return nil, fmt.Errorf("failed to register browser tools: %w", err)
	}
	if err := a.Registry.Register(filesystem.Tools(a.Sandbox)...); err != nil {
		return nil, fmt.Errorf("failed to register filesystem tools: %w", err)
	}

	a.Bridge = bridge.New(bridge.WithLogger(logging.Named("bridge")))
	a.Sessions = agent.NewManager(a.Provider, a.Registry, a.Browser, a.Bridge,
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithCustomInstructions(cfg.Agent.SystemPrompt),
		agent.WithWorkspace(a.Sandbox),
		agent.WithLogger(logging.Named("agent")),
	)

	if err := tokenizer.Warm(); err != nil {
		a.logger.Warn("token encoding unavailable, prompt sizes are estimated", zap.Error(err))
	}

	a.logger.Info("resources ready",
		zap.String("provider", a.Provider.Name()),
		zap.String("model", a.Provider.GetModel()),
		zap.String("browser", cfg.Browser.Backend),
		zap.Int("tools", len(a.Registry.Tools())))
	return a, nil
}

// NewProvider builds the model provider named by cfg.
func NewProvider(ctx context.Context, cfg config.LLMConfig) (llm.Provider, error) {
	policy := llm.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		opts := []openai.ProviderOption{
			openai.WithModel(cfg.Model),
			openai.WithTemperature(cfg.Temperature),
			openai.WithRetryPolicy(policy),
			openai.WithLogger(logging.Named("llm.openai")),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewProvider(cfg.APIKey, opts...)
	case config.ProviderGemini:
		opts := []gemini.ProviderOption{
			gemini.WithModel(cfg.Model),
			gemini.WithTemperature(cfg.Temperature),
			gemini.WithRetryPolicy(policy),
			gemini.WithLogger(logging.Named("llm.gemini")),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		return gemini.NewProvider(ctx, cfg.APIKey, opts...)
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// Server returns an IPC server exposing the App.
func (a *App) Server() *ipc.Server {
	return ipc.NewServer(ipc.Config{
		Addr:              a.Config.Server.Addr,
		AllowedOrigins:    a.Config.Server.AllowedOrigins,
		ReadHeaderTimeout: a.Config.Server.ReadHeaderTimeout,
	}, ipc.Deps{
		Sessions: a.Sessions,
		Bridge:   a.Bridge,
		Browser:  a.Browser,
		Sandbox:  a.Sandbox,
	}, logging.Named("ipc"))
}

// Close cancels running sessions, then stops the browser and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Sessions.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sessions: %w", err))
	}
	if err := a.Browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("browser: %w", err))
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
