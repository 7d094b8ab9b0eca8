package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/conduit/internal/config"
	"github.com/harun/conduit/internal/observability"
	"github.com/harun/conduit/internal/tracing"
	"github.com/harun/conduit/pkg/gateway"
	"github.com/harun/conduit/pkg/llmgateway"
	"github.com/harun/conduit/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

// Role names one conduit service
type Role string

const (
	RoleToolbox Role = "toolbox"
	RoleGateway Role = "gateway"
	RoleAgent   Role = "agent"
)

// service is a blocking server: Start serves until Stop is called
type service interface {
	Start() error
	Stop(ctx context.Context) error
}

type namedService struct {
	name string
	service
}

// Status describes a running daemon
type Status struct {
	Running   bool
	StartTime time.Time
	Uptime    time.Duration
	Services  []string
}

// Daemon runs one or more conduit services in this process
type Daemon struct {
	config *config.Config
	logger zerolog.Logger
	name   string

	services  []namedService
	agent     *AgentStack
	janitor   *llmgateway.Janitor
	lifecycle *LifecycleManager

	errCh chan error
	wg    sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New builds every service for the requested roles. Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, roles ...Role) (*Daemon, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{
		config: cfg,
		logger: logger,
		name:   daemonName(roles),
		errCh:  make(chan error, len(roles)),
	}
	d.lifecycle = NewLifecycleManager(cfg.DataDir, d.name, logger)

	// Toolbox first so an agent in the same process can discover it
	ordered := append([]Role(nil), roles...)
	sort.SliceStable(ordered, func(i, j int) bool { return roleOrder(ordered[i]) < roleOrder(ordered[j]) })

	for _, role := range ordered {
		var err error
		switch role {
		case RoleToolbox:
			err = d.initializeToolbox()
		case RoleGateway:
			err = d.initializeGateway(ctx)
		case RoleAgent:
			err = d.initializeAgent(ctx, ordered)
		default:
			err = fmt.Errorf("unknown role: %s", role)
		}
		if err != nil {
			d.release()
			return nil, err
		}
	}

	return d, nil
}

func (d *Daemon) initializeToolbox() error {
	exec, err := BuildToolbox(d.config)
	if err != nil {
		return err
	}
	server, err := toolexecutor.NewServer(toolexecutor.ServerOptions{
		Host: d.config.Toolbox.Host,
		Port: d.config.Toolbox.Port,
	}, exec)
	if err != nil {
		return fmt.Errorf("failed to create toolbox server: %w", err)
	}
	d.services = append(d.services, namedService{name: string(RoleToolbox), service: server})
	return nil
}

func (d *Daemon) initializeGateway(ctx context.Context) error {
	if err := d.config.ValidateGateway(); err != nil {
		return err
	}
	gw, err := BuildGateway(ctx, d.config, d.logger)
	if err != nil {
		return err
	}
	janitor, err := gw.Janitor()
	if err != nil {
		return err
	}
	d.janitor = janitor
	server, err := llmgateway.NewServer(llmgateway.ServerOptions{
		Host: d.config.Gateway.Host,
		Port: d.config.Gateway.Port,
	}, gw, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create model gateway server: %w", err)
	}
	d.services = append(d.services, namedService{name: string(RoleGateway), service: server})
	return nil
}

// initializeAgent connects to the toolbox. When this process also runs the toolbox,
// discovery waits until Start has it listening.
func (d *Daemon) initializeAgent(ctx context.Context, roles []Role) error {
	if d.config.Gateway.URL == "" && !hasRole(roles, RoleGateway) {
		if err := d.config.ValidateGateway(); err != nil {
			return err
		}
	}
	if hasRole(roles, RoleToolbox) {
		d.services = append(d.services, namedService{name: string(RoleAgent), service: &deferredAgent{d: d, ctx: ctx}})
		return nil
	}

	server, err := d.buildAgentServer(ctx)
	if err != nil {
		return err
	}
	d.services = append(d.services, namedService{name: string(RoleAgent), service: server})
	return nil
}

func (d *Daemon) buildAgentServer(ctx context.Context) (*gateway.Server, error) {
	stack, err := BuildAgent(ctx, d.config, d.logger)
	if err != nil {
		return nil, err
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:            d.config.Agent.Host,
		Port:            d.config.Agent.Port,
		Runner:          stack.Runner,
		Tools:           stack.Tools,
		Models:          stack.Models,
		Logger:          d.logger,
		TurnsPerMinute:  d.config.Agent.TurnsPerMinute,
		ConcurrentTurns: d.config.Agent.ConcurrentTurns,
	})
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("failed to create agent server: %w", err)
	}

	d.mu.Lock()
	d.agent = stack
	d.mu.Unlock()
	return server, nil
}

// Start writes the PID file and launches every service in the background
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Str("services", d.name).Msg("Starting conduit")

	if err := d.lifecycle.Start(); err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := observability.InitAuditLogger(filepath.Join(d.config.DataDir, "audit.log")); err != nil {
		logger.Warn().Err(err).Msg("Failed to open audit log, auditing to stderr")
	}

	if d.config.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(tracing.Options{
			ServiceName:    d.config.Tracing.ServiceName,
			ServiceVersion: d.config.Tracing.ServiceVersion,
			SampleRatio:    d.config.Tracing.SampleRatio,
		}); err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			d.tracingEnabled = true
		}
	}

	if d.janitor != nil {
		d.janitor.Start()
	}

	for _, svc := range d.services {
		svc := svc
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := svc.Start(); err != nil {
				logger.Error().Err(err).Str("service", svc.name).Msg("Service failed")
				d.errCh <- fmt.Errorf("%s: %w", svc.name, err)
			}
		}()
		logger.Info().Str("service", svc.name).Msg("Service started")
	}

	logger.Info().Msg("Conduit started")
	return nil
}

// Wait blocks until ctx is done or a service fails, then stops the daemon.
// A failed service is returned as the error.
func (d *Daemon) Wait(ctx context.Context) error {
	var failure error
	select {
	case <-ctx.Done():
		d.logger.Info().Msg("Shutdown requested")
	case failure = <-d.errCh:
	}

	if err := d.Stop(); err != nil && failure == nil {
		failure = err
	}
	return failure
}

// Stop shuts services down in reverse start order
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping conduit")

	timeout := 30 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(d.services) - 1; i >= 0; i-- {
		svc := d.services[i]
		if err := svc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", svc.name, err))
		}
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn().Msg("Timed out waiting for services to exit")
	}

	d.release()

	if d.tracingEnabled {
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := observability.CloseAuditLogger(); err != nil {
		errs = append(errs, err)
	}
	if err := d.lifecycle.Stop(); err != nil {
		errs = append(errs, err)
	}

	d.logger.Info().Msg("Conduit stopped")
	return errors.Join(errs...)
}

// release stops background jobs owned by built components
func (d *Daemon) release() {
	if d.janitor != nil {
		d.janitor.Stop()
	}
	d.mu.Lock()
	if d.agent != nil {
		d.agent.Close()
	}
	d.mu.Unlock()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Running: d.running}
	for _, svc := range d.services {
		status.Services = append(status.Services, svc.name)
	}
	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
	}
	return status
}

// Name identifies the daemon's PID file
func (d *Daemon) Name() string {
	return d.name
}

// PIDFile returns the daemon PID file path
func (d *Daemon) PIDFile() string {
	return d.lifecycle.PIDFile()
}

// deferredAgent builds the agent server on Start, after the in-process toolbox listens
type deferredAgent struct {
	d      *Daemon
	ctx    context.Context
	mu     sync.Mutex
	server *gateway.Server
	halted bool
}

func (a *deferredAgent) Start() error {
	if err := waitForToolbox(a.ctx, a.d.config.Toolbox.URL, 10*time.Second); err != nil {
		return err
	}

	server, err := a.d.buildAgentServer(a.ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.halted {
		a.mu.Unlock()
		return nil
	}
	a.server = server
	a.mu.Unlock()

	return server.Start()
}

func (a *deferredAgent) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.halted = true
	server := a.server
	a.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Stop(ctx)
}

func daemonName(roles []Role) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}

func roleOrder(r Role) int {
	switch r {
	case RoleToolbox:
		return 0
	case RoleGateway:
		return 1
	default:
		return 2
	}
}

func hasRole(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
