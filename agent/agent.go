// Package agent wires publishers and subscribers to zones and drives their
// lifecycle: connect, schedule, consume, and an ordered shutdown.
package agent

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/zoneagent/config"
	"github.com/c360/zoneagent/entity"
	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/health"
	"github.com/c360/zoneagent/publisher"
	"github.com/c360/zoneagent/scheduler"
	"github.com/c360/zoneagent/subscriber"
	"github.com/c360/zoneagent/transport"
	"github.com/c360/zoneagent/types"
)

// Orchestrator owns the shared entity context and every publisher and
// subscriber of one agent.
type Orchestrator struct {
	ectx            *entity.Context
	logger          *slog.Logger
	monitor         *health.Monitor
	startDelay      time.Duration
	shutdownTimeout time.Duration

	mu          sync.Mutex
	initialized bool
	stopped     bool
	startedAt   time.Time
	publishers  []*publisher.Publisher
	subscribers []*subscriber.Subscriber
	pubSched    *scheduler.Scheduler
	subSched    *scheduler.Scheduler
	cancel      context.CancelFunc
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithStartDelay overrides the delay between the first runs of consecutive
// entities of one kind
func WithStartDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.startDelay = d
	}
}

// WithShutdownTimeout bounds how long Stop waits for ticks and consumers
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithHealthMonitor shares a health monitor, for example with a metrics
// server started before the orchestrator.
func WithHealthMonitor(m *health.Monitor) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.monitor = m
		}
	}
}

// New creates an orchestrator for the populated context ectx
func New(ectx *entity.Context, opts ...Option) (*Orchestrator, error) {
	if err := ectx.Validate(); err != nil {
		return nil, errors.WrapConfiguration(err, "Orchestrator", "New", "context validation")
	}

	o := &Orchestrator{
		ectx:            ectx,
		logger:          ectx.Log().With("agent", ectx.AgentID),
		monitor:         health.NewMonitor(),
		startDelay:      ectx.Config.StartDelay.Std(),
		shutdownTimeout: ectx.Config.ShutdownTimeout.Std(),
	}
	if o.shutdownTimeout <= 0 {
		o.shutdownTimeout = config.DefaultShutdownTimeout
	}
	for _, opt := range opts {
		opt(o)
	}
	if cm, ok := ectx.Transport.(transport.ConnectionMonitor); ok {
		cm.OnZoneStateChange(o.zoneStateChanged)
	}
	return o, nil
}

// Context returns the shared entity context
func (o *Orchestrator) Context() *entity.Context { return o.ectx }

func zoneHealthName(zone types.Zone) string {
	return "zone:" + zone.ID
}

// Start connects every zone and, only if all of them connected, starts the
// consumers of every subscriber and schedules publishers and subscribers.
// When any zone fails nothing is started, Stop is invoked and the joined
// zone errors are returned.
func (o *Orchestrator) Start(ctx context.Context, publishers []*publisher.Publisher, subscribers []*subscriber.Subscriber) error {
	o.mu.Lock()
	if o.initialized {
		o.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Orchestrator", "Start", "start agent "+o.ectx.AgentID)
	}
	o.initialized = true
	o.startedAt = time.Now()
	o.publishers = publishers
	o.subscribers = subscribers
	o.mu.Unlock()

	o.logger.Info("Starting agent",
		"zones", o.ectx.Zones.IDs(),
		"publishers", len(publishers),
		"subscribers", len(subscribers))

	for _, p := range publishers {
		p.SetContext(o.ectx)
	}
	for _, s := range subscribers {
		s.SetContext(o.ectx)
	}

	var zoneErrs []error
	for _, zone := range o.ectx.Zones {
		if err := o.connectZone(ctx, zone, publishers, subscribers); err != nil {
			zoneErrs = append(zoneErrs, err)
		}
	}
	if err := stderrors.Join(zoneErrs...); err != nil {
		o.logger.Error("Not all zones connected, aborting start", "failed", len(zoneErrs), "error", err)
		o.abort(ctx)
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	for _, s := range subscribers {
		if err := s.StartConsumers(runCtx); err != nil {
			o.logger.Error("Failed to start consumers, aborting start", "subscriber", s.ID(), "error", err)
			o.abort(ctx)
			return err
		}
		o.monitor.UpdateHealthy("subscriber:"+s.ID(), "consumers running")
	}

	if err := o.schedule(runCtx, publishers, subscribers); err != nil {
		o.logger.Error("Failed to schedule entities, aborting start", "error", err)
		o.abort(ctx)
		return err
	}

	o.logger.Info("Agent started")
	return nil
}

// connectZone registers every entity with zone and then connects it
func (o *Orchestrator) connectZone(ctx context.Context, zone types.Zone, publishers []*publisher.Publisher, subscribers []*subscriber.Subscriber) error {
	logger := o.logger.With("zone", zone.ID)
	metrics := o.ectx.Metrics()

	fail := func(err error) error {
		logger.Error("Zone unavailable", "error", err)
		o.monitor.UpdateError(zoneHealthName(zone), err, "")
		if metrics != nil {
			metrics.RecordZoneStatus(zone.ID, false)
			metrics.RecordError(o.ectx.AgentID, "connection")
		}
		return err
	}

	for _, p := range publishers {
		if err := o.ectx.Transport.AssignPublisher(zone, p, p.ObjectType(), p.PublishOptions()); err != nil {
			return fail(errors.WrapConnection(err, "Orchestrator", "Start", "assign publisher "+p.ID()+" to zone "+zone.ID))
		}
	}
	for _, s := range subscribers {
		if err := s.Provision(ctx, zone); err != nil {
			return fail(errors.WrapConnection(err, "Orchestrator", "Start", "provision subscriber "+s.ID()+" in zone "+zone.ID))
		}
	}
	if err := o.ectx.Transport.Connect(ctx, zone); err != nil {
		return fail(errors.WrapConnection(err, "Orchestrator", "Start", "connect zone "+zone.ID))
	}

	logger.Info("Zone connected")
	o.monitor.UpdateHealthy(zoneHealthName(zone), "connected")
	if metrics != nil {
		metrics.RecordZoneStatus(zone.ID, true)
	}
	return nil
}

// zoneStateChanged records a connection drop or recovery reported by the
// transport while the agent runs
func (o *Orchestrator) zoneStateChanged(zone types.Zone, connected bool, err error) {
	if !o.Running() {
		return
	}
	logger := o.logger.With("zone", zone.ID)
	metrics := o.ectx.Metrics()

	switch {
	case connected:
		logger.Info("Zone reconnected")
		o.monitor.UpdateHealthy(zoneHealthName(zone), "reconnected")
	case err != nil:
		logger.Warn("Zone disconnected", "error", err)
		o.monitor.UpdateError(zoneHealthName(zone), err, "")
	default:
		logger.Warn("Zone disconnected")
		o.monitor.UpdateUnhealthy(zoneHealthName(zone), "disconnected")
	}
	if metrics != nil {
		metrics.RecordZoneStatus(zone.ID, connected)
		if !connected {
			metrics.RecordError(o.ectx.AgentID, "connection")
		}
	}
}

func (o *Orchestrator) schedule(ctx context.Context, publishers []*publisher.Publisher, subscribers []*subscriber.Subscriber) error {
	cfg := o.ectx.Config
	mode := scheduler.Shared
	if cfg.Isolated() {
		mode = scheduler.Isolated
	}
	opts := []scheduler.Option{scheduler.WithLogger(o.logger), scheduler.WithMetrics(o.ectx.Metrics())}

	pubSched := scheduler.New("publishers", mode, opts...)
	for i, p := range publishers {
		timing := scheduler.Plan(i, o.startDelay, cfg.EventFrequency(p.ID()))
		if err := pubSched.Add(p.ID(), timing, p.Tick); err != nil {
			return err
		}
	}

	subSched := scheduler.New("subscribers", mode, opts...)
	for i, s := range subscribers {
		timing := scheduler.Plan(i, o.startDelay, cfg.SyncFrequency(s.ID()))
		if err := subSched.Add(s.ID(), timing, s.Tick); err != nil {
			return err
		}
	}

	o.mu.Lock()
	o.pubSched = pubSched
	o.subSched = subSched
	o.mu.Unlock()

	if err := pubSched.Start(ctx); err != nil {
		return err
	}
	return subSched.Start(ctx)
}

func (o *Orchestrator) abort(ctx context.Context) {
	if err := o.Stop(context.WithoutCancel(ctx)); err != nil {
		o.logger.Warn("Cleanup after failed start reported errors", "error", err)
	}
}

// Stop shuts the agent down in order: publisher Finalize hooks, publisher
// scheduler, subscriber shutdown (consumers then Finalize), subscriber
// scheduler, and finally every zone connection. Only the first call after
// Start has an effect; later calls and calls before Start return nil.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.initialized || o.stopped {
		o.mu.Unlock()
		o.logger.Debug("Stop ignored, agent not running")
		return nil
	}
	o.stopped = true
	publishers, subscribers := o.publishers, o.subscribers
	pubSched, subSched := o.pubSched, o.subSched
	cancel := o.cancel
	o.mu.Unlock()

	timeout := o.shutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	o.logger.Info("Stopping agent", "timeout", timeout)
	var problems []error

	for _, p := range publishers {
		p.Finalize()
	}
	if pubSched != nil {
		if err := pubSched.Stop(timeout); err != nil {
			problems = append(problems, errors.Wrap(err, "Orchestrator", "Stop", "stop publisher scheduler"))
		}
	}

	var g errgroup.Group
	for _, s := range subscribers {
		g.Go(func() error {
			err := s.Shutdown(timeout)
			o.monitor.UpdateUnhealthy("subscriber:"+s.ID(), "stopped")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		problems = append(problems, errors.Wrap(err, "Orchestrator", "Stop", "shut down subscribers"))
	}

	if subSched != nil {
		if err := subSched.Stop(timeout); err != nil {
			problems = append(problems, errors.Wrap(err, "Orchestrator", "Stop", "stop subscriber scheduler"))
		}
	}

	if err := o.ectx.Transport.Close(ctx); err != nil {
		problems = append(problems, errors.Wrap(err, "Orchestrator", "Stop", "close zones"))
	}
	metrics := o.ectx.Metrics()
	for _, zone := range o.ectx.Zones {
		o.monitor.UpdateUnhealthy(zoneHealthName(zone), "disconnected")
		if metrics != nil {
			metrics.RecordZoneStatus(zone.ID, false)
		}
	}

	if cancel != nil {
		cancel()
	}

	err := stderrors.Join(problems...)
	if err != nil {
		o.logger.Warn("Agent stopped with errors", "error", err)
	} else {
		o.logger.Info("Agent stopped")
	}
	return err
}

// Run starts the agent, blocks until ctx is cancelled, then stops it once.
// A failed start is returned immediately.
func (o *Orchestrator) Run(ctx context.Context, publishers []*publisher.Publisher, subscribers []*subscriber.Subscriber) error {
	if err := o.Start(ctx, publishers, subscribers); err != nil {
		return err
	}

	<-ctx.Done()
	o.logger.Info("Shutdown requested", "cause", context.Cause(ctx))

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.shutdownTimeout)
	defer cancel()
	return o.Stop(stopCtx)
}

// Running reports whether Start succeeded and Stop has not been called
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized && !o.stopped
}
