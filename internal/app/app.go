// Package app wires a registry, its projection and its notification
// consumers from process configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mash-protocol/objreg/internal/config"
	"github.com/mash-protocol/objreg/pkg/kobject"
	objlog "github.com/mash-protocol/objreg/pkg/log"
	"github.com/mash-protocol/objreg/pkg/metrics"
	"github.com/mash-protocol/objreg/pkg/persistence"
	"github.com/mash-protocol/objreg/pkg/sysfs"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Options carries what the configuration file cannot.
type Options struct {
	// Events receives one line per delivered notification. Nil disables
	// console echo.
	Events io.Writer

	// Logger for operational logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// App is a running registry with its collaborators.
type App struct {
	Config   config.Config
	Registry *kobject.Registry
	FS       *sysfs.FS
	Gatherer prometheus.Gatherer

	logger  *slog.Logger
	fileLog *objlog.FileLogger
	store   *persistence.StateStore
	server  *http.Server
	closed  bool
}

// New builds an App. The notification sequence continues from the value in
// the state file when one is configured.
func New(cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	a := &App{
		Config: cfg,
		FS:     sysfs.New(),
		logger: logger,
	}

	var last uint64
	if cfg.State.File != "" {
		a.store = persistence.NewStateStore(cfg.State.File)
		var err error
		if last, err = a.store.LastSeqnum(); err != nil {
			return nil, fmt.Errorf("loading state: %w", err)
		}
		logger.Debug("restored sequence number", "seqnum", last, "file", cfg.State.File)
	}

	var eventLog objlog.Logger = objlog.NewSlogAdapter(logger)
	if cfg.Log.File != "" {
		fl, err := objlog.NewFileLogger(cfg.Log.File)
		if err != nil {
			return nil, fmt.Errorf("opening event log: %w", err)
		}
		a.fileLog = fl
		eventLog = objlog.NewMultiLogger(fl, objlog.NewSlogAdapter(logger))
	}

	promReg := prometheus.NewRegistry()
	a.Gatherer = promReg
	m := metrics.New(promReg)

	id := uuid.New()
	deliverers := uevent.Multi{objlog.NewDeliverer(eventLog, id.String())}
	if cfg.Helper.Path != "" {
		h, err := uevent.NewHelper(cfg.Helper.Path)
		if err != nil {
			a.closeLog()
			return nil, err
		}
		deliverers = append(deliverers, h)
	}
	if opts.Events != nil {
		deliverers = append(deliverers, Echo(opts.Events))
	}

	notifier := kobject.NewNotifier(kobject.NotifierConfig{
		Sequencer:  uevent.NewSequencer(last),
		Deliverer:  deliverers,
		Async:      cfg.Delivery.Async,
		Timeout:    cfg.Helper.Timeout,
		Limits:     cfg.UeventLimits(),
		RegistryID: id.String(),
		Logger:     logger,
		EventLog:   eventLog,
		Metrics:    m,
	})

	a.Registry = kobject.New(kobject.Config{
		ID:         id,
		Projection: a.FS,
		Notifier:   notifier,
		MaxNodes:   cfg.Registry.MaxNodes,
		Logger:     logger,
		EventLog:   eventLog,
		Metrics:    m,
	})
	a.FS.EnableUeventTrigger(a.Registry)

	logger.Info("registry started",
		"id", id.String(),
		"async", cfg.Delivery.Async,
		"helper", cfg.Helper.Path,
		"event_log", cfg.Log.File)
	return a, nil
}

// Echo returns a Deliverer printing "SEQNUM ACTION DEVPATH" and the
// remaining variables to w.
func Echo(w io.Writer) uevent.Deliverer {
	return uevent.DelivererFunc(func(_ context.Context, msg uevent.Message) error {
		fmt.Fprintf(w, "%d %s %s\n", msg.Seqnum, msg.Action, msg.DevPath())
		for _, kv := range msg.Vars {
			fmt.Fprintf(w, "    %s\n", kv)
		}
		return nil
	})
}

// ServeMetrics starts serving /metrics on the configured address. It does
// nothing when no address is configured.
func (a *App) ServeMetrics() (net.Addr, error) {
	if a.Config.Metrics.Listen == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", a.Config.Metrics.Listen)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Gatherer, promhttp.HandlerOpts{}))
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// SaveState writes the sequence number and tree snapshot to the state
// file, if one is configured.
func (a *App) SaveState() error {
	if a.store == nil {
		return nil
	}
	a.Registry.Notifier().Flush()
	return a.store.Save(persistence.Snapshot(a.Registry))
}

// Close drains pending deliveries, saves state and closes the event log.
// The registry's nodes are left as they are.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, a.server.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, a.Registry.Notifier().Close())
	errs = append(errs, a.SaveState())
	errs = append(errs, a.closeLog())
	return errors.Join(errs...)
}

func (a *App) closeLog() error {
	if a.fileLog == nil {
		return nil
	}
	return a.fileLog.Close()
}
