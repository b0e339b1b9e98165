// Package app wires the sync client together from a loaded configuration.
//
// Every long-lived component (schedule model, pairing controller, config
// sync, event reporter, poller, status hub) is constructed once here and
// passed explicitly; nothing is kept in package-level state.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurora-dispenser/aurora-sync/internal/backend"
	"github.com/aurora-dispenser/aurora-sync/internal/config"
	"github.com/aurora-dispenser/aurora-sync/internal/credential"
	"github.com/aurora-dispenser/aurora-sync/internal/discovery"
	"github.com/aurora-dispenser/aurora-sync/internal/link"
	"github.com/aurora-dispenser/aurora-sync/internal/logging"
	"github.com/aurora-dispenser/aurora-sync/internal/poller"
	"github.com/aurora-dispenser/aurora-sync/internal/schedule"
	"github.com/aurora-dispenser/aurora-sync/internal/statusfeed"
)

// shutdownTimeout bounds stopping the status feed.
const shutdownTimeout = 5 * time.Second

// Deps overrides components New would otherwise build from the config.
type Deps struct {
	HTTP  backend.Doer
	Store credential.Store
	Link  link.Link
}

// App is one running sync client.
type App struct {
	cfg       *config.Config
	endpoints backend.Endpoints
	store     credential.Store
	link      link.Link

	model   *schedule.Model
	pairing *backend.Pairing
	sync    *backend.ConfigSync
	events  *backend.EventReporter
	poller  *poller.Poller
	hub     *statusfeed.Hub

	now func() time.Time

	publishMu sync.Mutex
}

// New builds an App. When backend.base_url is empty and discovery is enabled
// the backend is located over mDNS first.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*App, error) {
	baseURL, prefix, err := resolveBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	endpoints, err := backend.NewEndpoints(baseURL, prefix, cfg.Device.Serial)
	if err != nil {
		return nil, err
	}

	doer := deps.HTTP
	if doer == nil {
		httpClient, err := backend.NewHTTPClient(cfg.Backend.Timeout, cfg.Backend.RootCAFile)
		if err != nil {
			return nil, err
		}
		doer = httpClient
	}

	store := deps.Store
	if store == nil {
		if cfg.Credential.Path != "" && cfg.Credential.Backend != credential.BackendKeyring {
			if err := os.MkdirAll(filepath.Dir(cfg.Credential.Path), 0700); err != nil {
				return nil, fmt.Errorf("failed to create credential directory: %w", err)
			}
		}
		store, err = credential.Open(cfg.CredentialOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
	}

	lnk := deps.Link
	if lnk == nil {
		iface := link.NewInterface(cfg.Link.Interface)
		if err := iface.Check(); err != nil {
			_ = closeStore(store)
			return nil, err
		}
		lnk = iface
	}

	client := backend.NewClient(endpoints, doer)
	model := schedule.NewModel()
	pairing := backend.NewPairing(client, store)
	configSync := backend.NewConfigSync(client, pairing, lnk)

	a := &App{
		cfg:       cfg,
		endpoints: endpoints,
		store:     store,
		link:      lnk,
		model:     model,
		pairing:   pairing,
		sync:      configSync,
		events:    backend.NewEventReporter(client, pairing),
		poller: poller.New(configSync, model, lnk, poller.Options{
			Interval: cfg.Poll.Interval,
			Tick:     cfg.Poll.Tick,
		}),
		hub: statusfeed.NewHub(),
		now: time.Now,
	}

	pairing.OnStateChange(func(state backend.PairingState) {
		logging.Info("Pairing state changed", zap.String("state", state.String()))
		a.publish()
	})
	a.poller.OnResult(func(poller.Result) { a.publish() })

	return a, nil
}

func resolveBackend(ctx context.Context, cfg *config.Config) (string, string, error) {
	if cfg.Backend.BaseURL != "" || !cfg.Backend.Discover {
		return cfg.Backend.BaseURL, cfg.Backend.APIPrefix, nil
	}

	logging.Info("Discovering backend via mDNS", zap.String("service", discovery.ServiceType))
	svc, err := discovery.NewScanner().First(ctx)
	if err != nil {
		return "", "", fmt.Errorf("backend discovery failed: %w", err)
	}
	logging.Info("Backend discovered",
		zap.String("instance", svc.Instance),
		zap.String("base_url", svc.BaseURL()),
		zap.String("api_prefix", svc.APIPrefix),
	)
	return svc.BaseURL(), svc.APIPrefix, nil
}

// Model returns the applied schedule.
func (a *App) Model() *schedule.Model { return a.model }

// Pairing returns the pairing controller.
func (a *App) Pairing() *backend.Pairing { return a.pairing }

// Endpoints returns the resolved backend endpoints.
func (a *App) Endpoints() backend.Endpoints { return a.endpoints }

// Hub returns the status hub.
func (a *App) Hub() *statusfeed.Hub { return a.hub }

// Poller returns the poll loop.
func (a *App) Poller() *poller.Poller { return a.poller }

// Pair ensures a device secret is available.
func (a *App) Pair(ctx context.Context) error {
	return a.pairing.EnsurePaired(ctx)
}

// Fetch performs one authenticated configuration fetch into the model.
func (a *App) Fetch(ctx context.Context) error {
	return a.sync.FetchConfig(ctx, a.model)
}

// PostEvent reports one dispensing event.
func (a *App) PostEvent(ctx context.Context, ev backend.Event) error {
	return a.events.PostEvent(ctx, ev)
}

// Status assembles the current status snapshot.
func (a *App) Status() statusfeed.Status {
	now := a.now()
	snap := a.model.Snapshot()
	stats := a.poller.Stats()

	st := statusfeed.Status{
		Serial:          a.endpoints.Serial(),
		Backend:         a.endpoints.Base(),
		Pairing:         a.pairing.State().String(),
		LinkUp:          a.link.Connected(),
		ScheduleVersion: snap.Version,
		Containers:      len(snap.Containers),
		Entries:         snap.EntryCount(),
		Schedule:        snap.Lines(),
		Cycles:          stats.Cycles,
		Failures:        stats.Failed,
		PollInterval:    a.poller.Interval().String(),
		UpdatedAt:       now,
	}

	if due, ok := snap.NextDue(now); ok {
		st.NextDue = &statusfeed.NextDue{
			Slot:    due.Slot,
			Pill:    due.PillName,
			EntryID: due.Entry.ID,
			At:      due.At,
		}
	}

	if stats.Cycles > 0 {
		st.LastPoll = &statusfeed.Poll{
			CycleID: stats.Last.CycleID,
			Outcome: string(stats.Last.Outcome),
			At:      stats.Last.At,
		}
		if stats.Last.Err != nil {
			st.LastPoll.Error = backend.ShortMessage(stats.Last.Err)
		}
	}

	return st
}

func (a *App) publish() {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()
	a.hub.Publish(a.Status())
}

// Run polls until ctx is cancelled, serving the status feed and watching the
// credential file when configured.
func (a *App) Run(ctx context.Context) error {
	logging.Info("Starting sync client",
		zap.String("serial", a.endpoints.Serial()),
		zap.String("backend", a.endpoints.Base()),
		zap.Duration("poll_interval", a.poller.Interval()),
		zap.String("credential_backend", a.cfg.Credential.Backend),
	)

	var feed *statusfeed.Server
	if a.cfg.Status.Listen != "" {
		feed = statusfeed.NewServer(a.cfg.Status.Listen, a.hub)
		if err := feed.Start(); err != nil {
			return err
		}
	}

	var watcher *credential.Watcher
	if a.cfg.Credential.Watch {
		w, err := a.watchCredentials()
		if err != nil {
			logging.Warn("Credential watch disabled", zap.Error(err))
		} else {
			watcher = w
		}
	}

	a.publish()
	err := a.poller.Run(ctx)

	if watcher != nil {
		watcher.Stop()
	}
	if feed != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := feed.Shutdown(shutdownCtx); shutdownErr != nil {
			logging.Warn("Status feed shutdown failed", zap.Error(shutdownErr))
		}
	}
	return err
}

func (a *App) watchCredentials() (*credential.Watcher, error) {
	if a.cfg.Credential.Backend != credential.BackendFile {
		return nil, fmt.Errorf("credential.watch needs the file backend, not %q", a.cfg.Credential.Backend)
	}

	w, err := credential.NewWatcher(a.cfg.Credential.Path, func() {
		if err := a.pairing.Reload(); err != nil {
			logging.Warn("Credential reload failed", zap.Error(err))
			return
		}
		logging.Info("Credential file changed; secret reloaded",
			zap.String("state", a.pairing.State().String()),
		)
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// Close releases the credential store.
func (a *App) Close() error {
	return closeStore(a.store)
}

func closeStore(store credential.Store) error {
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("failed to close credential store: %w", err)
		}
	}
	return nil
}
