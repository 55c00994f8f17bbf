package shell

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/always-cache/spa-shell/cache"
	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// State of a worker in its lifecycle:
//
//	parsed → installing → installed → activating → activated
//
// A worker whose install fails, or that is replaced, becomes redundant.
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return "unknown"
}

var ErrInstallFailed = zerr.New("install failed")

// Install fetches the precache manifest and stores it in the worker's generation.
// Either every manifest entry is stored or none is: a transport failure or a
// non-2xx response for any entry aborts the install before the generation is opened.
func (w *Worker) Install(ctx context.Context) error {
	entries := make([]cache.Entry, len(w.precache))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range w.precache {
		g.Go(func() error {
			entry, err := w.precacheEntry(gctx, path)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	generation, err := w.storage.Open(ctx, w.version)
	if err != nil {
		return zerr.Wrap(err, ErrInstallFailed.Error())
	}
	if err := generation.PutAll(ctx, entries); err != nil {
		return zerr.Wrap(err, ErrInstallFailed.Error())
	}
	w.mutex.Lock()
	w.generation = generation
	w.mutex.Unlock()
	w.log.Info().Int("entries", len(entries)).Msg("Precached app shell")
	return nil
}

func (w *Worker) precacheEntry(ctx context.Context, path string) (cache.Entry, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return cache.Entry{}, zerr.With(zerr.Wrap(ErrInstallFailed, err.Error()), "path", path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.scope.ResolveReference(ref).String(), nil)
	if err != nil {
		return cache.Entry{}, zerr.With(zerr.Wrap(ErrInstallFailed, err.Error()), "path", path)
	}
	res, snapshot, err := w.fetch(req)
	if err != nil {
		return cache.Entry{}, zerr.With(zerr.Wrap(ErrInstallFailed, err.Error()), "path", path)
	}
	res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return cache.Entry{}, zerr.With(zerr.With(zerr.Wrap(ErrInstallFailed, "bad response status"), "path", path), "status", res.StatusCode)
	}
	return cache.Entry{
		Key:      cachekey.FromRequest(req),
		StoredAt: time.Now(),
		Response: snapshot,
	}, nil
}

// Activate deletes every generation other than the worker's own.
// Deletion failures are logged and skipped; the remaining generations are
// retried on the next activation.
func (w *Worker) Activate(ctx context.Context) error {
	names, err := w.storage.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == w.version {
			continue
		}
		if deleted, err := w.storage.Delete(ctx, name); err != nil {
			w.log.Error().Err(err).Str("generation", name).Msg("Could not delete old generation")
		} else if deleted {
			GenerationsDeleted.Inc()
			w.log.Info().Str("generation", name).Msg("Deleted old generation")
		}
	}
	return nil
}

type RegistrationConfig struct {
	// URL of the origin server.
	// Origins with paths are not supported.
	Origin url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	OriginHost string
	// Network primitive used while no worker is active.
	// Defaults to an HTTP fetcher for the origin.
	Fetcher Fetcher
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Registration owns the worker lifecycle and routes traffic to the active worker.
// Exactly one worker is active at a time.
type Registration struct {
	origin  url.URL
	fetcher Fetcher
	log     zerolog.Logger
	// serializes lifecycle transitions
	mutex  *sync.Mutex
	active atomic.Pointer[Worker]
}

func NewRegistration(config RegistrationConfig) *Registration {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = log.Logger
	} else {
		logger = *config.Logger
	}
	if config.Fetcher == nil {
		config.Fetcher = NewHTTPFetcher(config.Origin, config.OriginHost)
	}
	return &Registration{
		origin:  config.Origin,
		fetcher: config.Fetcher,
		log:     logger.With().Str("origin", config.Origin.String()).Logger(),
		mutex:   &sync.Mutex{},
	}
}

// Register installs the worker and, as it skips waiting, activates it right away.
// On install failure the previously active worker stays in control.
func (reg *Registration) Register(ctx context.Context, w *Worker) error {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	w.setState(StateInstalling)
	if err := w.Install(ctx); err != nil {
		w.setState(StateRedundant)
		reg.log.Error().Err(err).Str("version", w.Version()).Msg("Worker install failed")
		return err
	}
	w.setState(StateInstalled)

	w.setState(StateActivating)
	if err := w.Activate(ctx); err != nil {
		reg.log.Error().Err(err).Str("version", w.Version()).Msg("Could not clean up old generations")
	}
	// claim
	previous := reg.active.Swap(w)
	w.setState(StateActivated)
	if previous != nil && previous != w {
		previous.setState(StateRedundant)
	}
	reg.log.Info().Str("version", w.Version()).Msg("Worker activated")
	return nil
}

// Active returns the worker in control, if any.
func (reg *Registration) Active() *Worker {
	return reg.active.Load()
}

// RoundTrip implements http.RoundTripper, delegating to the active worker.
// Without an active worker requests go straight to the network.
func (reg *Registration) RoundTrip(r *http.Request) (*http.Response, error) {
	if w := reg.active.Load(); w != nil {
		return w.RoundTrip(r)
	}
	return reg.fetcher.Fetch(r)
}

// Wait waits for the background work of the active worker.
func (reg *Registration) Wait() {
	if w := reg.active.Load(); w != nil {
		w.Wait()
	}
}
