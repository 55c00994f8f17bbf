package shell

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/always-cache/spa-shell/cache"
	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"
	serializer "github.com/always-cache/spa-shell/pkg/response-serializer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.trai.ch/zerr"
)

type WorkerConfig struct {
	// Name of the cache generation owned by the worker.
	Version string
	// Origin the precache manifest and the offline document are resolved against.
	Scope url.URL
	// Storage for cache generations.
	Storage cache.Storage
	// Network primitive.
	Fetcher Fetcher
	// Path prefix of data endpoints.
	APIPrefix string
	// Path of the precached offline document.
	OfflineDocument string
	// Paths fetched and stored on install.
	Precache []string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Worker applies the caching strategies to requests.
// It implements http.RoundTripper.
type Worker struct {
	version         string
	scope           url.URL
	storage         cache.Storage
	fetcher         Fetcher
	apiPrefix       string
	offlineDocument *url.URL
	precache        []string
	log             zerolog.Logger

	mutex      *sync.RWMutex
	state      State
	generation cache.Cache

	// fire-and-forget writes and revalidations
	pending *sync.WaitGroup
}

// NewWorker creates a worker in the parsed state.
// It does not handle requests from its generation until it has been installed.
func NewWorker(config WorkerConfig) (*Worker, error) {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = log.Logger
	} else {
		logger = *config.Logger
	}
	if config.Version == "" {
		config.Version = DefaultVersion
	}
	if config.APIPrefix == "" {
		config.APIPrefix = DefaultAPIPrefix
	}
	if config.OfflineDocument == "" {
		config.OfflineDocument = DefaultOfflineDocument
	}
	if config.Storage == nil || config.Fetcher == nil {
		return nil, zerr.Wrap(ErrInvalidConfig, "worker needs storage and fetcher")
	}
	offline, err := url.Parse(config.OfflineDocument)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, ErrInvalidConfig.Error()), "offlineDocument", config.OfflineDocument)
	}
	return &Worker{
		version:         config.Version,
		scope:           config.Scope,
		storage:         config.Storage,
		fetcher:         config.Fetcher,
		apiPrefix:       config.APIPrefix,
		offlineDocument: offline,
		precache:        append([]string(nil), config.Precache...),
		log:             logger.With().Str("version", config.Version).Logger(),
		mutex:           &sync.RWMutex{},
		state:           StateParsed,
		pending:         &sync.WaitGroup{},
	}, nil
}

func (w *Worker) Version() string {
	return w.version
}

func (w *Worker) State() State {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.state
}

func (w *Worker) setState(state State) {
	w.mutex.Lock()
	w.state = state
	w.mutex.Unlock()
	LifecycleTransitions.WithLabelValues(state.String()).Inc()
	w.log.Debug().Str("state", state.String()).Msg("Worker state changed")
}

func (w *Worker) currentGeneration() cache.Cache {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.generation
}

// Wait blocks until all cache writes and revalidations started so far have finished.
func (w *Worker) Wait() {
	w.pending.Wait()
}

// RoundTrip implements http.RoundTripper.
// Only pass-through requests return errors; every other branch terminates in a response.
func (w *Worker) RoundTrip(r *http.Request) (*http.Response, error) {
	class := Classify(r, w.apiPrefix)
	w.log.Trace().Str("class", class.String()).Msgf("handling %s %s", r.Method, r.URL.String())

	var (
		res     *http.Response
		cs      CacheStatus
		outcome string
	)
	switch class {
	case ClassAPI, ClassNavigation:
		res, cs, outcome = w.networkFirst(r, class)
	case ClassAsset:
		res, cs, outcome = w.staleWhileRevalidate(r)
	default:
		var err error
		if res, err = w.fetcher.Fetch(r); err != nil {
			RequestsTotal.WithLabelValues(class.String(), outcomeError).Inc()
			return nil, err
		}
		if r.Method != "" && r.Method != http.MethodGet {
			cs.Forward(CacheStatusFwdMethod)
		} else {
			cs.Forward(CacheStatusFwdBypass)
		}
		outcome = outcomePassThrough
	}

	res.Header.Add("Cache-Status", cs.String())
	RequestsTotal.WithLabelValues(class.String(), outcome).Inc()
	w.logRequest(r, class, res, cs)
	return res, nil
}

// fetch gets the response from the network and snapshots it for storing.
// A response whose body cannot be read counts as a network failure.
func (w *Worker) fetch(r *http.Request) (*http.Response, []byte, error) {
	res, err := w.fetcher.Fetch(r)
	if err != nil {
		return nil, nil, err
	}
	snapshot, err := serializer.Snapshot(res)
	if err != nil {
		return nil, nil, err
	}
	return res, snapshot, nil
}

// storeAsync writes the snapshot to the current generation in the background.
// Concurrent writes for the same key race: the last one to finish wins.
func (w *Worker) storeAsync(key cachekey.Key, snapshot []byte) bool {
	generation := w.currentGeneration()
	if generation == nil {
		w.log.Debug().Str("key", key.String()).Msg("Worker not installed, not storing")
		return false
	}
	entry := cache.Entry{
		Key:      key,
		StoredAt: time.Now(),
		Response: snapshot,
	}
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		w.log.Trace().Str("key", key.String()).Msg("Writing to cache")
		if err := generation.Put(context.Background(), entry); err != nil {
			w.log.Error().Err(err).Str("key", key.String()).Msg("Could not write to cache")
		}
	}()
	return true
}

func (w *Worker) logRequest(r *http.Request, class Class, res *http.Response, cs CacheStatus) {
	isHit := 0
	if cs.IsHit() {
		isHit = 1
	}
	w.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("class", class.String()).
		Int("status", res.StatusCode).
		Str("cacheStatus", cs.String()).
		Int("hit", isHit).
		Msg("Sending response to client")
}
