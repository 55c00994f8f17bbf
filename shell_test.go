package shell

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"testing"

	"github.com/always-cache/spa-shell/cache"
	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"
	serializer "github.com/always-cache/spa-shell/pkg/response-serializer"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

const originURL = "http://movies.example"

const (
	moviesJSON  = `{"movies":[{"id":42,"title":"Alien"}]}`
	offlineHTML = "<html><body><h1>You are offline</h1></body></html>"
	indexHTML   = "<html><body><main></main></body></html>"
	moviesHTML  = "<html><body><main><movie-item></movie-item></main></body></html>"
)

// origin is the application server.
type origin struct {
	router   chi.Router
	asset    atomic.Value
	top      atomic.Value
	requests atomic.Int32
	// blocks /slow.js until closed
	gate chan struct{}
}

func newOrigin() *origin {
	o := &origin{router: chi.NewRouter(), gate: make(chan struct{})}
	o.asset.Store("console.log(1)")
	o.top.Store(`{"top":[1]}`)
	r := o.router
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			o.requests.Add(1)
			next.ServeHTTP(w, r)
		})
	})
	text := func(contentType, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			w.Write([]byte(body))
		}
	}
	r.Get("/api/movies", text("application/json", moviesJSON))
	r.Get("/api/movies/top", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(o.top.Load().(string)))
	})
	r.Get("/api/movies/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})
	r.Post("/api/account/login", text("application/json", `{"success":true}`))
	r.Get("/offline.html", text("text/html", offlineHTML))
	r.Get("/index.html", text("text/html", indexHTML))
	r.Get("/images/logo.svg", text("image/svg+xml", "<svg/>"))
	r.Get("/images/icon.png", text("image/png", "\x89PNG\r\n"))
	r.Get("/movies", text("text/html", moviesHTML))
	r.Get("/movies/{id}", text("text/html", moviesHTML))
	r.Get("/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		w.Write([]byte(o.asset.Load().(string)))
	})
	r.Get("/slow.js", func(w http.ResponseWriter, r *http.Request) {
		<-o.gate
		w.Write([]byte(o.asset.Load().(string)))
	})
	return o
}

// network puts a switch between the worker and the origin.
type network struct {
	fetcher Fetcher
	offline atomic.Bool
}

func (n *network) Fetch(r *http.Request) (*http.Response, error) {
	if n.offline.Load() {
		return nil, zerr.Wrap(ErrNetwork, "offline")
	}
	return n.fetcher.Fetch(r)
}

type fixture struct {
	origin  *origin
	network *network
	storage cache.Storage
	worker  *Worker
}

func newWorker(t *testing.T, storage cache.Storage, fetcher Fetcher, version string, precache []string) *Worker {
	t.Helper()
	scope, _ := url.Parse(originURL)
	logger := zerolog.Nop()
	w, err := NewWorker(WorkerConfig{
		Version:  version,
		Scope:    *scope,
		Storage:  storage,
		Fetcher:  fetcher,
		Precache: precache,
		Logger:   &logger,
	})
	require.NoError(t, err)
	return w
}

// newFixture creates an installed worker with the default precache manifest.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	o := newOrigin()
	n := &network{fetcher: NewHandlerFetcher(o.router)}
	storage := cache.NewMemStorage()
	w := newWorker(t, storage, n, DefaultVersion, DefaultPrecache)
	require.NoError(t, w.Install(context.Background()))
	return &fixture{origin: o, network: n, storage: storage, worker: w}
}

func request(t *testing.T, method, path string, navigate bool) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, originURL+path, nil)
	require.NoError(t, err)
	if navigate {
		req.Header.Set(SecFetchMode, "navigate")
	}
	return req
}

func roundTrip(t *testing.T, rt http.RoundTripper, req *http.Request) (*http.Response, string) {
	t.Helper()
	res, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func storedBody(t *testing.T, c cache.Cache, path string) (string, bool) {
	t.Helper()
	e, ok, err := c.Match(context.Background(), cachekey.Key{Method: http.MethodGet, URL: originURL + path})
	require.NoError(t, err)
	if !ok {
		return "", false
	}
	res, err := serializer.Restore(e.Response, nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	return string(body), true
}

func TestAPIServedFromNetworkAndStored(t *testing.T) {
	f := newFixture(t)

	res, body := roundTrip(t, f.worker, request(t, "GET", "/api/movies", false))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, moviesJSON, body)
	assert.Equal(t, "SPA-Shell; fwd=request; stored", res.Header.Get("Cache-Status"))

	f.worker.Wait()
	stored, ok := storedBody(t, f.worker.currentGeneration(), "/api/movies")
	require.True(t, ok)
	assert.Equal(t, moviesJSON, stored)
}

func TestAPIOfflineReturnsCachedBodyUnchanged(t *testing.T) {
	f := newFixture(t)

	_, online := roundTrip(t, f.worker, request(t, "GET", "/api/movies", false))
	f.worker.Wait()
	f.network.offline.Store(true)

	res, offline := roundTrip(t, f.worker, request(t, "GET", "/api/movies", false))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, online, offline)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.Equal(t, "SPA-Shell; hit; detail=offline", res.Header.Get("Cache-Status"))
}

func TestAPIOfflineWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.network.offline.Store(true)

	res, body := roundTrip(t, f.worker, request(t, "GET", "/api/movies", false))
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, `{"error":"offline"}`, body)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
}

func TestAPIErrorStatusCountsAsNetworkSuccess(t *testing.T) {
	f := newFixture(t)

	res, _ := roundTrip(t, f.worker, request(t, "GET", "/api/movies/missing", false))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	f.worker.Wait()

	f.network.offline.Store(true)
	res, _ = roundTrip(t, f.worker, request(t, "GET", "/api/movies/missing", false))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestAPIMutationsPassThrough(t *testing.T) {
	f := newFixture(t)

	res, body := roundTrip(t, f.worker, request(t, "POST", "/api/account/login", false))
	assert.Equal(t, `{"success":true}`, body)
	assert.Equal(t, "SPA-Shell; fwd=method", res.Header.Get("Cache-Status"))
	f.worker.Wait()

	keys, err := f.worker.currentGeneration().Keys(context.Background())
	require.NoError(t, err)
	for _, key := range keys {
		assert.NotEqual(t, http.MethodPost, key.Method)
	}

	f.network.offline.Store(true)
	_, err = f.worker.RoundTrip(request(t, "POST", "/api/account/login", false))
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestAPILastNetworkResponseWins(t *testing.T) {
	f := newFixture(t)

	f.origin.top.Store(`{"top":[1]}`)
	roundTrip(t, f.worker, request(t, "GET", "/api/movies/top", false))
	f.origin.top.Store(`{"top":[2]}`)
	roundTrip(t, f.worker, request(t, "GET", "/api/movies/top", false))
	f.worker.Wait()

	stored, ok := storedBody(t, f.worker.currentGeneration(), "/api/movies/top")
	require.True(t, ok)
	assert.Equal(t, `{"top":[2]}`, stored)
}

func TestAPIConcurrentWritesRace(t *testing.T) {
	f := newFixture(t)
	bodies := []string{`{"top":[1]}`, `{"top":[2]}`, `{"top":[3]}`}

	done := make(chan struct{})
	for _, b := range bodies {
		w := withNetworkBody(f.worker, b)
		req := request(t, "GET", "/api/movies/top", false)
		go func() {
			defer func() { done <- struct{}{} }()
			if res, err := w.RoundTrip(req); err == nil {
				res.Body.Close()
			}
		}()
	}
	for range bodies {
		<-done
	}
	f.worker.Wait()

	// writes are not serialized: any of the responses may have been stored last,
	// but exactly one entry is left and it is one of them
	stored, ok := storedBody(t, f.worker.currentGeneration(), "/api/movies/top")
	require.True(t, ok)
	assert.Contains(t, bodies, stored)
	keys, err := f.worker.currentGeneration().Keys(context.Background())
	require.NoError(t, err)
	count := 0
	for _, key := range keys {
		if key.URL == originURL+"/api/movies/top" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

// withNetworkBody returns a worker sharing w's generation whose network always answers with body.
func withNetworkBody(w *Worker, body string) *Worker {
	clone := *w
	clone.fetcher = FetcherFunc(func(r *http.Request) (*http.Response, error) {
		res := newResponse(r, http.StatusOK, []byte(body))
		res.Header.Set("Content-Type", "application/json")
		return res, nil
	})
	return &clone
}

func TestNavigationOfflineServesOfflineDocument(t *testing.T) {
	f := newFixture(t)
	f.network.offline.Store(true)

	res, body := roundTrip(t, f.worker, request(t, "GET", "/movies/42", true))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, offlineHTML, body)
	assert.Equal(t, "text/html", res.Header.Get("Content-Type"))
}

func TestNavigationOfflineServesCachedPage(t *testing.T) {
	f := newFixture(t)

	roundTrip(t, f.worker, request(t, "GET", "/movies?q=alien", true))
	f.worker.Wait()
	f.network.offline.Store(true)

	_, body := roundTrip(t, f.worker, request(t, "GET", "/movies?q=alien", true))
	assert.Equal(t, moviesHTML, body)
	_, body = roundTrip(t, f.worker, request(t, "GET", "/movies?q=other", true))
	assert.Equal(t, offlineHTML, body)
}

func TestNavigationOfflineWithoutOfflineDocument(t *testing.T) {
	o := newOrigin()
	n := &network{fetcher: NewHandlerFetcher(o.router)}
	w := newWorker(t, cache.NewMemStorage(), n, DefaultVersion, nil)
	require.NoError(t, w.Install(context.Background()))
	n.offline.Store(true)

	res, body := roundTrip(t, w, request(t, "GET", "/movies", true))
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "Network error", body)
}

func TestAssetStaleWhileRevalidate(t *testing.T) {
	f := newFixture(t)

	f.origin.asset.Store("v1")
	res, body := roundTrip(t, f.worker, request(t, "GET", "/app.js", false))
	assert.Equal(t, "v1", body)
	assert.Equal(t, "SPA-Shell; fwd=uri-miss; stored", res.Header.Get("Cache-Status"))
	f.worker.Wait()

	f.origin.asset.Store("v2")
	res, body = roundTrip(t, f.worker, request(t, "GET", "/app.js", false))
	assert.Equal(t, "v1", body)
	assert.Equal(t, "SPA-Shell; hit; detail=revalidate", res.Header.Get("Cache-Status"))
	f.worker.Wait()

	_, body = roundTrip(t, f.worker, request(t, "GET", "/app.js", false))
	assert.Equal(t, "v2", body)
}

func TestAssetCachedEntryDoesNotWaitForNetwork(t *testing.T) {
	f := newFixture(t)

	// prime the cache
	close(f.origin.gate)
	f.origin.asset.Store("v1")
	roundTrip(t, f.worker, request(t, "GET", "/slow.js", false))
	f.worker.Wait()

	f.origin.gate = make(chan struct{})
	f.origin.asset.Store("v2")
	// the revalidation blocks on the gate, the cached response must not
	_, body := roundTrip(t, f.worker, request(t, "GET", "/slow.js", false))
	assert.Equal(t, "v1", body)

	close(f.origin.gate)
	f.worker.Wait()
	stored, ok := storedBody(t, f.worker.currentGeneration(), "/slow.js")
	require.True(t, ok)
	assert.Equal(t, "v2", stored)
}

func TestAssetOfflineWithCache(t *testing.T) {
	f := newFixture(t)

	_, body := roundTrip(t, f.worker, request(t, "GET", "/images/logo.svg", false))
	assert.Equal(t, "<svg/>", body)
	f.network.offline.Store(true)

	_, body = roundTrip(t, f.worker, request(t, "GET", "/images/logo.svg", false))
	assert.Equal(t, "<svg/>", body)
	f.worker.Wait()
	stored, ok := storedBody(t, f.worker.currentGeneration(), "/images/logo.svg")
	require.True(t, ok)
	assert.Equal(t, "<svg/>", stored)
}

func TestAssetOfflineWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.network.offline.Store(true)

	res, body := roundTrip(t, f.worker, request(t, "GET", "/app.js", false))
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "Network error", body)
}

func TestUnsupportedSchemePassesThrough(t *testing.T) {
	f := newFixture(t)
	var seen *http.Request
	f.worker.fetcher = FetcherFunc(func(r *http.Request) (*http.Response, error) {
		seen = r
		return newResponse(r, http.StatusOK, nil), nil
	})

	req, err := http.NewRequest("GET", "chrome-extension://abc/script.js", nil)
	require.NoError(t, err)
	res, err := f.worker.RoundTrip(req)
	require.NoError(t, err)
	assert.Same(t, req, seen)
	assert.Equal(t, "SPA-Shell; fwd=bypass", res.Header.Get("Cache-Status"))
}

func TestWorkerBeforeInstallDoesNotStore(t *testing.T) {
	o := newOrigin()
	storage := cache.NewMemStorage()
	w := newWorker(t, storage, NewHandlerFetcher(o.router), DefaultVersion, nil)

	res, _ := roundTrip(t, w, request(t, "GET", "/api/movies", false))
	assert.Equal(t, "SPA-Shell; fwd=request", res.Header.Get("Cache-Status"))
	w.Wait()
	names, err := storage.Names(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRefreshAll(t *testing.T) {
	f := newFixture(t)
	f.origin.asset.Store("v1")
	roundTrip(t, f.worker, request(t, "GET", "/app.js", false))
	f.worker.Wait()

	f.origin.asset.Store("v2")
	updated, err := f.worker.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultPrecache)+1, updated)
	stored, _ := storedBody(t, f.worker.currentGeneration(), "/app.js")
	assert.Equal(t, "v2", stored)
}
