package shell

import (
	"net/http"

	"github.com/always-cache/spa-shell/cache"
	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"
)

// Request outcomes (metrics label values)
const (
	outcomeNetwork         = "network"
	outcomeCache           = "cache"
	outcomeOfflineDocument = "offline-document"
	outcomeSynthesized     = "synthesized"
	outcomePassThrough     = "passthrough"
	outcomeError           = "error"
)

// networkFirst serves API and navigation requests.
// The network response is returned (and stored) whenever one is obtained;
// otherwise the request is answered from any generation, and as last resort
// with the offline document (navigations) or the offline error (API).
func (w *Worker) networkFirst(r *http.Request, class Class) (*http.Response, CacheStatus, string) {
	cs := CacheStatus{}
	key := cachekey.FromRequest(r)

	res, snapshot, err := w.fetch(r)
	if err == nil {
		cs.Forward(CacheStatusFwdRequest)
		if w.storeAsync(key, snapshot) {
			cs.Stored()
		}
		return res, cs, outcomeNetwork
	}
	w.log.Warn().Err(err).Str("url", r.URL.String()).Msg("Network failed, falling back to cache")

	if res, ok := w.match(r, key); ok {
		cs.Hit()
		cs.Detail(DetailOffline)
		return res, cs, outcomeCache
	}

	cs.Forward(CacheStatusFwdUriMiss)
	cs.Detail(DetailOffline)
	if class == ClassNavigation {
		if res, ok := w.match(r, w.offlineDocumentKey(r)); ok {
			cs.Hit()
			cs.Detail(DetailOffline)
			return res, cs, outcomeOfflineDocument
		}
		w.log.Error().Str("url", r.URL.String()).Msg("Offline document not cached")
		return networkErrorResponse(r), cs, outcomeSynthesized
	}
	return offlineResponse(r), cs, outcomeSynthesized
}

// staleWhileRevalidate serves static assets.
// A cached entry is returned at once while the network refreshes it in the background.
func (w *Worker) staleWhileRevalidate(r *http.Request) (*http.Response, CacheStatus, string) {
	cs := CacheStatus{}
	key := cachekey.FromRequest(r)

	if e, ok := w.matchCurrent(r, key); ok {
		if res, ok := w.storedResponse(r, e); ok {
			w.revalidate(r, key)
			cs.Hit()
			cs.Detail(DetailRevalidate)
			return res, cs, outcomeCache
		}
	}

	cs.Forward(CacheStatusFwdUriMiss)
	res, snapshot, err := w.fetch(r)
	if err != nil {
		w.log.Warn().Err(err).Str("url", r.URL.String()).Msg("Network failed and asset not cached")
		cs.Detail(DetailOffline)
		return networkErrorResponse(r), cs, outcomeSynthesized
	}
	if w.storeAsync(key, snapshot) {
		cs.Stored()
	}
	return res, cs, outcomeNetwork
}

// matchCurrent looks up the key in the worker's own generation only.
func (w *Worker) matchCurrent(r *http.Request, key cachekey.Key) (cache.Entry, bool) {
	generation := w.currentGeneration()
	if generation == nil {
		return cache.Entry{}, false
	}
	e, ok, err := generation.Match(r.Context(), key)
	if err != nil {
		w.log.Warn().Err(err).Str("key", key.String()).Msg("Cache lookup failed, treating cache as empty")
		return cache.Entry{}, false
	}
	return e, ok
}

// offlineDocumentKey resolves the offline document against the request origin.
func (w *Worker) offlineDocumentKey(r *http.Request) cachekey.Key {
	return cachekey.ForURL(r.URL.ResolveReference(w.offlineDocument))
}
