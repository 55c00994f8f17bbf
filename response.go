package shell

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"
	serializer "github.com/always-cache/spa-shell/pkg/response-serializer"

	"github.com/always-cache/spa-shell/cache"
)

// OfflineBody is the payload of the synthesized API response.
type OfflineBody struct {
	Error string `json:"error"`
}

var offlineJSON, _ = json.Marshal(OfflineBody{Error: "offline"})

// offlineResponse is returned for API requests when neither network nor cache can answer.
func offlineResponse(r *http.Request) *http.Response {
	res := newResponse(r, http.StatusServiceUnavailable, offlineJSON)
	res.Header.Set("Content-Type", "application/json")
	return res
}

// networkErrorResponse is the minimal response for requests nothing else can answer.
func networkErrorResponse(r *http.Request) *http.Response {
	res := newResponse(r, http.StatusServiceUnavailable, []byte("Network error"))
	res.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return res
}

func newResponse(r *http.Request, status int, body []byte) *http.Response {
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Length": []string{strconv.Itoa(len(body))}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}
}

// storedResponse restores the snapshot of a cache entry as a response to r.
func (w *Worker) storedResponse(r *http.Request, e cache.Entry) (*http.Response, bool) {
	res, err := serializer.Restore(e.Response, r)
	if err != nil {
		w.log.Error().Err(err).Str("key", e.Key.String()).Msg("Could not restore stored response")
		return nil, false
	}
	return res, true
}

// match looks up the key in every generation.
// Store failures are treated as an empty cache.
func (w *Worker) match(r *http.Request, key cachekey.Key) (*http.Response, bool) {
	e, ok, err := w.storage.Match(r.Context(), key)
	if err != nil {
		w.log.Warn().Err(err).Str("key", key.String()).Msg("Cache lookup failed, treating cache as empty")
		return nil, false
	} else if !ok {
		return nil, false
	}
	return w.storedResponse(r, e)
}
