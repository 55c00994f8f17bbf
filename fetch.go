package shell

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	tee "github.com/always-cache/spa-shell/pkg/response-writer-tee"

	"go.trai.ch/zerr"
)

// ErrNetwork is a transport level failure: no response was obtained.
// Any response, whatever its status, is not an ErrNetwork.
var ErrNetwork = zerr.New("network error")

// Fetcher is the network primitive used by the strategies.
type Fetcher interface {
	Fetch(r *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(r *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(r *http.Request) (*http.Response, error) {
	return f(r)
}

// HandlerFetcher fetches responses from an in-process http.Handler.
// The complete response is recorded before it is returned.
type HandlerFetcher struct {
	handler http.Handler
}

func NewHandlerFetcher(handler http.Handler) *HandlerFetcher {
	return &HandlerFetcher{handler: handler}
}

type fetchErrorKey struct{}

type fetchError struct {
	err error
}

// Fetch implements Fetcher.
func (f *HandlerFetcher) Fetch(r *http.Request) (res *http.Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = zerr.With(zerr.Wrap(ErrNetwork, "handler aborted"), "panic", fmt.Sprint(rec))
		}
	}()
	slot := &fetchError{}
	req := r.WithContext(context.WithValue(r.Context(), fetchErrorKey{}, slot))
	rw := tee.NewResponseSaver(nil)
	f.handler.ServeHTTP(rw, req)
	if slot.err != nil {
		return nil, zerr.With(zerr.Wrap(ErrNetwork, slot.err.Error()), "url", r.URL.String())
	}
	return rw.Result(r), nil
}

// recordFetchError is the reverse proxy error handler:
// instead of answering with a 502 it hands the transport error to HandlerFetcher.
func recordFetchError(w http.ResponseWriter, r *http.Request, err error) {
	if slot, ok := r.Context().Value(fetchErrorKey{}).(*fetchError); ok {
		slot.err = err
		return
	}
	w.WriteHeader(http.StatusBadGateway)
}

// NewHTTPFetcher creates a fetcher forwarding requests to the origin.
// If originHost is set, it is used as Host header and for TLS negotiation,
// e.g. when the origin URL is just an IP address.
func NewHTTPFetcher(origin url.URL, originHost string) *HandlerFetcher {
	host := origin.Host
	hostHeader := host
	transport := http.DefaultTransport
	if originHost != "" {
		hostHeader = originHost
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: originHost,
			},
		}
	}
	return NewHandlerFetcher(&httputil.ReverseProxy{
		Director:     createDirector(origin.Scheme, host, hostHeader),
		Transport:    transport,
		ErrorHandler: recordFetchError,
	})
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}
