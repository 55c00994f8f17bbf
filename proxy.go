package shell

import (
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// ServeHTTP implements the http.Handler interface.
// The incoming request is directed at the origin and run through the active worker.
func (reg *Registration) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer reg.recover(w, r)
	reg.handle(w, r)
}

func (reg *Registration) handle(w http.ResponseWriter, r *http.Request) {
	res, err := reg.RoundTrip(reg.originRequest(r))
	if err != nil {
		reg.log.Error().Err(err).Str("url", r.URL.String()).Msg("Error connecting to origin")
		http.Error(w, "Could not connect to origin", http.StatusBadGateway)
		return
	}
	reg.sendResponse(w, r, res)
}

// originRequest creates the outgoing request for the origin from the client request.
func (reg *Registration) originRequest(r *http.Request) *http.Request {
	req := r.Clone(r.Context())
	req.RequestURI = ""
	req.URL.Scheme = reg.origin.Scheme
	req.URL.Host = reg.origin.Host
	if r.ContentLength == 0 {
		req.Body = nil
	}
	return req
}

func (reg *Registration) sendResponse(w http.ResponseWriter, r *http.Request, res *http.Response) {
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		reg.log.Error().Err(err).Msg("Could not write response body to client")
	}
	reg.log.Trace().Str("sourceIp", getRequestSourceIp(r)).Msgf("Wrote body (%d bytes)", bytesWritten)
}

// recover recovers from panics and sends the request to the escape hatch.
func (reg *Registration) recover(w http.ResponseWriter, r *http.Request) {
	if err := recover(); err != nil {
		reg.log.WithLevel(zerolog.PanicLevel).Interface("error", err).Msg("Panic in worker")
		reg.escapeHatch(w, r)
	}
}

// escapeHatch is a fallback handler that just proxies the request to the origin.
func (reg *Registration) escapeHatch(w http.ResponseWriter, r *http.Request) {
	res, err := reg.fetcher.Fetch(reg.originRequest(r))
	if err != nil {
		reg.log.Error().Err(err).Msg("Error connecting to origin")
		http.Error(w, "Could not connect to origin", http.StatusBadGateway)
		return
	}
	reg.sendResponse(w, r, res)
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
