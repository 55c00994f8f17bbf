package cachekey

import (
	"net/http"
	"net/url"
	"strings"

	"go.trai.ch/zerr"
)

var ErrMalformedKey = zerr.New("malformed cache key")

const methodSeparator = " "

// Key identifies a stored response: the request method plus the absolute request URL.
// Fragments are never part of the key.
type Key struct {
	Method string
	URL    string
}

// FromRequest gets the key for the given request.
// The request URL is expected to be absolute (as it is for outgoing client requests).
func FromRequest(r *http.Request) Key {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return Key{
		Method: method,
		URL:    normalize(r.URL),
	}
}

// ForURL gets the GET key for an absolute URL.
func ForURL(u *url.URL) Key {
	return Key{Method: http.MethodGet, URL: normalize(u)}
}

// String returns the storage representation of the key, e.g. `GET https://example.com/api/movies`.
func (k Key) String() string {
	return k.Method + methodSeparator + k.URL
}

// Request generates a request equal (caching-wise) to the one that resulted in the key.
func (k Key) Request() (*http.Request, error) {
	return http.NewRequest(k.Method, k.URL, nil)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	method, uri, found := strings.Cut(s, methodSeparator)
	if !found || method == "" || uri == "" {
		return Key{}, zerr.With(zerr.Wrap(ErrMalformedKey, "missing separator"), "key", s)
	}
	return Key{Method: method, URL: uri}, nil
}

func normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
