package shell

import (
	"net/http"
	"strings"
)

// Class partitions intercepted requests by caching strategy.
type Class int

const (
	// ClassPassThrough requests go straight to the network and are never cached.
	ClassPassThrough Class = iota
	// ClassAPI requests are network-first with a structured offline error.
	ClassAPI
	// ClassNavigation requests are network-first with the offline document as last resort.
	ClassNavigation
	// ClassAsset requests are stale-while-revalidate.
	ClassAsset
)

func (c Class) String() string {
	switch c {
	case ClassAPI:
		return "api"
	case ClassNavigation:
		return "navigation"
	case ClassAsset:
		return "asset"
	default:
		return "passthrough"
	}
}

// SecFetchMode is the request header carrying the browser's request mode.
const SecFetchMode = "Sec-Fetch-Mode"

// IsNavigation reports whether the browser flagged the request as a document navigation.
func IsNavigation(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(SecFetchMode), "navigate")
}

// Classify determines the strategy for the request.
// Only http(s) GET requests are handled; everything else passes through untouched.
func Classify(r *http.Request, apiPrefix string) Class {
	if r.URL == nil || (r.URL.Scheme != "http" && r.URL.Scheme != "https") {
		return ClassPassThrough
	}
	// mutating requests must never be answered from cache
	if r.Method != "" && r.Method != http.MethodGet {
		return ClassPassThrough
	}
	if strings.HasPrefix(r.URL.Path, apiPrefix) {
		return ClassAPI
	}
	if IsNavigation(r) {
		return ClassNavigation
	}
	return ClassAsset
}
