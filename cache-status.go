package shell

import "strings"

// CacheStatusName is the cache identifier used in the Cache-Status header (RFC 9211).
const CacheStatusName = "SPA-Shell"

type CacheStatusStatus string

const (
	CacheStatusHit CacheStatusStatus = "hit"
	CacheStatusFwd CacheStatusStatus = "fwd"
)

type CacheStatusFwdReason string

const (
	// The request scheme is not handled by any strategy.
	CacheStatusFwdBypass CacheStatusFwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	CacheStatusFwdMethod CacheStatusFwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	CacheStatusFwdUriMiss CacheStatusFwdReason = "uri-miss"

	// The strategy requires the network to be tried first.
	CacheStatusFwdRequest CacheStatusFwdReason = "request"
)

// Details
const (
	DetailOffline    = "offline"
	DetailRevalidate = "revalidate"
)

type CacheStatus struct {
	status    CacheStatusStatus
	detail    string
	fwdReason CacheStatusFwdReason
	stored    bool
}

func (cs *CacheStatus) Hit() {
	cs.status = CacheStatusHit
	cs.fwdReason = ""
}

func (cs *CacheStatus) Forward(reason CacheStatusFwdReason) {
	cs.status = CacheStatusFwd
	cs.fwdReason = reason
}

// Stored marks that the response was (asynchronously) written to the cache.
func (cs *CacheStatus) Stored() {
	cs.stored = true
}

func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs *CacheStatus) IsHit() bool {
	return cs.status == CacheStatusHit
}

func (cs *CacheStatus) String() string {
	b := strings.Builder{}
	b.WriteString(CacheStatusName)
	b.WriteString("; ")
	b.WriteString(string(cs.status))
	if cs.status == CacheStatusFwd && cs.fwdReason != "" {
		b.WriteString("=")
		b.WriteString(string(cs.fwdReason))
	}
	if cs.stored {
		b.WriteString("; stored")
	}
	if cs.detail != "" {
		b.WriteString("; detail=")
		b.WriteString(cs.detail)
	}
	return b.String()
}
