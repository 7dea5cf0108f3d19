package ratelimit

import (
	"net/http"
	"strings"
)

// ResolveIdentity picks the admission identity for a request: an explicit
// caller id, then the first X-Forwarded-For entry, then X-Real-IP, then the
// shared unknown bucket. The result is a coarse abuse signal and must not be
// used for auditing or billing.
func ResolveIdentity(callerID string, header http.Header) string {
	if id := strings.TrimSpace(callerID); id != "" {
		return "caller:" + id
	}

	if fwd := header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}

	if ip := strings.TrimSpace(header.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}

	return UnknownIdentity
}
