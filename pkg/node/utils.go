package node

import (
	"net/http"
	"strings"

	"github.com/ryandielhenn/zephyrdht/pkg/txn"
)

// keyFromPath cuts the /kv/ prefix; keys may contain further slashes.
func keyFromPath(path string) (string, bool) {
	key, ok := strings.CutPrefix(path, "/kv/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// statusForOutcome maps a failed quorum outcome to an HTTP status. A create
// refused by a quorum means the key already exists; the other operations
// fail that way only on a missing key.
func statusForOutcome(o txn.Outcome) int {
	switch o.Reason {
	case txn.ReasonNoReplicas:
		return http.StatusServiceUnavailable
	case txn.ReasonExpired:
		return http.StatusGatewayTimeout
	}
	if o.Op == txn.OpCreate {
		return http.StatusConflict
	}
	return http.StatusNotFound
}
