package report

import (
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
)

const consumerPrefix = "visit-writer"

// NewConsumerID names this process inside the visit_writers group as
// visit-writer-<host>-<ulid>. Restarts get a fresh name; stale consumers'
// pending entries are reclaimed with XAUTOCLAIM.
func NewConsumerID() string {
	host, _ := os.Hostname()
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return consumerPrefix + "-" + ulid.Make().String()
	}
	return consumerPrefix + "-" + host + "-" + ulid.Make().String()
}
