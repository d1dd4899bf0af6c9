// Package xid mints prefixed identifiers for stored records. Every entity
// carries a short tag naming its kind, e.g. "prd" for products, "sal" for
// sales, "lin" for sale lines, "pur" for purchases, "pay" for payments,
// "led" for ledger rows and "adj" for stock adjustments, so an ID seen in a
// log line or an audit trail is self-describing.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "<prefix>-<unixnano>-<8 random bytes hex>". The timestamp
// keeps IDs roughly sortable by creation; the random tail makes them
// unique. Should the entropy source fail, the timestamp alone still gives
// a usable ID for a single process.
func New(prefix string) string {
	tail := make([]byte, 8)
	if _, err := rand.Read(tail); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(tail))
}
