// Package xid generates the human-visible record identifiers: auto ids for
// blank input and numeric suffixes for cross-owner collisions.
package xid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// New returns "<prefix>-<n>" with a random n below 100000.
func New(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, randomBelow(100000))
}

// Suffix disambiguates an id that collides with another owner's record.
func Suffix(id string) string {
	return fmt.Sprintf("%s-%d", id, randomBelow(10000))
}

func randomBelow(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return time.Now().UnixNano() % max
	}
	return n.Int64()
}
