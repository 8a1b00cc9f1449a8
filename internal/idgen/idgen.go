// Package idgen generates the identifiers used across the five
// MongoDB collections. Record identifiers (New) are UUID v4 strings,
// distinct from MongoDB's own document primary key; agent session ids
// (NewSessionID) use their own "session-..." format.
package idgen

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a random UUID v4 identifier string.
func New() string {
	return uuid.NewString()
}

const sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID returns a durable logical session id in the form
// "session-<epoch-ms>-<9 random base36 chars>", matching spec.md
// §4.4's literal grammar for getOrCreateSession.
func NewSessionID() string {
	epochMs := time.Now().UTC().UnixMilli()
	var suffix strings.Builder
	for i := 0; i < 9; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(sessionIDAlphabet))))
		if err != nil {
			suffix.WriteByte(sessionIDAlphabet[0])
			continue
		}
		suffix.WriteByte(sessionIDAlphabet[n.Int64()])
	}
	return "session-" + strconv.FormatInt(epochMs, 10) + "-" + suffix.String()
}
