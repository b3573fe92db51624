// Package auth implements the stateless link-token scheme used to authorize
// review and decision actions on an approval without server-side sessions.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TimeFormat is the canonical encoding of an approval's creation time. The
// same string is persisted and signed, so tokens survive a round trip
// through storage.
const TimeFormat = time.RFC3339Nano

// TokenAuthority signs and verifies link tokens bound to an approval's
// identity and creation time. Tokens have no independent expiry: a token is
// valid for the approval's entire non-terminal lifetime, and replay after a
// terminal decision is blocked by the lifecycle state check.
type TokenAuthority struct {
	secret []byte
}

// NewTokenAuthority creates an authority with the process-wide signing
// secret. Rotating the secret invalidates all outstanding links.
func NewTokenAuthority(secret string) *TokenAuthority {
	return &TokenAuthority{secret: []byte(secret)}
}

// Sign derives the link token for an approval.
func (a *TokenAuthority) Sign(approvalID int64, createdAt time.Time) string {
	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%d:%s", approvalID, createdAt.UTC().Format(TimeFormat))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the token and compares in constant time.
func (a *TokenAuthority) Verify(approvalID int64, createdAt time.Time, candidate string) bool {
	expected := a.Sign(approvalID, createdAt)
	return hmac.Equal([]byte(expected), []byte(candidate))
}
