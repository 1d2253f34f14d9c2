package subscription

import (
	"crypto/hmac"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// Action names a confirmation step and is bound into every token.
type Action string

const (
	ActionConfirmSubscription Action = "confirm_subscription"
	ActionConfirmCancellation Action = "confirm_cancellation"
)

func (a Action) Valid() bool {
	return a == ActionConfirmSubscription || a == ActionConfirmCancellation
}

// Digester computes a keyed digest over its parts.
type Digester interface {
	Digest(parts ...string) string
}

// futureSkew is how far ahead of the local clock a token timestamp may be.
const futureSkew = time.Minute

// TokenCodec issues and checks stateless confirmation tokens of the form
// base64url("<unix seconds>:<digest>").
type TokenCodec struct {
	digester Digester
	now      func() time.Time
}

func NewTokenCodec(digester Digester) *TokenCodec {
	return &TokenCodec{digester: digester, now: time.Now}
}

// WithClock returns a copy of c that reads time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	return &TokenCodec{digester: c.digester, now: now}
}

func (c *TokenCodec) Generate(contentID, email string, action Action) string {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	digest := c.digester.Digest(contentID, email, ts, string(action))
	return base64.RawURLEncoding.EncodeToString([]byte(ts + ":" + digest))
}

// Validate reports whether token was issued for exactly this content, email
// and action, and is no older than maxAge.
func (c *TokenCodec) Validate(contentID, email string, action Action, token string, maxAge time.Duration) bool {
	if token == "" {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return false
	}
	ts, digest, ok := strings.Cut(string(raw), ":")
	if !ok || ts == "" || digest == "" {
		return false
	}
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}

	expected := c.digester.Digest(contentID, email, ts, string(action))
	if !hmac.Equal([]byte(digest), []byte(expected)) {
		return false
	}

	age := c.now().Sub(time.Unix(issued, 0))
	if age > maxAge || age < -futureSkew {
		return false
	}
	return true
}
