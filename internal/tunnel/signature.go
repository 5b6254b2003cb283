package tunnel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Header names shared by the signing client and the verifying side.
const (
	HeaderSignature = "X-Worker-Signature"
	HeaderTimestamp = "X-Worker-Timestamp"
	HeaderCaller    = "X-Worker-Caller"
)

// MaxClockSkew bounds |now - timestamp| for a signed request; anything
// older is treated as a replay.
const MaxClockSkew = 30_000 // milliseconds

// Sign computes the hex HMAC-SHA256 over "{timestampMs}:{caller}:{payload}".
// For GET requests the payload is the request path; for POST it is the
// serialized body.
func Sign(secret string, timestampMs int64, caller, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d:%s:%s", timestampMs, caller, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature and compares it in constant
// time. A malformed or wrong-length hex signature is simply invalid; it
// must never panic or short-circuit in a way that leaks timing.
func VerifySignature(secret string, timestampMs int64, caller, payload, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(Sign(secret, timestampMs, caller, payload))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}
