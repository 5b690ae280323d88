package v2x

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/iancoleman/orderedmap"
)

// canonicalPayload builds the UTF-8 key-sorted serialization of a message's
// payload fields, excluding mac, that both Sign and Verify operate on. Using
// an explicit ordered map (rather than relying on encoding/json's incidental
// struct-field order) makes the wire contract independent of Go struct
// layout, matching the "canonical_serialization(payload)" requirement.
func canonicalPayload(msg Message) []byte {
	// encoding/json refuses NaN and ±Inf, so a non-finite number is carried
	// as its strconv text; the security filter's range check rejects it.
	num := func(f float64) any {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f
	}
	fields := map[string]any{
		"agent_id":     string(msg.AgentID),
		"x":            num(msg.X),
		"y":            num(msg.Y),
		"v":            num(msg.V),
		"theta":        num(msg.Heading),
		"intent":       string(msg.Intent),
		"decision":     msg.Decision,
		"risk_level":   string(msg.RiskLevel),
		"is_emergency": msg.IsEmergency,
		"timestamp":    strconv.FormatInt(msg.Timestamp.UnixNano(), 10),
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := orderedmap.New()
	for _, k := range keys {
		ordered.Set(k, fields[k])
	}

	encoded, err := json.Marshal(ordered)
	if err != nil {
		// every field above is a string, a bool or a finite float; Marshal
		// does not fail on those.
		panic("v2x: canonical payload marshal: " + err.Error())
	}
	return encoded
}

// Sign computes the hex-encoded HMAC-SHA256 of msg's canonical payload under
// key and returns it. It does not mutate msg.
func Sign(msg Message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(canonicalPayload(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether msg.MAC matches the HMAC of its canonical payload
// under key. It uses constant-time comparison to avoid timing side channels.
func Verify(msg Message, key []byte) bool {
	expected := Sign(msg, key)
	return hmac.Equal([]byte(expected), []byte(msg.MAC))
}
