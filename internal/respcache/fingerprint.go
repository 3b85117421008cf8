// Package respcache avoids repeating upstream calls for identical,
// safely-cacheable requests. It fingerprints a request's semantic inputs,
// checks a pluggable store before the upstream call, and conditionally
// stores the fully assembled response afterwards.
package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"

	"chatrelay/internal/core"
)

// fingerprintLen is the hex length of a fingerprint (64 bits of the digest).
const fingerprintLen = 16

// Fingerprint computes a deterministic short digest over the request's
// semantic inputs. Equal inputs always yield equal fingerprints; changing
// any field, including a single option value, changes the output.
func Fingerprint(message, model string, opts core.GenerationOptions) string {
	h := sha256.New()
	io.WriteString(h, message)
	h.Write([]byte{0})
	io.WriteString(h, model)
	h.Write([]byte{0})
	io.WriteString(h, canonicalOptions(opts))
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLen]
}

// canonicalOptions serializes options with a fixed field order and exact
// float formatting so the digest does not depend on struct layout or JSON
// quirks. Unset optional fields serialize as "-" to stay distinguishable
// from zero values.
func canonicalOptions(o core.GenerationOptions) string {
	buf := make([]byte, 0, 64)
	buf = appendOptFloat(buf, o.Temperature)
	buf = appendOptInt(buf, o.MaxTokens)
	buf = appendOptFloat(buf, o.TopP)
	buf = appendOptFloat(buf, o.FrequencyPenalty)
	buf = appendOptFloat(buf, o.PresencePenalty)
	buf = append(buf, '|')
	buf = strconv.AppendBool(buf, o.Stream)
	return string(buf)
}

func appendOptInt(buf []byte, v *int) []byte {
	buf = append(buf, '|')
	if v == nil {
		return append(buf, '-')
	}
	return strconv.AppendInt(buf, int64(*v), 10)
}

func appendOptFloat(buf []byte, v *float64) []byte {
	buf = append(buf, '|')
	if v == nil {
		return append(buf, '-')
	}
	return strconv.AppendFloat(buf, *v, 'g', -1, 64)
}
