package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex digits for display
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// InputFingerprint identifies the inputs that fully determine a simulation
// result. Two runs with equal fingerprints produce identical null
// distributions.
type InputFingerprint Hash

func (f InputFingerprint) String() string { return Hash(f).String() }

// ComputeInputFingerprint hashes key/value parameters in key order, so map
// iteration order never changes the result
func ComputeInputFingerprint(params map[string]interface{}) InputFingerprint {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteByte('=')
		data.WriteString(fmt.Sprintf("%v", params[key]))
		data.WriteByte(';')
	}

	return InputFingerprint(NewHash([]byte(data.String())))
}
