package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainResponse = "offworker/response/v1"
	DomainEvent    = "offworker/event/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ResponseHash computes the content hash for a cached response. The hash
// covers status, sorted headers, and body, so two entries are equal iff a
// replay would be byte-for-byte identical to what was stored.
func ResponseHash(status int, header map[string][]string, body []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", status)

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := append([]string(nil), header[k]...)
		sort.Strings(vals)
		fmt.Fprintf(&b, "%s: %s\n", k, strings.Join(vals, ","))
	}

	h := sha256.New()
	h.Write([]byte(DomainResponse))
	h.Write([]byte{0x00})
	h.Write([]byte(b.String()))
	h.Write([]byte{0x00})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes a content-addressed ID for a worker event. The ID is
// stable across restarts and replays given the same inputs.
func EventID(kind EventKind, seq int64, detail map[string]any) (string, error) {
	obj := map[string]any{
		"kind": string(kind),
		"seq":  seq,
	}
	if len(detail) > 0 {
		obj["detail"] = detail
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}
