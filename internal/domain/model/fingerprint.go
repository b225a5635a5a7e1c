package model

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies "the same condition" across repeated alerts.
type Fingerprint string

// NewFingerprint hashes the normalised trigger, host and severity. Observed
// value and timestamps are not part of the key.
func NewFingerprint(trigger, host string, sev Severity) Fingerprint {
	d := xxhash.New()
	_, _ = d.WriteString(normalizeKeyPart(trigger))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(normalizeKeyPart(host))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(int(sev)))
	return Fingerprint(strconv.FormatUint(d.Sum64(), 16))
}

func (f Fingerprint) String() string { return string(f) }

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
