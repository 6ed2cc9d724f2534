package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainRuleSet prefixes rule set hashes. The version suffix leaves room
// for a different encoding later.
const DomainRuleSet = "modbussim/ruleset/v1"

// Fingerprint returns the content address of a rule set:
// SHA256(domain + 0x00 + compact JSON), hex encoded.
//
// Two runs with the same fingerprint executed the same rules in the same
// order. A nil set hashes like an empty one.
func Fingerprint(rs RuleSet) (string, error) {
	if rs == nil {
		rs = RuleSet{}
	}
	data, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainRuleSet, data), nil
}

// MustFingerprint is like Fingerprint but panics on error.
func MustFingerprint(rs RuleSet) string {
	fp, err := Fingerprint(rs)
	if err != nil {
		panic(err)
	}
	return fp
}

// ShortFingerprint is the first 12 hex digits, for display.
func ShortFingerprint(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
