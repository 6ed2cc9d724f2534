package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/seikosantana/modbus-sim/internal/rules"
)

// timeLayout is the TEXT encoding of every timestamp column. Fixed width,
// so lexical order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalRules converts the rule set to JSON TEXT for storage.
func marshalRules(rs rules.RuleSet) (string, error) {
	if rs == nil {
		rs = rules.RuleSet{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rs); err != nil {
		return "", fmt.Errorf("marshal rules: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalRules parses JSON TEXT back into a rule set.
func unmarshalRules(data string) (rules.RuleSet, error) {
	if data == "" || data == "[]" {
		return rules.RuleSet{}, nil
	}
	var rs rules.RuleSet
	if err := json.Unmarshal([]byte(data), &rs); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return rs, nil
}
