package hyperliquid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// number decodes a venue numeric field sent as a JSON number, a numeric
// string, or null. Valid is false for null, absent and empty-string values.
type number struct {
	Value float64
	Valid bool
}

func (n *number) UnmarshalJSON(data []byte) error {
	*n = number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	text := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		if text == "" {
			return nil
		}
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return fmt.Errorf("%w: bad number %q", ErrMalformedResponse, text)
	}
	v := d.InexactFloat64()
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Errorf("%w: number %q out of range", ErrMalformedResponse, text)
	}
	n.Value = v
	n.Valid = true
	return nil
}

// positive reports whether the field is present and non-zero.
func (n number) positive() bool {
	return n.Valid && n.Value > 0
}

const defaultLeverage = 1.0

// leverage decodes the position leverage descriptor: a bare number, or an
// object carrying "value" (e.g. {"type":"cross","value":20}). Null, absent,
// or an object without value means 1x. Any other shape is malformed.
type leverage struct {
	Value float64
}

func (l *leverage) UnmarshalJSON(data []byte) error {
	l.Value = defaultLeverage
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n number
	switch data[0] {
	case '{':
		var obj struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Value == nil {
			return nil
		}
		if err := json.Unmarshal(obj.Value, &n); err != nil {
			return err
		}
	case '"', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: leverage descriptor %s", ErrMalformedResponse, truncate(string(data), 64))
	}

	if n.Valid {
		l.Value = n.Value
	}
	return nil
}

// newLeverage is the descriptor for a payload that omits the field.
func newLeverage() leverage {
	return leverage{Value: defaultLeverage}
}

// addressRule is an ordered list of object keys that may hold an account
// address. The first key holding a non-empty string wins.
type addressRule []string

var (
	// Rows of the keyed {"leaderboardRows": [...]} shape.
	keyedRowKeys = addressRule{"ethAddress", "user"}
	// Entries of a bare list from the primary source.
	listEntryKeys = addressRule{"ethAddress", "user", "address"}
	// Entries of the secondary info-endpoint leaderboard.
	fallbackEntryKeys = addressRule{"ethAddress", "user"}
)

const leaderboardRowsField = "leaderboardRows"

// extract pulls an address out of one list entry. Entries are either the
// address string itself or an object matched against the rule; anything
// else yields nothing.
func (r addressRule) extract(entry json.RawMessage) (string, bool) {
	entry = bytes.TrimSpace(entry)
	if len(entry) == 0 {
		return "", false
	}

	switch entry[0] {
	case '"':
		var s string
		if err := json.Unmarshal(entry, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(entry, &obj); err != nil {
			return "", false
		}
		for _, key := range r {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// leaderboardShape is the closed set of top-level leaderboard payloads.
type leaderboardShape int

const (
	shapeUnknown leaderboardShape = iota
	shapeKeyed
	shapeList
)

func detectShape(body []byte) leaderboardShape {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return shapeUnknown
	}
	switch body[0] {
	case '{':
		return shapeKeyed
	case '[':
		return shapeList
	}
	return shapeUnknown
}

// extractAccounts applies listRule to a bare list, or keyedRule to the rows
// of a keyed object when keyedRule is non-nil. At most limit addresses are
// returned; limit <= 0 means no cap.
func extractAccounts(body []byte, keyedRule, listRule addressRule, limit int) ([]string, error) {
	var entries []json.RawMessage
	rule := listRule

	switch detectShape(body) {
	case shapeKeyed:
		if keyedRule == nil {
			return nil, fmt.Errorf("%w: expected a list, got an object", ErrMalformedResponse)
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, err
		}
		rows, ok := obj[leaderboardRowsField]
		if !ok {
			return nil, nil
		}
		if err := json.Unmarshal(rows, &entries); err != nil {
			return nil, fmt.Errorf("%w: %s is not a list", ErrMalformedResponse, leaderboardRowsField)
		}
		rule = keyedRule
	case shapeList:
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: leaderboard is neither object nor list", ErrMalformedResponse)
	}

	accounts := make([]string, 0, len(entries))
	for _, entry := range entries {
		if limit > 0 && len(accounts) >= limit {
			break
		}
		if addr, ok := rule.extract(entry); ok {
			accounts = append(accounts, addr)
		}
	}
	return accounts, nil
}
