package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp accepts either an RFC3339 string or epoch milliseconds (the shape
// browsers produce with Date.now()). Raw keeps the received text verbatim.
type Timestamp struct {
	Raw  string
	Time time.Time
}

// NewTimestamp renders t as epoch milliseconds, the format the delivery client emits.
func NewTimestamp(t time.Time) Timestamp {
	t = t.UTC().Truncate(time.Millisecond)
	return Timestamp{Raw: strconv.FormatInt(t.UnixMilli(), 10), Time: t}
}

// IsZero reports whether no timestamp was supplied.
func (t Timestamp) IsZero() bool {
	return t.Raw == "" && t.Time.IsZero()
}

// String returns the raw form, falling back to RFC3339 for programmatic values.
func (t Timestamp) String() string {
	if t.Raw != "" {
		return t.Raw
	}
	if t.Time.IsZero() {
		return ""
	}
	return t.Time.UTC().Format(time.RFC3339Nano)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		parsed, err := parseTimestampText(s)
		if err != nil {
			return err
		}
		*t = Timestamp{Raw: s, Time: parsed}
		return nil
	}

	parsed, err := parseEpochMillis(string(b))
	if err != nil {
		return err
	}
	*t = Timestamp{Raw: string(b), Time: parsed}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	raw := t.String()
	if raw == "" {
		return []byte("null"), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return []byte(raw), nil
	}
	return json.Marshal(raw)
}

func parseTimestampText(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	return parseEpochMillis(s)
}

func parseEpochMillis(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is neither RFC3339 nor epoch milliseconds", s)
	}
	// 2^63 is exact in float64; anything at or beyond it does not fit int64.
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return time.Time{}, fmt.Errorf("timestamp %q is out of range", s)
	}
	return time.UnixMilli(int64(f)).UTC(), nil
}

// CustomerID identifies a paying tenant. Clients send it either as a JSON
// number or as a numeric string, so both are accepted.
type CustomerID int64

// ParseCustomerID parses a decimal customer id.
func ParseCustomerID(s string) (CustomerID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid customerId %q", s)
	}
	return CustomerID(n), nil
}

func (id CustomerID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id *CustomerID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("customerId: %w", err)
		}
		if s == "" {
			*id = 0
			return nil
		}
	}
	parsed, err := ParseCustomerID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
