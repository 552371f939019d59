package protocol

import (
	"fmt"
	"strings"
	"time"
)

const (
	wireTimeFormat  = "2006-01-02T15:04:05.000Z07:00"
	naiveTimeFormat = "2006-01-02T15:04:05.999999999"
	dayFormat       = "2006-01-02"
)

// EventTime is the wire representation of event timestamps. Inbound values
// may carry an explicit offset or be naive; naive values are taken as UTC.
// Outbound values are always UTC with millisecond precision and a Z suffix.
type EventTime struct {
	time.Time
}

func (t EventTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(wireTimeFormat) + `"`), nil
}

func (t *EventTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return fmt.Errorf("empty event time")
	}

	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	parsed, err := time.Parse(naiveTimeFormat, s)
	if err != nil {
		return fmt.Errorf("unparseable event time '%s'", s)
	}
	t.Time = parsed.UTC()
	return nil
}

// Day returns the calendar day of the event in UTC, used as the rate
// lookup granularity.
func (t EventTime) Day() string {
	return t.UTC().Format(dayFormat)
}
