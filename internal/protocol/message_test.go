package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

const validFrame = `{
	"type": "message",
	"id": 456,
	"payload": {
		"marketId": 123456,
		"selectionId": 987654,
		"odds": 2.2,
		"stake": 253.67,
		"currency": "USD",
		"date": "2021-05-18T21:32:42.324Z"
	}
}`

func TestParseRequestValid(t *testing.T) {
	req, err := ParseRequest([]byte(validFrame))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.ID != 456 {
		t.Errorf("id = %d, want 456", req.ID)
	}
	if req.Payload.MarketID != 123456 || req.Payload.SelectionID != 987654 {
		t.Errorf("market/selection = %d/%d", req.Payload.MarketID, req.Payload.SelectionID)
	}
	if req.Payload.Currency != "USD" {
		t.Errorf("currency = %s, want USD", req.Payload.Currency)
	}
	if req.Payload.Stake != 253.67 {
		t.Errorf("stake = %v, want 253.67", req.Payload.Stake)
	}
	want := time.Date(2021, 5, 18, 21, 32, 42, 324000000, time.UTC)
	if !req.Payload.Date.Time.Equal(want) {
		t.Errorf("date = %v, want %v", req.Payload.Date.Time, want)
	}
}

func TestParseRequestIgnoresUnknownFields(t *testing.T) {
	frame := strings.Replace(validFrame, `"odds": 2.2,`, `"odds": 2.2, "venue": "ascot",`, 1)
	if _, err := ParseRequest([]byte(frame)); err != nil {
		t.Fatalf("unknown field rejected: %v", err)
	}
}

func TestParseRequestErrors(t *testing.T) {
	cases := map[string]string{
		"not json":          `forty two`,
		"missing type":      `{"id":1,"payload":{}}`,
		"wrong type":        `{"type":"heartbeat","id":1,"payload":{}}`,
		"missing id":        `{"type":"message","payload":{"marketId":1,"selectionId":2,"odds":1.5,"stake":10,"currency":"USD","date":"2021-05-18T21:32:42.324Z"}}`,
		"missing payload":   `{"type":"message","id":1}`,
		"missing stake":     `{"type":"message","id":1,"payload":{"marketId":1,"selectionId":2,"odds":1.5,"currency":"USD","date":"2021-05-18T21:32:42.324Z"}}`,
		"lowercase code":    `{"type":"message","id":1,"payload":{"marketId":1,"selectionId":2,"odds":1.5,"stake":10,"currency":"usd","date":"2021-05-18T21:32:42.324Z"}}`,
		"two letter code":   `{"type":"message","id":1,"payload":{"marketId":1,"selectionId":2,"odds":1.5,"stake":10,"currency":"US","date":"2021-05-18T21:32:42.324Z"}}`,
		"unparseable date":  `{"type":"message","id":1,"payload":{"marketId":1,"selectionId":2,"odds":1.5,"stake":10,"currency":"USD","date":"yesterday"}}`,
		"numeric date":      `{"type":"message","id":1,"payload":{"marketId":1,"selectionId":2,"odds":1.5,"stake":10,"currency":"USD","date":1621373562}}`,
		"string market id":  `{"type":"message","id":1,"payload":{"marketId":"abc","selectionId":2,"odds":1.5,"stake":10,"currency":"USD","date":"2021-05-18T21:32:42.324Z"}}`,
	}

	for name, frame := range cases {
		if _, err := ParseRequest([]byte(frame)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEventTimeMarshal(t *testing.T) {
	cases := map[string]string{
		"naive":          `"2023-05-18T21:32:42.324"`,
		"zulu":           `"2023-05-18T21:32:42.324Z"`,
		"offset":         `"2023-05-18T23:32:42.324+02:00"`,
		"micro fraction": `"2023-05-18T21:32:42.324000Z"`,
	}

	for name, in := range cases {
		var et EventTime
		if err := json.Unmarshal([]byte(in), &et); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		out, err := json.Marshal(et)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		if string(out) != `"2023-05-18T21:32:42.324Z"` {
			t.Errorf("%s: marshaled %s", name, out)
		}
	}
}

func TestEventTimeMarshalWholeSecond(t *testing.T) {
	et := EventTime{Time: time.Date(2023, 5, 18, 21, 32, 42, 0, time.UTC)}
	out, err := json.Marshal(et)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"2023-05-18T21:32:42.000Z"` {
		t.Errorf("marshaled %s, want fixed millisecond precision", out)
	}
}

func TestEventTimeDay(t *testing.T) {
	var et EventTime
	if err := json.Unmarshal([]byte(`"2023-05-18T23:32:42.324-03:00"`), &et); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// 23:32 at -03:00 is already the next day in UTC.
	if et.Day() != "2023-05-19" {
		t.Errorf("day = %s, want 2023-05-19", et.Day())
	}
}

func TestIsHeartbeat(t *testing.T) {
	if !IsHeartbeat([]byte(`{"type":"heartbeat"}`)) {
		t.Errorf("heartbeat frame not recognized")
	}
	if IsHeartbeat([]byte(validFrame)) {
		t.Errorf("message frame recognized as heartbeat")
	}
	if IsHeartbeat([]byte(`not json`)) {
		t.Errorf("garbage recognized as heartbeat")
	}
}

func TestExtractTransactionID(t *testing.T) {
	cases := map[string]struct {
		frame   string
		want    int64
		present bool
	}{
		"number":             {`{"type":"message","id":42}`, 42, true},
		"numeric string":     {`{"type":"message","id":"42"}`, 42, true},
		"non numeric string": {`{"type":"message","id":"forty-two"}`, 0, false},
		"absent":             {`{"type":"message"}`, 0, false},
		"garbage":            {`{{{`, 0, false},
	}

	for name, tc := range cases {
		id := ExtractTransactionID([]byte(tc.frame))
		v, ok := id.Value()
		if ok != tc.present || v != tc.want {
			t.Errorf("%s: got (%d,%v), want (%d,%v)", name, v, ok, tc.want, tc.present)
		}
	}
}

func TestErrorReplyMarshal(t *testing.T) {
	reply := NewErrorReply(MissingID(), "invalid conversion request")
	data, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"id":"`+MissingTransactionID+`"`) {
		t.Errorf("missing id not serialized as sentinel: %s", data)
	}

	reply = NewErrorReply(NewTransactionID(7), "boom")
	data, err = json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"id":7`) {
		t.Errorf("numeric id not serialized as number: %s", data)
	}
}

func TestNewReplyPreservesFields(t *testing.T) {
	req, err := ParseRequest([]byte(validFrame))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	reply := NewReply(req, 230.61273, "EUR")
	if reply.ID != req.ID {
		t.Errorf("id = %d, want %d", reply.ID, req.ID)
	}
	if reply.Payload.Stake != 230.61273 || reply.Payload.Currency != "EUR" {
		t.Errorf("converted payload = %+v", reply.Payload)
	}
	if reply.Payload.MarketID != req.Payload.MarketID || reply.Payload.Odds != req.Payload.Odds {
		t.Errorf("carried fields changed: %+v", reply.Payload)
	}
	if !reply.Payload.Date.Time.Equal(req.Payload.Date.Time) {
		t.Errorf("event time changed: %v != %v", reply.Payload.Date.Time, req.Payload.Date.Time)
	}

	data, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"date":"2021-05-18T21:32:42.324Z"`) {
		t.Errorf("reply date lost precision: %s", data)
	}
}
