package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// Frame type tags understood by both peers.
const (
	TypeHeartbeat = "heartbeat"
	TypeMessage   = "message"
	TypeError     = "error"
)

// MissingTransactionID is sent in place of a numeric id when the inbound
// frame carried no usable one.
const MissingTransactionID = "<missing_transaction_id>"

var currencyRegexp = regexp.MustCompile(`^[A-Z]{3}$`)

// envelope is the minimal shape shared by every frame.
type envelope struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Heartbeat is the liveness frame exchanged on a fixed interval.
type Heartbeat struct {
	Type string `json:"type"`
}

func NewHeartbeat() Heartbeat {
	return Heartbeat{Type: TypeHeartbeat}
}

// IsHeartbeat reports whether the raw frame is a heartbeat.
func IsHeartbeat(raw []byte) bool {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	return env.Type == TypeHeartbeat
}

// Payload carries the bet fields of a conversion request or reply.
type Payload struct {
	MarketID    int64     `json:"marketId"`
	SelectionID int64     `json:"selectionId"`
	Odds        float64   `json:"odds"`
	Stake       float64   `json:"stake"`
	Currency    string    `json:"currency"`
	Date        EventTime `json:"date"`
}

// Request represents an inbound stake conversion request.
type Request struct {
	Type    string  `json:"type"`
	ID      int64   `json:"id"`
	Payload Payload `json:"payload"`
}

// Reply represents the converted counterpart sent back for a request.
type Reply struct {
	Type    string  `json:"type"`
	ID      int64   `json:"id"`
	Payload Payload `json:"payload"`
}

// NewReply builds the reply for req with the stake replaced by the
// converted amount in the target currency. All other fields carry over.
func NewReply(req *Request, stake float64, currency string) Reply {
	payload := req.Payload
	payload.Stake = stake
	payload.Currency = currency
	return Reply{Type: TypeMessage, ID: req.ID, Payload: payload}
}

// ErrorReply represents the failure frame sent back when a request cannot
// be converted.
type ErrorReply struct {
	Type    string        `json:"type"`
	ID      TransactionID `json:"id"`
	Message string        `json:"message"`
}

func NewErrorReply(id TransactionID, message string) ErrorReply {
	return ErrorReply{Type: TypeError, ID: id, Message: message}
}

// rawPayload mirrors Payload with pointer fields so missing keys can be
// told apart from zero values.
type rawPayload struct {
	MarketID    *int64     `json:"marketId"`
	SelectionID *int64     `json:"selectionId"`
	Odds        *float64   `json:"odds"`
	Stake       *float64   `json:"stake"`
	Currency    *string    `json:"currency"`
	Date        *EventTime `json:"date"`
}

type rawRequest struct {
	Type    *string     `json:"type"`
	ID      *int64      `json:"id"`
	Payload *rawPayload `json:"payload"`
}

// ParseRequest decodes and validates an inbound conversion request.
// Unknown fields are ignored; missing or malformed required fields fail.
func ParseRequest(raw []byte) (*Request, error) {
	var req rawRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	if req.Type == nil {
		return nil, fmt.Errorf("missing field 'type'")
	}
	if *req.Type != TypeMessage {
		return nil, fmt.Errorf("unexpected frame type '%s'", *req.Type)
	}
	if req.ID == nil {
		return nil, fmt.Errorf("missing field 'id'")
	}
	if req.Payload == nil {
		return nil, fmt.Errorf("missing field 'payload'")
	}

	p := req.Payload
	if p.MarketID == nil {
		return nil, fmt.Errorf("missing field 'payload.marketId'")
	}
	if p.SelectionID == nil {
		return nil, fmt.Errorf("missing field 'payload.selectionId'")
	}
	if p.Odds == nil {
		return nil, fmt.Errorf("missing field 'payload.odds'")
	}
	if p.Stake == nil {
		return nil, fmt.Errorf("missing field 'payload.stake'")
	}
	if p.Currency == nil {
		return nil, fmt.Errorf("missing field 'payload.currency'")
	}
	if !currencyRegexp.MatchString(*p.Currency) {
		return nil, fmt.Errorf("currency '%s' must be a three letter uppercase code", *p.Currency)
	}
	if p.Date == nil {
		return nil, fmt.Errorf("missing field 'payload.date'")
	}

	return &Request{
		Type: *req.Type,
		ID:   *req.ID,
		Payload: Payload{
			MarketID:    *p.MarketID,
			SelectionID: *p.SelectionID,
			Odds:        *p.Odds,
			Stake:       *p.Stake,
			Currency:    *p.Currency,
			Date:        *p.Date,
		},
	}, nil
}

// TransactionID is a numeric frame id that may be absent. Absent ids
// serialize as the missing id sentinel string.
type TransactionID struct {
	value   int64
	present bool
}

func NewTransactionID(v int64) TransactionID {
	return TransactionID{value: v, present: true}
}

func MissingID() TransactionID {
	return TransactionID{}
}

// Value returns the numeric id and whether one is present.
func (id TransactionID) Value() (int64, bool) {
	return id.value, id.present
}

func (id TransactionID) MarshalJSON() ([]byte, error) {
	if !id.present {
		return json.Marshal(MissingTransactionID)
	}
	return []byte(strconv.FormatInt(id.value, 10)), nil
}

func (id *TransactionID) UnmarshalJSON(data []byte) error {
	var v int64
	if err := json.Unmarshal(data, &v); err == nil {
		*id = NewTransactionID(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*id = NewTransactionID(n)
			return nil
		}
		*id = MissingID()
		return nil
	}
	return fmt.Errorf("unparseable transaction id %s", string(data))
}

// ExtractTransactionID pulls a best effort id out of a frame that failed
// full validation so error replies can still reference it.
func ExtractTransactionID(raw []byte) TransactionID {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return MissingID()
	}
	if len(env.ID) == 0 {
		return MissingID()
	}

	var id TransactionID
	if err := json.Unmarshal(env.ID, &id); err != nil {
		return MissingID()
	}
	return id
}
