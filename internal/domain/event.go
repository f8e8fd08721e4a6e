package domain

import "encoding/json"

// Event is a JSON-object payload plus a server-assigned, per-agent,
// monotonically-increasing Seq. Typical Type values are turn_started,
// tool_started, tool_completed, turn_completed, error.
type Event struct {
	Type      string         `json:"type"`
	Seq       int64          `json:"seq"`
	RequestID string         `json:"request_id,omitempty"`
	Data      map[string]any `json:"-"`
}

// MarshalJSON flattens Data alongside the well-known fields so the wire
// shape is a single flat object, matching the reference's dict-based
// events (Type/Seq/RequestID plus whatever the caller put in Data).
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+3)
	for k, v := range e.Data {
		out[k] = v
	}
	out["type"] = e.Type
	out["seq"] = e.Seq
	if e.RequestID != "" {
		out["request_id"] = e.RequestID
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON: well-known fields are
// extracted, everything else lands in Data.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if t, ok := raw["type"].(string); ok {
		e.Type = t
		delete(raw, "type")
	}
	if s, ok := raw["seq"].(float64); ok {
		e.Seq = int64(s)
		delete(raw, "seq")
	}
	if r, ok := raw["request_id"].(string); ok {
		e.RequestID = r
		delete(raw, "request_id")
	}
	e.Data = raw
	return nil
}

// NewEvent builds an Event with the given type and data, seq left at zero
// pending assignment by the Event Hub at publish time.
func NewEvent(eventType string, data map[string]any) Event {
	return Event{Type: eventType, Data: data}
}
