package cadagent

import (
	"encoding/json"
	"fmt"
	"maps"
)

// StatusCodeKey is the data field carrying a tool's domain status code.
const StatusCodeKey = "status_code"

// Envelope is the uniform outcome of a tool invocation. When OK is true only
// Data is meaningful; otherwise Error (and optionally Trace) is.
type Envelope struct {
	OK    bool           `json:"ok"`
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
	Trace string         `json:"trace,omitempty"`
}

// Success wraps data in a successful envelope.
func Success(data map[string]any) Envelope {
	return Envelope{OK: true, Data: data}
}

// Failure builds an error envelope.
func Failure(msg string) Envelope {
	return Envelope{OK: false, Error: msg}
}

// Failuref builds an error envelope from a format string.
func Failuref(format string, args ...any) Envelope {
	return Failure(fmt.Sprintf(format, args...))
}

// JSON serializes the envelope for a tool-result message. It never fails:
// unserializable data degrades to an error envelope.
func (e Envelope) JSON() string {
	b, err := json.Marshal(e)
	if err != nil {
		fb, _ := json.Marshal(Failuref("unserializable tool result: %v", err))
		return string(fb)
	}
	return string(b)
}

// StatusCode reads Data["status_code"] as an integer.
func (e Envelope) StatusCode() (int, bool) {
	if e.Data == nil {
		return 0, false
	}
	return asInt(e.Data[StatusCodeKey])
}

// WithData returns a copy of e whose Data has key set to value.
// The receiver's map is not modified.
func (e Envelope) WithData(key string, value any) Envelope {
	out := e
	out.Data = make(map[string]any, len(e.Data)+1)
	maps.Copy(out.Data, e.Data)
	out.Data[key] = value
	return out
}

// normalizeResult converts a capability's return value into an envelope.
// Envelopes and objects that carry an explicit "ok" field pass through;
// anything else is wrapped as successful data. A pass-through "data" that is
// not an object is kept under "value", and fields beside "data" are merged
// into it without overwriting.
func normalizeResult(v any) Envelope {
	switch r := v.(type) {
	case nil:
		return Success(map[string]any{})
	case Envelope:
		return r
	case *Envelope:
		if r == nil {
			return Success(map[string]any{})
		}
		return *r
	case map[string]any:
		if _, ok := r["ok"].(bool); ok {
			return envelopeFromMap(r)
		}
		return Success(r)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return Failuref("unserializable tool result: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return Failuref("unserializable tool result: %v", err)
	}
	if m, ok := decoded.(map[string]any); ok {
		if _, hasOK := m["ok"].(bool); hasOK {
			return envelopeFromMap(m)
		}
		return Success(m)
	}
	return Success(map[string]any{"value": decoded})
}

func envelopeFromMap(m map[string]any) Envelope {
	env := Envelope{OK: m["ok"].(bool)}
	if msg, ok := m["error"]; ok && msg != nil {
		env.Error = fmt.Sprint(msg)
	}
	if trace, ok := m["trace"].(string); ok {
		env.Trace = trace
	}
	switch data := m["data"].(type) {
	case nil:
	case map[string]any:
		env.Data = maps.Clone(data)
	default:
		env.Data = map[string]any{"value": data}
	}
	for k, v := range m {
		switch k {
		case "ok", "error", "trace", "data":
			continue
		}
		if env.Data == nil {
			env.Data = make(map[string]any)
		}
		if _, taken := env.Data[k]; !taken {
			env.Data[k] = v
		}
	}
	return env
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
