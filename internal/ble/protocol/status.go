package protocol

import (
	"encoding/json"
	"fmt"
)

// StatusEvent is a decoded status/notification payload from the sensor.
// Known fields are lifted out; everything else is preserved opaquely in
// Extra so unknown content can still be logged. Missing optional fields are
// zero values, never a decode failure.
type StatusEvent struct {
	Cmd        string        // command kind this status answers, if any
	OK         bool          // device-reported success flag, defaults true when absent
	Error      string        // device-reported error message
	SessionID  string        // active or newly started session
	Mode       string        // current operating mode
	BatteryPct int           // battery percentage, -1 when unreported
	Sessions   []SessionItem // present on sessions.list responses
	NextCursor string        // paging cursor for the next sessions.list

	Extra map[string]json.RawMessage
}

// DecodeStatus parses one status payload. Unknown fields never reject the
// message; only top-level malformed JSON is an error.
func DecodeStatus(data []byte) (*StatusEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("protocol: decode status: %w", err)
	}

	ev := &StatusEvent{OK: true, BatteryPct: -1}
	take := func(key string, dst any) {
		raw, ok := fields[key]
		if !ok {
			return
		}
		// A field of unexpected shape is tolerated: it stays in Extra.
		if err := json.Unmarshal(raw, dst); err == nil {
			delete(fields, key)
		}
	}

	take("cmd", &ev.Cmd)
	take("ok", &ev.OK)
	take("error", &ev.Error)
	take("sessionId", &ev.SessionID)
	take("mode", &ev.Mode)
	take("batteryPct", &ev.BatteryPct)
	take("sessions", &ev.Sessions)
	take("nextCursor", &ev.NextCursor)

	if len(fields) > 0 {
		ev.Extra = fields
	}
	return ev, nil
}
