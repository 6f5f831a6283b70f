// Package protocol implements the JSON command envelope spoken over the
// LiftLink BLE link: outbound commands on the command-write channel and
// status/notification payloads on the status-notify channel. The protocol
// carries one in-flight request per link; responses correlate by command
// kind, not by request id.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Command names understood by the sensor firmware.
const (
	CmdPing          = "ping"
	CmdCapabilities  = "capabilities.get"
	CmdTimeSync      = "time.sync"
	CmdModeSet       = "mode.set"
	CmdSessionStart  = "session.start"
	CmdSessionEnd    = "session.end"
	CmdSessionsList  = "sessions.list"
	CmdSessionsClear = "sessions.clear"
	CmdSessionStream = "session.stream"
)

// Envelope is the wire structure carrying one command.
type Envelope struct {
	Cmd  string         `json:"cmd"`
	Body map[string]any `json:"body"`
}

// Command is an outbound request before encoding. Body holds the
// command-specific fields; phoneEpochMs is filled in at encode time when
// the command did not supply one.
type Command struct {
	Name string
	Body map[string]any
}

// Ping checks link liveness.
func Ping() Command {
	return Command{Name: CmdPing, Body: map[string]any{}}
}

// CapabilitiesGet asks the sensor for its capability report.
func CapabilitiesGet() Command {
	return Command{Name: CmdCapabilities, Body: map[string]any{}}
}

// TimeSync pushes the phone clock to the sensor.
func TimeSync(phoneEpochMs int64) Command {
	return Command{Name: CmdTimeSync, Body: map[string]any{"phoneEpochMs": phoneEpochMs}}
}

// ModeSet switches the sensor's operating mode.
func ModeSet(mode string) Command {
	return Command{Name: CmdModeSet, Body: map[string]any{"mode": mode}}
}

// SessionStart begins recording a session for the given lift. The start
// time defaults to the encoding-time clock.
func SessionStart(lift string) Command {
	return Command{Name: CmdSessionStart, Body: map[string]any{"lift": lift}}
}

// SessionStartAt begins recording a session with an explicit start time.
func SessionStartAt(lift string, at time.Time) Command {
	return Command{Name: CmdSessionStart, Body: map[string]any{
		"lift":         lift,
		"phoneEpochMs": at.UnixMilli(),
	}}
}

// SessionEnd stops the active recording.
func SessionEnd() Command {
	return Command{Name: CmdSessionEnd, Body: map[string]any{}}
}

// SessionsList pages through recorded sessions. Cursor is the opaque value
// from the previous page (empty for the first); limit 0 means the device
// default.
func SessionsList(cursor string, limit int) Command {
	return Command{Name: CmdSessionsList, Body: map[string]any{
		"cursor": cursor,
		"limit":  limit,
	}}
}

// SessionsClear erases all recorded sessions on the sensor.
func SessionsClear() Command {
	return Command{Name: CmdSessionsClear, Body: map[string]any{}}
}

// SessionStream requests streaming of one recorded session.
func SessionStream(sessionID string) Command {
	return Command{Name: CmdSessionStream, Body: map[string]any{"sessionId": sessionID}}
}

// Codec encodes commands and decodes status payloads. Now is swappable for
// tests and defaults to the wall clock.
type Codec struct {
	Now func() time.Time
}

// NewCodec returns a codec using the wall clock.
func NewCodec() *Codec {
	return &Codec{Now: time.Now}
}

// Encode wraps cmd in the wire envelope, populating body.phoneEpochMs with
// the current clock reading unless the command supplied its own.
func (c *Codec) Encode(cmd Command) ([]byte, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("protocol: command has no name")
	}
	body := make(map[string]any, len(cmd.Body)+1)
	for k, v := range cmd.Body {
		body[k] = v
	}
	if _, ok := body["phoneEpochMs"]; !ok {
		now := time.Now
		if c.Now != nil {
			now = c.Now
		}
		body["phoneEpochMs"] = now().UnixMilli()
	}
	data, err := json.Marshal(Envelope{Cmd: cmd.Name, Body: body})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", cmd.Name, err)
	}
	return data, nil
}
