package protocol

import "strings"

// unknownLift is reported when a session file name does not carry a lift
// segment. The file name format is a firmware contract; malformed names
// degrade rather than fail.
const unknownLift = "Unknown"

// SessionItem is one entry of a sessions.list response. Size and Mtime come
// from the device's storage listing; the lift name is encoded in the file
// name itself.
type SessionItem struct {
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Mtime    int64  `json:"mtime"` // epoch ms
}

// LiftName extracts the lift from the file name, which the firmware writes
// as "<f0>-<f1>-<f2>-<f3>-<liftName>-...". Only the 5th dash-delimited
// segment is consumed; anything else about the name is opaque.
func (s SessionItem) LiftName() string {
	parts := strings.Split(s.FileName, "-")
	if len(parts) < 5 || parts[4] == "" {
		return unknownLift
	}
	return parts[4]
}
