package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// UnknownCommandID correlates responses to commands whose id could not be read.
const UnknownCommandID = "unknown"

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DataPayload is published on the data channel.
type DataPayload struct {
	Timestamp   uint32  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Light       uint32  `json:"light"`
}

// StatePayload is published on the state channel. Booleans are sent as 0/1.
type StatePayload struct {
	Timestamp uint32 `json:"timestamp"`
	Mode      int    `json:"mode"`
	Interval  int    `json:"interval"`
	Fan       int    `json:"fan"`
	Light     int    `json:"light"`
	AC        int    `json:"ac"`
}

// InfoPayload is published on the info channel.
type InfoPayload struct {
	Timestamp uint32 `json:"timestamp"`
	ID        string `json:"id"`
	SSID      string `json:"ssid"`
	IP        string `json:"ip"`
	Broker    string `json:"broker"`
	Firmware  string `json:"firmware"`
}

// Response answers exactly one command.
type Response struct {
	CmdID   string `json:"cmd_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Command is one inbound request.
type Command struct {
	ID     string
	Name   string
	Params Params
}

// Params holds the raw command parameters.
type Params map[string]json.RawMessage

type wireCommand struct {
	CmdID   *string         `json:"cmd_id"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

// ParseCommand decodes an inbound payload.
//
// On failure the returned Command still carries the best correlation id
// available: the payload's cmd_id when it was readable, otherwise
// UnknownCommandID.
func ParseCommand(payload []byte) (Command, error) {
	cmd := Command{ID: UnknownCommandID}

	var w wireCommand
	if err := json.Unmarshal(payload, &w); err != nil {
		return cmd, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	if w.CmdID != nil && *w.CmdID != "" {
		cmd.ID = *w.CmdID
	}
	if w.CmdID == nil || *w.CmdID == "" {
		return cmd, fmt.Errorf("%w: missing cmd_id", ErrMalformedCommand)
	}
	if w.Command == "" {
		return cmd, fmt.Errorf("%w: missing command", ErrMalformedCommand)
	}
	cmd.Name = w.Command

	trimmed := bytes.TrimSpace(w.Params)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &cmd.Params); err != nil {
			return cmd, fmt.Errorf("%w: params must be an object", ErrMalformedCommand)
		}
	}
	return cmd, nil
}

// Int reads an integer parameter. Booleans read as 0/1 and numeric strings
// are accepted. A missing key yields def.
func (p Params) Int(key string, def int) (int, error) {
	raw, ok := p[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return def, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		if f, err := n.Float64(); err == nil {
			return int(f), nil
		}
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
	}
	return def, fmt.Errorf("%w: %s must be a number", ErrInvalidParams, key)
}

// String reads a string parameter. A missing key yields def.
func (p Params) String(key, def string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return def, fmt.Errorf("%w: %s must be a string", ErrInvalidParams, key)
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
