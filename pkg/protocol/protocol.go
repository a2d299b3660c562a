package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CommandPrefix marks a chat-style command. The prefix is optional on
// the control socket, where bare command words are accepted too.
const CommandPrefix = "!"

// Command is one parsed control command.
type Command struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// Response represents a response from the radio daemon.
type Response struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Status represents the daemon status as reported over the wire.
type Status struct {
	Streaming    bool      `json:"streaming"`
	FrequencyMHz float64   `json:"frequency_mhz"`
	Mode         string    `json:"mode"`
	Preset       string    `json:"preset,omitempty"`
	GainDB       float64   `json:"gain_db"`
	Squelch      float64   `json:"squelch"`
	Volume       float64   `json:"volume"`
	Listeners    int       `json:"listeners"`
	Uptime       string    `json:"uptime"`
	StartTime    time.Time `json:"start_time"`
	Version      string    `json:"version"`
}

// ParseCommand parses a command line into a Command. The leading "!"
// is stripped when present and the command word is lowercased; the
// remaining whitespace-separated fields become arguments.
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, CommandPrefix)
	if text == "" {
		return nil, fmt.Errorf("empty command")
	}

	fields := strings.Fields(text)
	return &Command{
		Name: strings.ToLower(fields[0]),
		Args: fields[1:],
	}, nil
}

// String converts a Response to its JSON wire form.
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response carrying data.
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewTextResponse creates a successful response with a human message.
func NewTextResponse(message string) *Response {
	return &Response{
		Success: true,
		Message: message,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// Protocol commands
const (
	CmdJoin        = "join"
	CmdListPresets = "listpresets"
	CmdPreset      = "preset"
	CmdFM          = "fm"
	CmdMode        = "mode"
	CmdVol         = "vol"
	CmdSquelch     = "squelch"
	CmdGain        = "gain"
	CmdBW          = "bw"
	CmdStop        = "stop"
	CmdRFInfo      = "rfinfo"
	CmdStatus      = "status"
	CmdHistory     = "history"
	CmdHelp        = "help"
	CmdPing        = "ping"
)
