package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	t.Run("Bare Command", func(t *testing.T) {
		cmd, err := ParseCommand("status")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Name != "status" {
			t.Errorf("Expected name status, got %s", cmd.Name)
		}
		if len(cmd.Args) != 0 {
			t.Errorf("Expected no args for status, got %d", len(cmd.Args))
		}
	})

	t.Run("Prefixed Command", func(t *testing.T) {
		cmd, err := ParseCommand("!fm 154.1075")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Name != CmdFM {
			t.Errorf("Expected name fm, got %s", cmd.Name)
		}
		if len(cmd.Args) != 1 || cmd.Args[0] != "154.1075" {
			t.Errorf("Expected args [154.1075], got %v", cmd.Args)
		}
	})

	t.Run("Multiple Args", func(t *testing.T) {
		cmd, err := ParseCommand("preset navfire")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Name != CmdPreset {
			t.Errorf("Expected name preset, got %s", cmd.Name)
		}
		if len(cmd.Args) != 1 || cmd.Args[0] != "navfire" {
			t.Errorf("Expected args [navfire], got %v", cmd.Args)
		}
	})

	t.Run("Case Insensitive Name", func(t *testing.T) {
		cmd, err := ParseCommand("!PRESET NavFire")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Name != "preset" {
			t.Errorf("Expected lowercase preset, got %s", cmd.Name)
		}
		// Arguments keep their case: preset names are looked up as-is.
		if cmd.Args[0] != "NavFire" {
			t.Errorf("Expected arg case preserved, got %s", cmd.Args[0])
		}
	})

	t.Run("Whitespace Handling", func(t *testing.T) {
		cmd, err := ParseCommand("  !vol   0.5  ")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Name != CmdVol {
			t.Errorf("Expected name vol, got %s", cmd.Name)
		}
		if len(cmd.Args) != 1 || cmd.Args[0] != "0.5" {
			t.Errorf("Expected args [0.5], got %v", cmd.Args)
		}
	})

	t.Run("Simple Commands", func(t *testing.T) {
		commands := []string{"join", "listpresets", "stop", "rfinfo", "help", "ping"}
		for _, cmdText := range commands {
			t.Run(cmdText, func(t *testing.T) {
				cmd, err := ParseCommand("!" + cmdText)
				if err != nil {
					t.Fatalf("Expected no error for %s, got: %v", cmdText, err)
				}
				if cmd.Name != cmdText {
					t.Errorf("Expected name %s, got %s", cmdText, cmd.Name)
				}
				if len(cmd.Args) != 0 {
					t.Errorf("Expected no args for %s, got %d", cmdText, len(cmd.Args))
				}
			})
		}
	})

	t.Run("Empty Command", func(t *testing.T) {
		if _, err := ParseCommand(""); err == nil {
			t.Error("Expected error for empty command")
		}
		if _, err := ParseCommand("   !   "); err == nil {
			t.Error("Expected error for prefix with no command word")
		}
	})
}

func TestResponse(t *testing.T) {
	t.Run("Success Response JSON", func(t *testing.T) {
		data := map[string]interface{}{
			"frequency_mhz": 154.1075,
			"mode":          "nfm",
			"streaming":     true,
		}
		resp := NewSuccessResponse(data)

		if !resp.Success {
			t.Error("Expected success to be true")
		}
		if resp.Error != "" {
			t.Errorf("Expected no error, got %s", resp.Error)
		}

		jsonStr := resp.String()
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			t.Fatalf("Failed to parse JSON: %v", err)
		}

		if parsed["success"] != true {
			t.Error("Expected success true in JSON")
		}
		if parsed["data"] == nil {
			t.Error("Expected data in JSON")
		}
	})

	t.Run("Text Response JSON", func(t *testing.T) {
		resp := NewTextResponse("tuned to 154.1075 MHz")
		if !resp.Success {
			t.Error("Expected success to be true")
		}

		jsonStr := resp.String()
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			t.Fatalf("Failed to parse JSON: %v", err)
		}
		if parsed["message"] != "tuned to 154.1075 MHz" {
			t.Errorf("Expected message in JSON, got %v", parsed["message"])
		}
	})

	t.Run("Error Response JSON", func(t *testing.T) {
		resp := NewErrorResponse("unknown preset")

		if resp.Success {
			t.Error("Expected success to be false")
		}
		if resp.Error != "unknown preset" {
			t.Errorf("Expected error 'unknown preset', got %s", resp.Error)
		}
		if resp.Data != nil {
			t.Errorf("Expected no data for error response, got %v", resp.Data)
		}

		jsonStr := resp.String()
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			t.Fatalf("Failed to parse JSON: %v", err)
		}

		if parsed["success"] != false {
			t.Error("Expected success false in JSON")
		}
		if parsed["error"] != "unknown preset" {
			t.Errorf("Expected error in JSON, got %v", parsed["error"])
		}
	})

	t.Run("Empty Success Response", func(t *testing.T) {
		resp := NewSuccessResponse(nil)
		jsonStr := resp.String()

		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			t.Fatalf("Failed to parse JSON: %v", err)
		}
		if parsed["success"] != true {
			t.Error("Expected success true in JSON")
		}
	})
}

func TestStatus(t *testing.T) {
	t.Run("Status JSON Serialization", func(t *testing.T) {
		startTime := time.Now()
		status := Status{
			Streaming:    true,
			FrequencyMHz: 154.1075,
			Mode:         "nfm",
			Preset:       "navfire",
			GainDB:       29.7,
			Squelch:      0.02,
			Volume:       1.0,
			Listeners:    2,
			Uptime:       "1h30m",
			StartTime:    startTime,
			Version:      "0.1.0",
		}

		data, err := json.Marshal(status)
		if err != nil {
			t.Fatalf("Failed to marshal status: %v", err)
		}

		var parsed Status
		if err := json.Unmarshal(data, &parsed); err != nil {
			t.Fatalf("Failed to unmarshal status: %v", err)
		}

		if !parsed.Streaming {
			t.Error("Expected streaming true")
		}
		if parsed.FrequencyMHz != 154.1075 {
			t.Errorf("Expected frequency 154.1075, got %f", parsed.FrequencyMHz)
		}
		if parsed.Mode != "nfm" {
			t.Errorf("Expected mode nfm, got %s", parsed.Mode)
		}
		if parsed.Preset != "navfire" {
			t.Errorf("Expected preset navfire, got %s", parsed.Preset)
		}
		if parsed.Listeners != 2 {
			t.Errorf("Expected 2 listeners, got %d", parsed.Listeners)
		}
	})
}

func TestProtocolIntegration(t *testing.T) {
	t.Run("Complete Flow", func(t *testing.T) {
		cmd, err := ParseCommand("!preset navfire")
		if err != nil {
			t.Fatalf("Failed to parse command: %v", err)
		}

		responseData := map[string]interface{}{
			"preset":        cmd.Args[0],
			"frequency_mhz": 154.1075,
			"mode":          "nfm",
		}
		resp := NewSuccessResponse(responseData)
		jsonStr := resp.String()

		if !strings.Contains(jsonStr, "navfire") {
			t.Error("Expected 'navfire' in response JSON")
		}
		if !strings.Contains(jsonStr, "154.1075") {
			t.Error("Expected frequency in response JSON")
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			t.Fatalf("Response is not valid JSON: %v", err)
		}
	})

	t.Run("Error Flow", func(t *testing.T) {
		resp := NewErrorResponse("invalid frequency: 999.0000 MHz outside tunable range")
		jsonStr := resp.String()

		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			t.Fatalf("Error response is not valid JSON: %v", err)
		}

		if parsed["success"] != false {
			t.Error("Expected success false for error response")
		}
		if !strings.Contains(parsed["error"].(string), "invalid frequency") {
			t.Error("Expected error message in response")
		}
	})
}
