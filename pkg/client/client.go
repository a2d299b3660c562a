package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/bgvfd/radiod/pkg/protocol"
)

// SocketClient represents a client connection to the radio daemon
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// NewSocketClient creates a new socket client
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SendCommand sends a command line and returns the parsed response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	_, err = conn.Write([]byte(cmd + "\n"))
	if err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return nil, fmt.Errorf("no response received")
	}

	responseText := scanner.Text()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}

	var response protocol.Response
	if err := json.Unmarshal([]byte(responseText), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &response, nil
}

// GetStatus gets the current daemon status
func (c *SocketClient) GetStatus() (*protocol.Status, error) {
	resp, err := c.SendCommand(protocol.CmdStatus)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("status error: %s", resp.Error)
	}

	statusData, ok := resp.Data["status"]
	if !ok {
		return nil, fmt.Errorf("status not found in response")
	}

	// Convert to JSON and back to parse properly
	statusJSON, _ := json.Marshal(statusData)
	var status protocol.Status
	if err := json.Unmarshal(statusJSON, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}

	return &status, nil
}

// Tune tunes the radio to a frequency in MHz
func (c *SocketClient) Tune(mhz float64) error {
	resp, err := c.SendCommand(fmt.Sprintf("%s %.4f", protocol.CmdFM, mhz))
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("tune error: %s", resp.Error)
	}
	return nil
}

// ApplyPreset tunes the radio to a named preset
func (c *SocketClient) ApplyPreset(name string) error {
	resp, err := c.SendCommand(fmt.Sprintf("%s %s", protocol.CmdPreset, name))
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("preset error: %s", resp.Error)
	}
	return nil
}

// ListPresets returns the configured preset names and frequencies
func (c *SocketClient) ListPresets() (map[string]float64, error) {
	resp, err := c.SendCommand(protocol.CmdListPresets)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("listpresets error: %s", resp.Error)
	}

	presets := make(map[string]float64, len(resp.Data))
	for name, mhz := range resp.Data {
		f, ok := mhz.(float64)
		if !ok {
			return nil, fmt.Errorf("unexpected preset value for %q", name)
		}
		presets[name] = f
	}
	return presets, nil
}

// GetHistory returns recent tuning history lines
func (c *SocketClient) GetHistory(limit int) (string, error) {
	cmd := protocol.CmdHistory
	if limit > 0 {
		cmd = fmt.Sprintf("%s %d", protocol.CmdHistory, limit)
	}

	resp, err := c.SendCommand(cmd)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("history error: %s", resp.Error)
	}
	return resp.Message, nil
}

// Stop stops audio streaming
func (c *SocketClient) Stop() error {
	resp, err := c.SendCommand(protocol.CmdStop)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("stop error: %s", resp.Error)
	}
	return nil
}

// Ping tests the connection
func (c *SocketClient) Ping() error {
	resp, err := c.SendCommand(protocol.CmdPing)
	if err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("ping error: %s", resp.Error)
	}

	return nil
}

// IsConnected tests if the daemon is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}
