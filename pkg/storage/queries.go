package storage

import (
	"fmt"
	"time"
)

// ChannelUsage is aggregate time-on-channel data for one frequency.
type ChannelUsage struct {
	FrequencyHz int64  `json:"frequency_hz"`
	Preset      string `json:"preset,omitempty"`
	TuneCount   int    `json:"tune_count"`
}

// Stats summarizes the history table.
type Stats struct {
	TotalTunes  int        `json:"total_tunes"`
	StoredCount int        `json:"stored_count"`
	LastCleanup *time.Time `json:"last_cleanup,omitempty"`
}

// RecentTunes returns the most recent tune events, newest first.
func (ts *TuneStore) RecentTunes(limit int) ([]TuneEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, timestamp, frequency_hz, mode, preset
		FROM tune_events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
	rows, err := ts.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tune events: %w", err)
	}
	defer rows.Close()

	var events []TuneEvent
	for rows.Next() {
		var e TuneEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.FrequencyHz, &e.Mode, &e.Preset); err != nil {
			return nil, fmt.Errorf("failed to scan tune event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// TopChannels returns the most frequently tuned frequencies.
func (ts *TuneStore) TopChannels(limit int) ([]ChannelUsage, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT frequency_hz, MAX(preset), COUNT(*) AS tunes
		FROM tune_events
		GROUP BY frequency_hz
		ORDER BY tunes DESC
		LIMIT ?
	`
	rows, err := ts.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel usage: %w", err)
	}
	defer rows.Close()

	var usage []ChannelUsage
	for rows.Next() {
		var u ChannelUsage
		if err := rows.Scan(&u.FrequencyHz, &u.Preset, &u.TuneCount); err != nil {
			return nil, fmt.Errorf("failed to scan channel usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// GetStats returns aggregate history statistics.
func (ts *TuneStore) GetStats() (Stats, error) {
	var stats Stats
	err := ts.db.QueryRow("SELECT total_tunes, last_cleanup FROM tune_stats WHERE id = 1").
		Scan(&stats.TotalTunes, &stats.LastCleanup)
	if err != nil {
		return stats, fmt.Errorf("failed to query stats: %w", err)
	}

	if err := ts.db.QueryRow("SELECT COUNT(*) FROM tune_events").Scan(&stats.StoredCount); err != nil {
		return stats, fmt.Errorf("failed to count events: %w", err)
	}
	return stats, nil
}
