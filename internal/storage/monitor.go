package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DiskMonitor periodically samples a Badger-backed DB's on-disk size and
// warns as it approaches a configured ceiling (spec §4.4 disk monitoring).
type DiskMonitor struct {
	db        *BadgerDB
	maxBytes  int64
	interval  time.Duration
	log       zerolog.Logger
}

// NewDiskMonitor creates a monitor that warns once usage crosses 90% of
// maxBytes and logs an error once it is exceeded.
func NewDiskMonitor(db *BadgerDB, maxBytes int64, interval time.Duration, log zerolog.Logger) *DiskMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DiskMonitor{db: db, maxBytes: maxBytes, interval: interval, log: log}
}

// Run blocks, sampling disk usage until ctx is canceled.
func (m *DiskMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *DiskMonitor) sample() {
	used := m.db.DiskUsageBytes()
	if m.maxBytes <= 0 {
		return
	}
	ratio := float64(used) / float64(m.maxBytes)
	switch {
	case ratio >= 1.0:
		m.log.Error().Int64("used_bytes", used).Int64("max_bytes", m.maxBytes).Msg("storage over configured limit")
	case ratio >= 0.9:
		m.log.Warn().Int64("used_bytes", used).Int64("max_bytes", m.maxBytes).Float64("ratio", ratio).Msg("storage approaching configured limit")
	}
}
