package audit

import (
	"os"
	"path/filepath"
	"time"
)

// CleanupStats reports what a retention pass removed
type CleanupStats struct {
	FilesRemoved int
	BytesFreed   int64
}

// Cleanup removes rotated trail files older than the retention window.
// The file currently being written is never removed.
func (t *Trail) Cleanup() error {
	_, err := t.CleanupWithStats()
	return err
}

// CleanupWithStats removes expired files and reports what was freed
func (t *Trail) CleanupWithStats() (CleanupStats, error) {
	t.mu.Lock()
	current := t.file.Name()
	retention := t.config.RetentionDays
	t.mu.Unlock()

	if retention <= 0 {
		return CleanupStats{}, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retention)

	var stats CleanupStats
	for _, path := range trailFiles(t.dir) {
		if filepath.Clean(path) == filepath.Clean(current) {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			return stats, err
		}
		stats.FilesRemoved++
		stats.BytesFreed += info.Size()
	}
	return stats, nil
}

// Stats summarizes the trail directory
type Stats struct {
	FileCount    int
	TotalBytes   int64
	LastSequence int64
}

// GetStats reports trail size and the last assigned sequence
func (t *Trail) GetStats() Stats {
	stats := StatsFromDir(t.dir)
	stats.LastSequence = t.Sequence()
	return stats
}

// StatsFromDir summarizes a trail directory without opening a writer
func StatsFromDir(dir string) Stats {
	stats := Stats{LastSequence: loadLastSequence(dir)}
	for _, path := range trailFiles(dir) {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		stats.FileCount++
		stats.TotalBytes += info.Size()
	}
	return stats
}
