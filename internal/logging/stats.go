package logging

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// LogThroughput emits a human-readable summary of tile cache activity,
// in the same spirit as the original C++ FigCache::printStats.
func LogThroughput(log zerolog.Logger, hits, misses int, diskTime time.Duration, bytesRead uint64) {
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	rate := float64(0)
	if diskTime > 0 {
		rate = float64(bytesRead) / diskTime.Seconds()
	}

	log.Info().
		Int("hits", hits).
		Int("misses", misses).
		Float64("hit_rate_pct", hitRate).
		Dur("disk_time", diskTime).
		Str("throughput", humanize.Bytes(uint64(rate))+"/s").
		Msg("tile cache stats")
}
