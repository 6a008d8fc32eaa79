package engine

import (
	"math"
	"time"

	"collateral-refund-go/internal/models"
)

// retryDelay computes the wait before the next refund attempt after the given
// number of failed attempts, growing exponentially up to the configured cap.
func retryDelay(cfg models.MonitorConfig, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}

	multiplier := cfg.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(cfg.BackoffInitial) * math.Pow(multiplier, float64(failures-1))
	if cfg.BackoffCap > 0 && delay > float64(cfg.BackoffCap) {
		return cfg.BackoffCap
	}
	return time.Duration(delay)
}
