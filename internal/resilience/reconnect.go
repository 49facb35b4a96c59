package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/beliczki/transcriber/internal/observability"
)

// ReconnectConfig bounds a reconnection loop.
type ReconnectConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration
}

func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// Reconnect attempts fn with exponential backoff until it succeeds, the
// attempt budget runs out, or ctx is cancelled. Used by the engine adapters
// to re-establish their streaming connections.
func Reconnect(ctx context.Context, fn func() error, config *ReconnectConfig) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}
	logger := observability.GetLogger()

	backoff := config.Backoff
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info().Int("attempts", attempt+1).Msg("Reconnected")
			}
			return nil
		}

		if attempt < config.MaxAttempts-1 {
			logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", config.MaxAttempts).
				Dur("backoff", backoff).
				Msg("Reconnection attempt failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxBackoff {
					backoff = config.MaxBackoff
				}
			}
		}
	}
	return fmt.Errorf("failed to reconnect after %d attempts", config.MaxAttempts)
}
