package ratelimit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/library-chat/backend/internal/metrics"
	"github.com/library-chat/backend/pkg/utils"
)

const window = 24 * time.Hour

// CounterStore increments the counter behind key, starting a fresh window
// on first increment, and returns the new count.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type Config struct {
	Store     CounterStore
	MaxPerDay int
	Logger    *zap.Logger
}

// Middleware enforces the per-client daily query ceiling. Comparison
// requests are exempt: they run under a separate cost model. A store
// failure fails open so Redis downtime never takes chat down with it.
func Middleware(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if isComparison(c.Body()) {
			return c.Next()
		}

		key := "queries:" + utils.Fingerprint(c.IP())

		count, err := cfg.Store.Incr(c.Context(), key, window)
		if err != nil {
			cfg.Logger.Warn("Rate limit store unavailable, allowing request",
				zap.Error(err),
			)
			return c.Next()
		}

		if count > int64(cfg.MaxPerDay) {
			cfg.Logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.Int64("count", count),
				zap.Int("limit", cfg.MaxPerDay),
			)
			metrics.RateLimitRejections.Inc()
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func isComparison(body []byte) bool {
	var probe struct {
		ModelA string `json:"modelA"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.ModelA != ""
}
