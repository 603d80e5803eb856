package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_queries_total",
			Help: "Total chat queries by mode and final status",
		},
		[]string{"mode", "status"},
	)

	StreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_stream_duration_seconds",
			Help:    "Wall time of a chat stream from request to done event",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"mode"},
	)

	TokensStreamed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_tokens_streamed_total",
			Help: "Tokens forwarded to clients by model tag",
		},
		[]string{"model"},
	)

	RateLimitRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_rejections_total",
			Help: "Requests rejected by the daily query ceiling",
		},
	)

	RetrievalDocs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_retrieval_docs",
			Help:    "Documents returned per similarity search",
			Buckets: prometheus.LinearBuckets(0, 2, 11),
		},
	)

	PersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_persist_failures_total",
			Help: "Answer records that could not be written after retries",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		QueryTotal,
		StreamDuration,
		TokensStreamed,
		RateLimitRejections,
		RetrievalDocs,
		PersistFailures,
	)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
