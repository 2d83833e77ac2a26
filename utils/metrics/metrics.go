package metrics

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// Submission outcomes
const (
	OutcomeSubmitted = "submitted"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// BotMetrics tracks the per-block pipeline
type BotMetrics struct {
	BlocksProcessed  prometheus.Counter
	BlocksSuperseded prometheus.Counter
	FetchErrors      *prometheus.CounterVec
	Opportunities    *prometheus.CounterVec
	Submissions      *prometheus.CounterVec
	BestNetProfit    prometheus.Gauge
	GasPrice         prometheus.Histogram
	ProcessTime      prometheus.Histogram
	FetchTime        prometheus.Histogram
}

// NewBotMetrics registers the bot metrics on reg. A nil reg uses a private
// registry so tests can create as many as they like.
func NewBotMetrics(namespace string, reg prometheus.Registerer) *BotMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &BotMetrics{
		BlocksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks evaluated to completion",
		}),
		BlocksSuperseded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_superseded_total",
			Help:      "Total number of block passes abandoned for a newer head",
		}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Total number of failed pool snapshot reads",
		}, []string{"source"}),
		Opportunities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Total number of profitable opportunities found",
		}, []string{"direction"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of execution plans by outcome",
		}, []string{"outcome"}),
		BestNetProfit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_net_profit_wei",
			Help:      "Net profit of the last submitted plan in wei",
		}),
		GasPrice: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gas_price_wei",
			Help:      "Gas price distribution",
			Buckets:   prometheus.ExponentialBuckets(1e9, 2, 15), // Start at 1 gwei
		}),
		ProcessTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_process_seconds",
			Help:      "Time taken to process one block",
			Buckets:   prometheus.DefBuckets,
		}),
		FetchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_seconds",
			Help:      "Time taken to read all pool snapshots of a block",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}
}

// WeiToFloat converts a wei amount for a gauge or histogram
func WeiToFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}

// CounterValue reads the current value of a counter
func CounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// HistogramCount reads the number of observations of a histogram
func HistogramCount(h prometheus.Histogram) uint64 {
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		return 0
	}
	return m.GetHistogram().GetSampleCount()
}

// Serve exposes gatherer on addr under /metrics until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
