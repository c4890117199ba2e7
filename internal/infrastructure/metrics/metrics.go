// Package metrics 暴露 Prometheus 指标
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// OrdersSubmitted 按方向统计已提交的委托数
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yfollow_orders_submitted_total",
			Help: "Orders submitted by side",
		},
		[]string{"side"},
	)

	// ReordersSubmitted 统计撤单重报后补发的委托数
	ReordersSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "yfollow_reorders_submitted_total",
			Help: "Orders resubmitted after partial cancellation",
		},
	)

	// BatchesCompleted 按批次号统计已完成的跟单批次
	BatchesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yfollow_batches_completed_total",
			Help: "Follow batches marked done",
		},
		[]string{"batch"},
	)

	// FetchResults 按结果统计策略页抓取次数
	FetchResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yfollow_fetch_results_total",
			Help: "Strategy page fetches by outcome (ok|stale|error)",
		},
		[]string{"outcome"},
	)

	// CancelsSubmitted 统计已发出的撤单请求数
	CancelsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "yfollow_cancels_submitted_total",
			Help: "Cancel requests submitted",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, ReordersSubmitted)
	prometheus.MustRegister(BatchesCompleted, FetchResults, CancelsSubmitted)
}

// Serve 在 addr 上启动 /metrics 与 /healthz, addr 为空则不启动
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}
