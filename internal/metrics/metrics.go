// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RewardGrants = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftbox",
		Name:      "reward_grants_total",
		Help:      "Reward grant attempts by channel and outcome.",
	}, []string{"channel", "outcome"})

	BoosterPurchases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftbox",
		Name:      "booster_purchases_total",
		Help:      "Booster purchase attempts by outcome.",
	}, []string{"outcome"})

	BoosterUses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "giftbox",
		Name:      "booster_uses_total",
		Help:      "Booster use attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	ChainVerification = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "giftbox",
		Name:      "chain_verification_seconds",
		Help:      "Duration of on-chain payment verification.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"reason"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "giftbox",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(RewardGrants, BoosterPurchases, BoosterUses, ChainVerification, HTTPRequestDuration)
}

// ObserveVerification records how long a verification took. An empty reason means verified.
func ObserveVerification(reason string, started time.Time) {
	if reason == "" {
		reason = "verified"
	}
	ChainVerification.WithLabelValues(reason).Observe(time.Since(started).Seconds())
}

// ObserveRequest records one HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
