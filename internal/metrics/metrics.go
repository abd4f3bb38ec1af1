// Package metrics 汇总 Prometheus 指标：HTTP、任务队列以及业务扇出。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gigboard"

// 推送结果标签。
const (
	PushDelivered = "delivered"
	PushDropped   = "dropped"
	PushNoRoom    = "no_subscriber"
)

var (
	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_created_total",
			Help:      "按类型统计的通知创建数量。",
		},
		[]string{"type"},
	)

	notificationsDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_deduplicated_total",
			Help:      "因去重键命中而跳过的通知数量。",
		},
	)

	realtimePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "pushes_total",
			Help:      "实时推送次数，按事件与结果统计。",
		},
		[]string{"event", "result"},
	)

	realtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "当前已认证的实时连接数。",
		},
	)

	sweepRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "jobs_removed_total",
			Help:      "过期清理删除的职位数量。",
		},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "sweep_duration_seconds",
			Help:      "单次过期清理耗时（秒）。",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Handler 暴露 /metrics。
func Handler() http.Handler {
	return promhttp.Handler()
}

func NotificationCreated(notificationType string) {
	notificationsCreated.WithLabelValues(notificationType).Inc()
}

func NotificationDeduplicated() {
	notificationsDeduped.Inc()
}

func RealtimePush(event, result string) {
	realtimePushes.WithLabelValues(event, result).Inc()
}

func ConnectionOpened() { realtimeConnections.Inc() }

func ConnectionClosed() { realtimeConnections.Dec() }

// SweepCompleted 记录一次清理的耗时与删除数量。
func SweepCompleted(removed int, elapsed time.Duration) {
	sweepRemoved.Add(float64(removed))
	sweepDuration.Observe(elapsed.Seconds())
}
