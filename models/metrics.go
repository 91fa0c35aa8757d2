package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	colliderHandleCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collider_handle_count",
		Help: "The number of collider handles handed out and not released.",
	})

	colliderHandleCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collider_handle_count_total",
		Help: "The total number of collider handles handed out.",
	}, []string{"reused"})
)

func instrumentNewHandle(reused bool, live int) {
	label := "false"
	if reused {
		label = "true"
	}

	colliderHandleCountTotal.
		With(prometheus.Labels{"reused": label}).
		Inc()
	colliderHandleCount.Set(float64(live))
}

func instrumentReuseHandle(live int) {
	colliderHandleCount.Set(float64(live))
}
