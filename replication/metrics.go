package replication

import (
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel  = "error_type"
	keyframeLabel = "keyframe"
)

var (
	framesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replication_frames_captured",
		Help: "The number of replication frames captured.",
	}, []string{
		keyframeLabel,
	})

	frameBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replication_frame_bytes",
		Help:    "The size of the replication frame payloads.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{
		keyframeLabel,
	})

	framesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replication_frames_applied",
		Help: "The number of replication frames applied by replicas.",
	})

	applyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replication_apply_errors",
		Help: "The errors that occured while applying a replication frame.",
	}, []string{
		errTypeLabel,
	})
)

func instrumentCapture(f Frame) {
	keyframe := strconv.FormatBool(f.Keyframe)

	framesCaptured.With(prometheus.Labels{
		keyframeLabel: keyframe,
	}).Inc()

	frameBytes.With(prometheus.Labels{
		keyframeLabel: keyframe,
	}).Observe(float64(len(f.Payload)))
}

func instrumentApply(err error) {
	if err == nil {
		framesApplied.Inc()
		return
	}

	applyErrors.With(prometheus.Labels{
		errTypeLabel: errors.Type(err),
	}).Inc()
}
