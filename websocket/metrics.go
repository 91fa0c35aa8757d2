package websocket

import (
	"strconv"

	"github.com/aukilabs/broadphase/replication"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel  = "error_type"
	keyframeLabel = "keyframe"
)

var (
	wsSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_subscribers",
		Help: "The number of clients subscribed to the replication stream.",
	})

	wsDroppedSubscribers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_dropped_subscribers",
		Help: "The number of clients dropped for not keeping up with the replication stream.",
	})

	wsSentFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_frames",
		Help: "The number of frames sent to WebSocket connections.",
	}, []string{
		keyframeLabel,
	})

	wsSentBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of payload bytes sent to WebSocket connections.",
	})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a frame.",
	}, []string{
		errTypeLabel,
	})
)

func instrumentSubscribers(n int) {
	wsSubscribers.Set(float64(n))
}

func instrumentDroppedSubscriber() {
	wsDroppedSubscribers.Inc()
}

func instrumentSend(f replication.Frame) {
	wsSentFrames.With(prometheus.Labels{
		keyframeLabel: strconv.FormatBool(f.Keyframe),
	}).Inc()
	wsSentBytes.Add(float64(len(f.Payload)))
}

func instrumentSendError(err error) {
	wsSendError.With(prometheus.Labels{
		errTypeLabel: errors.Type(err),
	}).Inc()
}
