package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/broadphase/replication"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

type connLogger struct {
	remoteAddr      string
	userAgent       string
	summaryInterval time.Duration

	mutex     sync.Mutex
	frames    int
	keyframes int
	bytes     int
	lastSeq   uint64
}

func newConnLogger(r *http.Request, summaryInterval time.Duration) *connLogger {
	return &connLogger{
		remoteAddr:      r.RemoteAddr,
		userAgent:       r.UserAgent(),
		summaryInterval: summaryInterval,
	}
}

func (l *connLogger) connected() {
	logs.WithTag("remote_addr", l.remoteAddr).
		WithTag("user_agent", l.userAgent).
		Info("new client is connected")
}

func (l *connLogger) disconnected() {
	l.logSummary()
	logs.WithTag("remote_addr", l.remoteAddr).
		Info("client disconnected")
}

func (l *connLogger) sent(f replication.Frame) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.frames++
	if f.Keyframe {
		l.keyframes++
	}
	l.bytes += len(f.Payload)
	l.lastSeq = f.Seq
}

func (l *connLogger) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(l.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			l.logSummary()
		}
	}
}

func (l *connLogger) logSummary() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.frames == 0 {
		return
	}

	logs.WithTag("remote_addr", l.remoteAddr).
		WithTag("time_interval", l.summaryInterval).
		WithTag("frames", l.frames).
		WithTag("keyframes", l.keyframes).
		WithTag("payload_bytes", l.bytes).
		WithTag("last_seq", l.lastSeq).
		Info("outbound frame summary")

	l.frames = 0
	l.keyframes = 0
	l.bytes = 0
}
