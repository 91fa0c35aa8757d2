package main

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/broadphase/featureflag"
	"github.com/aukilabs/broadphase/replication"
	"github.com/aukilabs/broadphase/soak"
	bwebsocket "github.com/aukilabs/broadphase/websocket"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/prometheus/client_golang/prometheus"
)

type soakStatus struct {
	Stats       soak.Stats `json:"stats"`
	Seq         uint64     `json:"seq"`
	Replicated  bool       `json:"replicated"`
	Subscribers int        `json:"subscribers"`
}

// soakLoop steps the world once per frame and publishes its replication
// frames.
type soakLoop struct {
	frameDuration time.Duration
	flags         featureflag.FeatureFlag
	world         *soak.World
	publisher     *replication.Publisher
	replica       *replication.Replica
	hub           *bwebsocket.Hub

	mutex  sync.Mutex
	last   soakStatus
	framed bool
}

func (l *soakLoop) run(ctx context.Context) error {
	ticker := time.NewTicker(l.frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := l.frame(); err != nil {
				return err
			}
		}
	}
}

func (l *soakLoop) frame() error {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		frameLatency.Observe(elapsed.Seconds())
		if elapsed > l.frameDuration {
			frameOverrun.Inc()
		}
	}()

	stats := l.world.Step()
	worldColliders.Set(float64(stats.Colliders))
	worldRegions.Set(float64(stats.Regions))

	l.flags.IfSet(featureflag.FlagCheckFreeList, func() {
		if err := l.world.CheckFreeList(); err != nil {
			instrumentSoakError(err)
			logs.WithTag("frame", stats.Frame).Error(err)
		}
	})

	f, err := l.publisher.Capture(l.world.Root())
	if err != nil {
		return errors.New("capturing frame failed").
			WithTag("frame", stats.Frame).
			Wrap(err)
	}

	replicated := false
	l.flags.IfNotSet(featureflag.FlagDisableReplicaVerification, func() {
		if err := l.replica.Apply(f); err != nil {
			instrumentSoakError(err)
			logs.WithTag("frame", stats.Frame).
				WithTag("seq", f.Seq).
				Warn(err)
			return
		}
		replicated = true
	})

	l.flags.IfNotSet(featureflag.FlagDisableStreaming, func() {
		l.hub.Publish(f)
	})

	l.mutex.Lock()
	l.last = soakStatus{
		Stats:       stats,
		Seq:         f.Seq,
		Replicated:  replicated,
		Subscribers: l.hub.Len(),
	}
	l.framed = true
	l.mutex.Unlock()

	logs.WithTag("frame", stats.Frame).
		WithTag("seq", f.Seq).
		WithTag("keyframe", f.Keyframe).
		WithTag("payload_bytes", len(f.Payload)).
		WithTag("stats", stats).
		Debug("frame published")
	return nil
}

func (l *soakLoop) ready() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.framed
}

func (l *soakLoop) status() soakStatus {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.last
}

func instrumentSoakError(err error) {
	soakErrors.With(prometheus.Labels{
		"error_type": errors.Type(err),
	}).Inc()
}
