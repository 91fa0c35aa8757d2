package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/broadphase/replication"
	"github.com/aukilabs/broadphase/soak"
	bwebsocket "github.com/aukilabs/broadphase/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

// newReplicationServer serves a replication stream fed by a soak world every
// millisecond.
func newReplicationServer(t *testing.T) *httptest.Server {
	hub := bwebsocket.NewHub()

	publisher, err := replication.NewPublisher(replication.PublisherOptions{KeyframeInterval: 5})
	require.NoError(t, err)

	world := soak.NewWorld(soak.Options{
		ColliderCount: 20,
		ChurnRate:     0.1,
		Seed:          1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				world.Step()
				f, err := publisher.Capture(world.Root())
				if err != nil {
					return
				}
				hub.Publish(f)
			}
		}
	}()

	server := httptest.NewServer(bwebsocket.Handler(hub, bwebsocket.HandlerOptions{}))
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		hub.Close()
		server.Close()
		publisher.Close()
	})
	return server
}

func TestRun(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := newReplicationServer(t)

		res, err := Run(context.Background(), RunOptions{
			FromEndpoint: "http://localhost",
			ToEndpoint:   server.URL,
			Frames:       12,
			Timeout:      time.Second * 5,
		})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)
		require.Equal(t, 12, res.Frames)
		require.NotZero(t, res.PayloadBytes)
		require.NotZero(t, res.Proxies)
		require.Empty(t, res.Error)
	})

	t.Run("offline", func(t *testing.T) {
		res, err := Run(context.Background(), RunOptions{
			ToEndpoint: "http://127.0.0.1:1",
			Timeout:    time.Second,
		})
		require.Error(t, err)
		require.Equal(t, StatusFailed, res.Status)
		require.Zero(t, res.Frames)
		require.NotEmpty(t, res.Error)
	})
}

func TestHandleSmokeTest(t *testing.T) {
	t.Run("smoke test success", func(t *testing.T) {
		server := newReplicationServer(t)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		var gotResult bool
		smokeTest := HandleSmokeTest(ctx, Options{
			Endpoint: "http://localbroadphase",
			SendResult: func(_ context.Context, res Results) error {
				require.Equal(t, "http://localbroadphase", res.FromEndpoint)
				require.Equal(t, server.URL, res.ToEndpoint)
				require.Equal(t, StatusSuccess, res.Status)
				require.Equal(t, 3, res.Frames)
				gotResult = true
				return nil
			},
		})

		body, err := json.Marshal(Request{
			Endpoint: server.URL,
			Frames:   3,
			Timeout:  time.Second * 2,
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "http://localbroadphase", bytes.NewBuffer(body))
		smokeTest.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		<-ctx.Done()
		require.True(t, gotResult)
	})

	t.Run("bad request", func(t *testing.T) {
		smokeTest := HandleSmokeTest(context.Background(), Options{
			SendResult: func(context.Context, Results) error {
				t.Error("unexpected result")
				return nil
			},
		})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "http://localbroadphase", bytes.NewBufferString("{}"))
		smokeTest.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
