package smoketest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/broadphase/replication"
	bwebsocket "github.com/aukilabs/broadphase/websocket"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	defaultFrames  = 10
	defaultTimeout = time.Second * 10
)

// Request asks to follow the replication stream of Endpoint.
type Request struct {
	Endpoint string        `json:"endpoint"`
	Frames   int           `json:"frames"`
	Timeout  time.Duration `json:"timeout"`
}

type Results struct {
	FromEndpoint    string  `json:"from_endpoint"`
	ToEndpoint      string  `json:"to_endpoint"`
	Status          string  `json:"status"`
	Frames          int     `json:"frames"`
	PayloadBytes    int     `json:"payload_bytes"`
	Proxies         int     `json:"proxies"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

type Options struct {
	Endpoint   string
	UserAgent  string
	SendResult func(context.Context, Results) error
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

// HandleSmokeTest starts a replica following the stream of the requested
// endpoint in the background and reports the results with opts.SendResult.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil || req.Endpoint == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			defer func() {
				// if context is of testContext
				// cancel context on exit to signal function exited
				// this is used for testing
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			res, err := Run(ctx, RunOptions{
				FromEndpoint: opts.Endpoint,
				ToEndpoint:   req.Endpoint,
				UserAgent:    opts.UserAgent,
				Frames:       req.Frames,
				Timeout:      req.Timeout,
			})
			if err != nil {
				logs.Warn(err)
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

type RunOptions struct {
	FromEndpoint string
	ToEndpoint   string
	UserAgent    string

	// The number of frames to apply. Defaults to 10.
	Frames int

	// The maximum duration of the test. Defaults to 10s.
	Timeout time.Duration
}

// Run follows the replication stream of opts.ToEndpoint and applies
// opts.Frames frames to a replica. The results are filled even when it fails.
func Run(ctx context.Context, opts RunOptions) (Results, error) {
	if opts.Frames <= 0 {
		opts.Frames = defaultFrames
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	res := Results{
		FromEndpoint: opts.FromEndpoint,
		ToEndpoint:   opts.ToEndpoint,
		Status:       StatusFailed,
	}

	err := run(ctx, opts, &res)
	if err != nil {
		res.Error = err.Error()
		return res, errors.New("smoke test failed").
			WithTag("to_endpoint", opts.ToEndpoint).
			Wrap(err)
	}

	res.Status = StatusSuccess
	return res, nil
}

func run(ctx context.Context, opts RunOptions, res *Results) error {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	origin := opts.FromEndpoint
	if origin == "" {
		origin = "http://localhost"
	}

	config, err := websocket.NewConfig(toWebsocketURL(opts.ToEndpoint), origin)
	if err != nil {
		return errors.New("creating websocket config failed").Wrap(err)
	}
	if opts.UserAgent != "" {
		config.Header.Set("User-Agent", opts.UserAgent)
	}

	start := time.Now()
	conn, err := config.DialContext(ctx)
	if err != nil {
		return errors.New("dialing replication endpoint failed").Wrap(err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)

	replica, err := replication.NewReplica()
	if err != nil {
		return err
	}
	defer replica.Close()

	for res.Frames < opts.Frames {
		var f replication.Frame
		if err := bwebsocket.JSON.Receive(conn, &f); err != nil {
			return errors.New("receiving frame failed").
				WithTag("frames", res.Frames).
				Wrap(err)
		}

		if err := replica.Apply(f); err != nil {
			return err
		}

		if res.Frames == 0 {
			res.LatencyMilliSec = float64(time.Since(start).Microseconds()) / 1000
		}
		res.Frames++
		res.PayloadBytes += len(f.Payload)
		res.Proxies = replica.Proxies().LiveCount()
	}

	return nil
}

func toWebsocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}
