package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeSubscriberDropped = "websocket_subscriber_dropped"
)

// JSON is a codec that exchanges values as JSON text messages.
var JSON = websocket.Codec{
	Marshal: func(v any) ([]byte, byte, error) {
		b, err := json.Marshal(v)
		return b, websocket.TextFrame, err
	},
	Unmarshal: func(data []byte, payloadType byte, v any) error {
		return json.Unmarshal(data, v)
	},
}

// HandlerOptions configures a stream handler.
type HandlerOptions struct {
	// The interval between two summaries of the frames sent to a client.
	SummaryInterval time.Duration

	// The maximum time to send a frame to a client.
	WriteTimeout time.Duration
}

// Handler returns a websocket server that streams the frames published on hub
// to every connected client, as JSON text messages.
func Handler(hub *Hub, opts HandlerOptions) websocket.Server {
	if opts.SummaryInterval <= 0 {
		opts.SummaryInterval = time.Minute
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = time.Second * 10
	}

	return websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			if err := stream(conn, hub, opts); err != nil {
				logs.WithTag("remote_addr", conn.Request().RemoteAddr).
					Debug(errors.New("streaming frames failed").Wrap(err))
			}
		},
	}
}

func stream(conn *websocket.Conn, hub *Hub, opts HandlerOptions) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	l := newConnLogger(conn.Request(), opts.SummaryInterval)
	l.connected()
	defer l.disconnected()
	go l.startSummaryWorker(ctx)

	// Clients do not send anything: reading only detects when they leave.
	go func() {
		defer cancel()

		var msg []byte
		for {
			if err := websocket.Message.Receive(conn, &msg); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case f, ok := <-sub.Frames():
			if !ok {
				if sub.dropped {
					return errors.New("subscriber is too slow").
						WithType(ErrTypeSubscriberDropped)
				}
				return nil
			}

			conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := JSON.Send(conn, f); err != nil {
				instrumentSendError(err)
				return errors.New("sending frame failed").
					WithTag("seq", f.Seq).
					Wrap(err)
			}

			instrumentSend(f)
			l.sent(f)
		}
	}
}
