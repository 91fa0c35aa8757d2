package replication

import (
	"sync"

	"github.com/aukilabs/broadphase/sap"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const DefaultKeyframeInterval = 60

type PublisherOptions struct {
	// The number of frames between two keyframes. Defaults to
	// DefaultKeyframeInterval.
	KeyframeInterval int

	// The zstd compression level. Defaults to zstd.SpeedDefault.
	EncoderLevel zstd.EncoderLevel
}

// Publisher turns successive states of a proxy store into frames.
type Publisher struct {
	streamID         uuid.UUID
	keyframeInterval uint64

	mutex    sync.Mutex
	encoder  *zstd.Encoder
	baseline sap.Proxies
	seq      uint64
}

func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.KeyframeInterval <= 0 {
		opts.KeyframeInterval = DefaultKeyframeInterval
	}
	if opts.EncoderLevel == 0 {
		opts.EncoderLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(opts.EncoderLevel))
	if err != nil {
		return nil, errors.New("creating zstd encoder failed").Wrap(err)
	}

	return &Publisher{
		streamID:         uuid.New(),
		keyframeInterval: uint64(opts.KeyframeInterval),
		encoder:          encoder,
		baseline:         sap.NewProxies(),
	}, nil
}

func (p *Publisher) StreamID() uuid.UUID {
	return p.streamID
}

// Capture returns the frame that brings a replica from the previously
// captured state to s. The publisher keeps its own copy of s.
func (p *Publisher) Capture(s *sap.Proxies) (Frame, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.encoder == nil {
		return Frame{}, errors.New("publisher is closed").
			WithType(ErrTypePublisherClosed).
			WithTag("stream_id", p.streamID)
	}

	keyframe := p.seq%p.keyframeInterval == 0
	if keyframe {
		p.baseline = sap.NewProxies()
	}

	d := sap.DiffProxies(&p.baseline, s)
	raw := sap.AppendProxiesDiff(nil, d)

	f := Frame{
		StreamID: p.streamID,
		Seq:      p.seq,
		Keyframe: keyframe,
		Payload:  p.encoder.EncodeAll(raw, nil),
		Checksum: Checksum(s),
	}

	p.baseline = s.Clone()
	p.seq++

	if keyframe {
		logs.WithTag("stream_id", p.streamID).
			WithTag("seq", f.Seq).
			WithTag("slots", d.Len).
			WithTag("raw_bytes", len(raw)).
			WithTag("payload_bytes", len(f.Payload)).
			Debug("keyframe captured")
	}

	instrumentCapture(f)
	return f, nil
}

// Close releases the encoder. Capture fails once the publisher is closed.
func (p *Publisher) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.encoder != nil {
		p.encoder.Close()
		p.encoder = nil
	}
}
