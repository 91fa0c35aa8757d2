package replication

import (
	"github.com/aukilabs/broadphase/sap"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Replica rebuilds a proxy store from the frames of a publisher.
//
// A replica starts unsynchronized: frames received before the first keyframe
// return a sequence gap error. After an error, the replica waits for the next
// keyframe.
type Replica struct {
	decoder *zstd.Decoder

	streamID uuid.UUID
	nextSeq  uint64
	synced   bool
	state    sap.Proxies
}

func NewReplica() (*Replica, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.New("creating zstd decoder failed").Wrap(err)
	}

	return &Replica{
		decoder: decoder,
		state:   sap.NewProxies(),
	}, nil
}

// Apply applies f to the replica state.
func (r *Replica) Apply(f Frame) error {
	err := r.apply(f)
	if err != nil {
		r.synced = false
	}
	instrumentApply(err)
	return err
}

func (r *Replica) apply(f Frame) error {
	if !f.Keyframe {
		if !r.synced {
			return errors.New("replica is waiting for a keyframe").
				WithType(ErrTypeSequenceGap).
				WithTag("seq", f.Seq)
		}

		if f.StreamID != r.streamID {
			return errors.New("frame belongs to another stream").
				WithType(ErrTypeStreamMismatch).
				WithTag("stream_id", r.streamID).
				WithTag("frame_stream_id", f.StreamID)
		}

		if f.Seq != r.nextSeq {
			return errors.New("frame is out of sequence").
				WithType(ErrTypeSequenceGap).
				WithTag("expected_seq", r.nextSeq).
				WithTag("seq", f.Seq)
		}
	}

	raw, err := r.decoder.DecodeAll(f.Payload, nil)
	if err != nil {
		return errors.New("decompressing frame failed").
			WithType(ErrTypeCorruptFrame).
			WithTag("seq", f.Seq).
			Wrap(err)
	}

	d, err := sap.UnmarshalProxiesDiff(raw)
	if err != nil {
		return errors.New("decoding frame failed").
			WithType(ErrTypeCorruptFrame).
			WithTag("seq", f.Seq).
			Wrap(err)
	}

	if f.Keyframe {
		r.state = sap.NewProxies()
		r.streamID = f.StreamID
	}
	if err := r.state.ApplyDiff(d); err != nil {
		return errors.New("applying frame failed").
			WithType(ErrTypeCorruptFrame).
			WithTag("seq", f.Seq).
			Wrap(err)
	}

	if !checksumEqual(&r.state, f.Checksum) {
		return errors.New("replica state checksum mismatch").
			WithType(ErrTypeChecksumMismatch).
			WithTag("stream_id", f.StreamID).
			WithTag("seq", f.Seq)
	}

	r.synced = true
	r.nextSeq = f.Seq + 1
	return nil
}

// Proxies returns the replica state. It must not be modified.
func (r *Replica) Proxies() *sap.Proxies {
	return &r.state
}

// Synced reports whether the last applied frame was applied successfully.
func (r *Replica) Synced() bool {
	return r.synced
}

func (r *Replica) Close() {
	r.decoder.Close()
}
