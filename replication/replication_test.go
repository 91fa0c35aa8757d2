package replication

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aukilabs/broadphase/geometry"
	"github.com/aukilabs/broadphase/models"
	"github.com/aukilabs/broadphase/sap"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type world struct {
	rnd   *rand.Rand
	store sap.Proxies
	live  []sap.ProxyIndex
}

func newWorld(seed int64) *world {
	return &world{
		rnd:   rand.New(rand.NewSource(seed)),
		store: sap.NewProxies(),
	}
}

func (w *world) step() {
	for i := 0; i < 5; i++ {
		switch {
		case len(w.live) > 0 && w.rnd.Intn(3) == 0:
			pos := w.rnd.Intn(len(w.live))
			w.store.Remove(w.live[pos])
			w.live = append(w.live[:pos], w.live[pos+1:]...)

		case len(w.live) > 0 && w.rnd.Intn(2) == 0:
			p := w.store.At(w.live[w.rnd.Intn(len(w.live))])
			p.Aabb = p.Aabb.Translated(geometry.NewVector3f(w.rnd.Float32(), 0, -w.rnd.Float32()))

		default:
			aabb := geometry.NewAabbFromHalfExtents(geometry.NewVector3f(w.rnd.Float32()*10, 0, 0), geometry.Splat(0.5))
			h := models.ColliderHandle{Index: uint32(w.rnd.Intn(100)), Generation: 1}
			w.live = append(w.live, w.store.Insert(sap.NewColliderProxy(h, aabb, 0, 0)))
		}
	}
}

func newPair(t *testing.T, keyframeInterval int) (*Publisher, *Replica) {
	p, err := NewPublisher(PublisherOptions{KeyframeInterval: keyframeInterval})
	require.NoError(t, err)
	t.Cleanup(p.Close)

	r, err := NewReplica()
	require.NoError(t, err)
	t.Cleanup(r.Close)

	return p, r
}

func TestReplication(t *testing.T) {
	p, r := newPair(t, 10)
	w := newWorld(1)

	for i := 0; i < 35; i++ {
		w.step()

		f, err := p.Capture(&w.store)
		require.NoError(t, err)
		require.Equal(t, uint64(i), f.Seq)
		require.Equal(t, p.StreamID(), f.StreamID)
		require.Equal(t, i%10 == 0, f.Keyframe)

		require.NoError(t, r.Apply(f))
		require.True(t, r.Synced())
		require.True(t, w.store.Equal(*r.Proxies()))
	}
}

func TestReplicaJoinsOnKeyframe(t *testing.T) {
	p, r := newPair(t, 4)
	w := newWorld(2)

	var frames []Frame
	for i := 0; i < 9; i++ {
		w.step()
		f, err := p.Capture(&w.store)
		require.NoError(t, err)
		frames = append(frames, f)
	}

	err := r.Apply(frames[2])
	require.True(t, errors.IsType(err, ErrTypeSequenceGap))
	require.False(t, r.Synced())

	for _, f := range frames[4:] {
		require.NoError(t, r.Apply(f))
	}
	require.True(t, w.store.Equal(*r.Proxies()))
}

func TestReplicaErrors(t *testing.T) {
	p, r := newPair(t, 100)
	w := newWorld(3)

	capture := func() Frame {
		w.step()
		f, err := p.Capture(&w.store)
		require.NoError(t, err)
		return f
	}

	require.NoError(t, r.Apply(capture()))

	t.Run("sequence gap", func(t *testing.T) {
		capture()
		err := r.Apply(capture())
		require.True(t, errors.IsType(err, ErrTypeSequenceGap))
		require.False(t, r.Synced())
	})

	t.Run("stream mismatch", func(t *testing.T) {
		p, r := newPair(t, 100)
		f, err := p.Capture(&w.store)
		require.NoError(t, err)
		require.NoError(t, r.Apply(f))

		w.step()
		f, err = p.Capture(&w.store)
		require.NoError(t, err)
		f.StreamID = uuid.New()
		require.True(t, errors.IsType(r.Apply(f), ErrTypeStreamMismatch))
	})

	t.Run("corrupt frame", func(t *testing.T) {
		f := capture()
		f.Keyframe = true
		f.Payload = []byte("not zstd")
		require.True(t, errors.IsType(r.Apply(f), ErrTypeCorruptFrame))
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		p, r := newPair(t, 100)
		f, err := p.Capture(&w.store)
		require.NoError(t, err)
		f.Checksum[0] ^= 0xff
		require.True(t, errors.IsType(r.Apply(f), ErrTypeChecksumMismatch))
		require.False(t, r.Synced())
	})
}

func TestPublisherClose(t *testing.T) {
	p, _ := newPair(t, 1)
	p.Close()

	s := sap.NewProxies()
	_, err := p.Capture(&s)
	require.True(t, errors.IsType(err, ErrTypePublisherClosed))
}

func TestChecksum(t *testing.T) {
	w := newWorld(4)
	w.step()

	c := w.store.Clone()
	require.Equal(t, Checksum(&w.store), Checksum(&c))
	require.Len(t, Checksum(&c), 32)

	c.Insert(sap.IdentityProxy())
	require.NotEqual(t, Checksum(&w.store), Checksum(&c))
}

func TestFrameJSON(t *testing.T) {
	p, r := newPair(t, 2)
	w := newWorld(5)
	w.step()

	f, err := p.Capture(&w.store)
	require.NoError(t, err)

	b, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded Frame
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, f, decoded)
	require.NoError(t, r.Apply(decoded))
}

func TestReplicaMalformedFrames(t *testing.T) {
	encoder, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer encoder.Close()

	lenField := func(v uint64) []byte {
		b := protowire.AppendTag(nil, 1, protowire.VarintType)
		return protowire.AppendVarint(b, v)
	}

	slotField := func(b []byte, index uint64) []byte {
		slot := protowire.AppendTag(nil, 1, protowire.VarintType)
		slot = protowire.AppendVarint(slot, index)
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		return protowire.AppendBytes(b, slot)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{
			name: "length with the high bit set",
			raw:  lenField(1 << 63),
		},
		{
			name: "length past the index range",
			raw:  lenField(math.MaxUint32 + 1),
		},
		{
			name: "huge length without slot diffs",
			raw:  lenField(1 << 31),
		},
		{
			name: "slot diff past the length",
			raw:  slotField(lenField(1), 4),
		},
		{
			name: "growth with missing slot diffs",
			raw:  slotField(lenField(3), 2),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, r := newPair(t, 100)

			f := Frame{
				StreamID: uuid.New(),
				Keyframe: true,
				Payload:  encoder.EncodeAll(test.raw, nil),
			}
			require.NotPanics(t, func() { err = r.Apply(f) })
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeCorruptFrame))
			require.False(t, r.Synced())
		})
	}

	t.Run("delta frame leaves the state untouched", func(t *testing.T) {
		p, r := newPair(t, 100)
		w := newWorld(6)
		w.step()

		f, err := p.Capture(&w.store)
		require.NoError(t, err)
		require.NoError(t, r.Apply(f))
		before := r.Proxies().Clone()

		bad := Frame{
			StreamID: f.StreamID,
			Seq:      f.Seq + 1,
			Payload:  encoder.EncodeAll(lenField(uint64(before.Len()+8)), nil),
		}
		require.True(t, errors.IsType(r.Apply(bad), ErrTypeCorruptFrame))
		require.False(t, r.Synced())
		require.True(t, before.Equal(*r.Proxies()))
	})
}
