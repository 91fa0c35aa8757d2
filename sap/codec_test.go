package sap

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aukilabs/broadphase/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestAabbEncoding(t *testing.T) {
	for _, a := range []geometry.Aabb{
		testAabb(3),
		geometry.InvalidAabb(),
		geometry.NewAabb(geometry.NewVector3f(-1, -2, -3), geometry.NewVector3f(0, 0, 0)),
	} {
		decoded, err := UnmarshalAabb(AppendAabb(nil, a))
		require.NoError(t, err)
		require.Equal(t, a, decoded)
	}
}

func TestProxyDataEncoding(t *testing.T) {
	tests := []struct {
		name string
		data ProxyData
	}{
		{name: "null collider", data: ProxyData{}},
		{name: "collider", data: testCollider(4).Data},
		{name: "region", data: NewRegionData(testRegion(1, 2, 3))},
		{name: "taken region", data: NewRegionData(nil)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			decoded, err := UnmarshalProxyData(AppendProxyData(nil, test.data))
			require.NoError(t, err)
			require.True(t, test.data.Equal(decoded))
			require.Equal(t, test.data.Kind(), decoded.Kind())
		})
	}
}

func TestProxiesEncoding(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))

	for i := 0; i < 10; i++ {
		s, _ := randomProxies(rnd, 60)

		b := AppendProxies(nil, &s)
		decoded, err := UnmarshalProxies(b)
		require.NoError(t, err)
		require.True(t, s.Equal(decoded))

		// Deterministic
		require.Equal(t, b, AppendProxies(nil, &decoded))
	}

	t.Run("empty store", func(t *testing.T) {
		s := NewProxies()
		decoded, err := UnmarshalProxies(AppendProxies(nil, &s))
		require.NoError(t, err)
		require.True(t, s.Equal(decoded))
		require.Equal(t, NextFreeSentinel, decoded.FirstFree)
	})
}

func TestProxiesDiffEncoding(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))

	for i := 0; i < 10; i++ {
		old, _ := randomProxies(rnd, 40)
		new, _ := randomProxies(rnd, 40)
		d := DiffProxies(&old, &new)

		decoded, err := UnmarshalProxiesDiff(AppendProxiesDiff(nil, d))
		require.NoError(t, err)
		require.Equal(t, d.Len, decoded.Len)
		require.Len(t, decoded.Slots, len(d.Slots))
		require.Equal(t, d.FirstFree, decoded.FirstFree)

		patched := old.Clone()
		require.NoError(t, patched.ApplyDiff(decoded))
		require.True(t, new.Equal(patched))
	}
}

func TestProxyDiffEncoding(t *testing.T) {
	old := testCollider(1)
	new := NewRegionProxy(testRegion(2), testAabb(9), 3, -2)
	new.NextFree = 0

	d := DiffProxy(old, new)
	decoded, err := UnmarshalProxyDiff(AppendProxyDiff(nil, d))
	require.NoError(t, err)
	require.Equal(t, d.NextFree, decoded.NextFree)
	require.Equal(t, d.LayerID, decoded.LayerID)
	require.Equal(t, d.LayerDepth, decoded.LayerDepth)
	require.Equal(t, *d.Aabb, *decoded.Aabb)
	require.True(t, d.Data.Equal(*decoded.Data))

	t.Run("identity encodes to nothing", func(t *testing.T) {
		require.Empty(t, AppendProxyDiff(nil, ProxyDiff{}))

		decoded, err := UnmarshalProxyDiff(nil)
		require.NoError(t, err)
		require.True(t, decoded.IsEmpty())
	})
}

func TestCorruptEncoding(t *testing.T) {
	s := NewProxies()
	s.Insert(testCollider(1))
	b := AppendProxies(nil, &s)

	tests := []struct {
		name string
		b    []byte
	}{
		{name: "truncated", b: b[:len(b)-3]},
		{name: "bad tag", b: []byte{0x80}},
		{name: "message too long", b: []byte{0x0a, 0x05, 0x01}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := UnmarshalProxies(test.b)
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeCorruptEncoding))
		})
	}
}

func TestCorruptProxiesDiffEncoding(t *testing.T) {
	slot := func(index uint64) []byte {
		return appendVarint(nil, 1, index)
	}

	tests := []struct {
		name string
		b    []byte
	}{
		{
			name: "length with the high bit set",
			b:    appendVarint(nil, 1, 1<<63),
		},
		{
			name: "length past the index range",
			b:    appendVarint(nil, 1, math.MaxUint32+1),
		},
		{
			name: "slot index past the index range",
			b:    appendMessage(appendVarint(nil, 1, 1), 2, slot(1<<40)),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := UnmarshalProxiesDiff(test.b)
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeCorruptEncoding))
		})
	}

	t.Run("decoded slot past the length is rejected on apply", func(t *testing.T) {
		b := appendMessage(appendVarint(nil, 1, 1), 2, slot(7))
		d, err := UnmarshalProxiesDiff(b)
		require.NoError(t, err)

		s := NewProxies()
		err = s.ApplyDiff(d)
		require.True(t, errors.IsType(err, ErrTypeInvalidDiff))
		require.Zero(t, s.Len())
	})
}

func TestMistypedVarintFields(t *testing.T) {
	t.Run("proxy diff", func(t *testing.T) {
		b := protowire.AppendTag(nil, 3, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, 9)

		d, err := UnmarshalProxyDiff(b)
		require.NoError(t, err)
		require.False(t, d.NextFree.Changed())
		require.True(t, d.IsEmpty())
	})

	t.Run("proxies diff", func(t *testing.T) {
		b := protowire.AppendTag(nil, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte{1})

		d, err := UnmarshalProxiesDiff(b)
		require.NoError(t, err)
		require.False(t, d.FirstFree.Changed())
	})

	t.Run("proxy", func(t *testing.T) {
		p := testCollider(4)
		p.NextFree = 2
		b := AppendProxy(nil, &p)
		b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, 1)

		decoded, err := UnmarshalProxy(b)
		require.NoError(t, err)
		require.Equal(t, ProxyIndex(2), decoded.NextFree)
	})
}
