package sap

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aukilabs/broadphase/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestDiffProxies(t *testing.T) {
	t.Run("diff of a store with itself is empty", func(t *testing.T) {
		s, _ := randomProxies(rand.New(rand.NewSource(1)), 50)
		d := DiffProxies(&s, &s)
		require.True(t, d.IsEmpty(s.Len()))
	})

	t.Run("changed slots only", func(t *testing.T) {
		old := NewProxies()
		for i := 0; i < 4; i++ {
			old.Insert(testCollider(uint32(i)))
		}

		new := old.Clone()
		new.At(2).Aabb = testAabb(20)
		new.Remove(3)
		new.Remove(1)

		d := DiffProxies(&old, &new)
		require.Equal(t, 4, d.Len)
		require.Len(t, d.Slots, 2)
		require.Equal(t, ProxyIndex(1), d.Slots[0].Index)
		require.True(t, d.Slots[0].Diff.NextFree.Changed())
		require.Equal(t, ProxyIndex(2), d.Slots[1].Index)
		require.NotNil(t, d.Slots[1].Diff.Aabb)
		require.True(t, d.FirstFree.Changed())
		require.Equal(t, ProxyIndex(1), d.FirstFree.Value())
	})

	t.Run("rebuild from an empty store", func(t *testing.T) {
		s, _ := randomProxies(rand.New(rand.NewSource(2)), 50)
		empty := NewProxies()

		rebuilt := NewProxies()
		require.NoError(t, rebuilt.ApplyDiff(DiffProxies(&empty, &s)))
		require.True(t, s.Equal(rebuilt))
	})

	t.Run("shrinking store", func(t *testing.T) {
		old, _ := randomProxies(rand.New(rand.NewSource(3)), 40)
		for i := 0; i < 10; i++ {
			old.Insert(testCollider(uint32(i)))
		}
		new, _ := randomProxies(rand.New(rand.NewSource(4)), 3)
		require.Greater(t, old.Len(), new.Len())

		require.NoError(t, old.ApplyDiff(DiffProxies(&old, &new)))
		require.True(t, new.Equal(old))
	})

	t.Run("appended identity slots carry an empty slot diff", func(t *testing.T) {
		old := NewProxies()
		new := NewProxies()
		new.Elements = append(new.Elements, IdentityProxy())

		d := DiffProxies(&old, &new)
		require.Equal(t, 1, d.Len)
		require.Len(t, d.Slots, 1)
		require.True(t, d.Slots[0].Diff.IsEmpty())
		require.NoError(t, d.Validate(old.Len()))

		require.NoError(t, old.ApplyDiff(d))
		require.True(t, new.Equal(old))
	})
}

func TestProxiesDiffValidate(t *testing.T) {
	slot := func(i ProxyIndex) SlotDiff {
		return SlotDiff{Index: i}
	}

	tests := []struct {
		name string
		diff ProxiesDiff
	}{
		{
			name: "negative length",
			diff: ProxiesDiff{Len: -1},
		},
		{
			name: "length past the index range",
			diff: ProxiesDiff{Len: math.MaxUint32 + 1},
		},
		{
			name: "slot diff past the length",
			diff: ProxiesDiff{Len: 2, Slots: []SlotDiff{slot(5)}},
		},
		{
			name: "growth without slot diffs",
			diff: ProxiesDiff{Len: 1 << 40},
		},
		{
			name: "growth with missing slot diffs",
			diff: ProxiesDiff{Len: 5, Slots: []SlotDiff{slot(3), slot(4)}},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := NewProxies()
			s.Insert(testCollider(1))
			s.Insert(testCollider(2))
			before := s.Clone()

			err := test.diff.Validate(s.Len())
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeInvalidDiff))

			err = s.ApplyDiff(test.diff)
			require.True(t, errors.IsType(err, ErrTypeInvalidDiff))
			require.True(t, before.Equal(s))
		})
	}

	t.Run("shrink without slot diffs", func(t *testing.T) {
		s, _ := randomProxies(rand.New(rand.NewSource(8)), 20)
		require.NoError(t, s.ApplyDiff(ProxiesDiff{}))
		require.Zero(t, s.Len())
	})
}

func TestProxiesDiffRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		a, _ := randomProxies(rnd, rnd.Intn(60))
		b, _ := randomProxies(rnd, rnd.Intn(60))

		d := DiffProxies(&a, &b)
		c := a.Clone()
		require.NoError(t, c.ApplyDiff(d))
		require.True(t, b.Equal(c), "iteration %d", i)
	}
}

func TestProxiesDiffEvolution(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))

	source := NewProxies()
	replica := NewProxies()
	var live []ProxyIndex

	for frame := 0; frame < 100; frame++ {
		before := source.Clone()

		for op := 0; op < 5; op++ {
			switch {
			case len(live) > 0 && rnd.Intn(3) == 0:
				pos := rnd.Intn(len(live))
				source.Remove(live[pos])
				live = append(live[:pos], live[pos+1:]...)

			case len(live) > 0 && rnd.Intn(2) == 0:
				p := source.At(live[rnd.Intn(len(live))])
				p.Aabb = p.Aabb.Translated(geometry.NewVector3f(rnd.Float32(), 0, 0))

			default:
				live = append(live, source.Insert(testCollider(uint32(rnd.Intn(1000)))))
			}
		}

		require.NoError(t, replica.ApplyDiff(DiffProxies(&before, &source)))
		require.True(t, source.Equal(replica), "frame %d", frame)
		require.NoError(t, replica.CheckFreeList())
	}
}

func TestProxiesDiffJSON(t *testing.T) {
	a, _ := randomProxies(rand.New(rand.NewSource(5)), 20)
	b, _ := randomProxies(rand.New(rand.NewSource(6)), 30)

	data, err := json.Marshal(DiffProxies(&a, &b))
	require.NoError(t, err)

	var d ProxiesDiff
	require.NoError(t, json.Unmarshal(data, &d))

	require.NoError(t, a.ApplyDiff(d))
	require.True(t, b.Equal(a))
}
