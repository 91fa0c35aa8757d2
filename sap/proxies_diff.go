package sap

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/aukilabs/broadphase/diff"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// SlotDiff is the diff of the slot at Index.
type SlotDiff struct {
	Index ProxyIndex `json:"index"`
	Diff  ProxyDiff  `json:"diff"`
}

// ProxiesDiff is the difference between two Proxies stores: the target slot
// count, the diffs of the slots that changed and the diff of the free list
// head.
type ProxiesDiff struct {
	Len       int                     `json:"len"`
	Slots     []SlotDiff              `json:"slots"`
	FirstFree diff.Scalar[ProxyIndex] `json:"first_free"`
}

// DiffProxies returns the diff that turns old into new. Slots that only exist
// in new are diffed against IdentityProxy and always carry a slot diff, even
// an empty one, so the growth of a store is bounded by its slot diffs.
func DiffProxies(old, new *Proxies) ProxiesDiff {
	d := ProxiesDiff{
		Len:       len(new.Elements),
		FirstFree: diff.DiffScalar(old.FirstFree, new.FirstFree),
	}

	identity := IdentityProxy()
	for i := range new.Elements {
		base := &identity
		if i < len(old.Elements) {
			base = &old.Elements[i]
		}

		pd := DiffProxy(*base, new.Elements[i])
		if pd.IsEmpty() && i < len(old.Elements) {
			continue
		}

		d.Slots = append(d.Slots, SlotDiff{
			Index: ProxyIndex(i),
			Diff:  pd,
		})
	}

	return d
}

// IsEmpty reports whether the diff carries no change for a store of n slots.
func (d ProxiesDiff) IsEmpty(n int) bool {
	return d.Len == n && len(d.Slots) == 0 && !d.FirstFree.Changed()
}

// Validate checks that d can be applied to a store of n slots: the target
// length fits the ProxyIndex range, slot diffs are within the target length
// and every slot added past n has a slot diff.
func (d ProxiesDiff) Validate(n int) error {
	if d.Len < 0 || d.Len > math.MaxUint32 {
		return errors.New("diff length out of range").
			WithType(ErrTypeInvalidDiff).
			WithTag("len", d.Len)
	}

	added := roaring.New()
	for _, sd := range d.Slots {
		if int(sd.Index) >= d.Len {
			return errors.New("slot diff past the diff length").
				WithType(ErrTypeInvalidDiff).
				WithTag("index", sd.Index).
				WithTag("len", d.Len)
		}
		if int(sd.Index) >= n {
			added.Add(uint32(sd.Index))
		}
	}

	if grown := d.Len - n; grown > 0 && added.GetCardinality() != uint64(grown) {
		return errors.New("added slots without slot diffs").
			WithType(ErrTypeInvalidDiff).
			WithTag("len", d.Len).
			WithTag("store_len", n).
			WithTag("added_slot_diffs", added.GetCardinality())
	}
	return nil
}

// ApplyDiff resizes the store to the diff length, new slots starting as
// IdentityProxy, then applies the slot diffs and the free list head. The
// store is left untouched when d is not valid for it (see Validate).
func (s *Proxies) ApplyDiff(d ProxiesDiff) error {
	if err := d.Validate(len(s.Elements)); err != nil {
		return err
	}

	switch {
	case d.Len < len(s.Elements):
		clear(s.Elements[d.Len:])
		s.Elements = s.Elements[:d.Len]

	case d.Len > len(s.Elements):
		for len(s.Elements) < d.Len {
			s.Elements = append(s.Elements, IdentityProxy())
		}
	}

	for _, sd := range d.Slots {
		s.Elements[sd.Index].Apply(sd.Diff)
	}

	d.FirstFree.ApplyTo(&s.FirstFree)
	return nil
}
