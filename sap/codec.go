package sap

import (
	"math"

	"github.com/aukilabs/broadphase/diff"
	"github.com/aukilabs/broadphase/geometry"
	"github.com/aukilabs/broadphase/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// The binary encoding uses the protobuf wire format so that any protobuf
// runtime can read it with the following schema:
//
//	message Aabb        { fixed32 min_x = 1; ... fixed32 max_z = 6; }
//	message Collider    { uint32 index = 1; uint32 generation = 2; }
//	message Region      { Aabb bounds = 1; Proxies proxies = 2; repeated uint32 subregions = 3;
//	                      uint64 proper_proxy_count = 4; uint32 update_count = 5; }
//	message ProxyData   { oneof kind { Collider collider = 1; Region region = 2; bool empty_region = 3; } }
//	message Proxy       { ProxyData data = 1; Aabb aabb = 2; uint32 next_free = 3;
//	                      uint32 layer_id = 4; sint32 layer_depth = 5; }
//	message Proxies     { repeated Proxy elements = 1; uint32 first_free = 2; }
//	message ProxyDiff   { optional ProxyData data = 1; optional Aabb aabb = 2; optional uint32 next_free = 3;
//	                      optional uint32 layer_id = 4; optional sint32 layer_depth = 5; }
//	message SlotDiff    { uint32 index = 1; ProxyDiff diff = 2; }
//	message ProxiesDiff { uint64 len = 1; repeated SlotDiff slots = 2; optional uint32 first_free = 3; }
//
// Every field of a non-diff message is always written, in field order, so the
// encoding of a store is deterministic and can be checksummed.

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func corruptEncoding(msg string, n int) error {
	return errors.New("decoding " + msg + " failed").
		WithType(ErrTypeCorruptEncoding).
		Wrap(protowire.ParseError(n))
}

// outOfRange reports a slot count or index that does not fit a ProxyIndex.
func outOfRange(field string, v uint64) error {
	return errors.New("decoding "+field+" failed: value out of range").
		WithType(ErrTypeCorruptEncoding).
		WithTag("value", v)
}

// fieldFunc decodes the value of a field and returns the number of bytes it
// consumed, 0 to skip the field or a negative protowire error code.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walkFields(msg string, b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return corruptEncoding(msg, n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return corruptEncoding(msg, n)
		}
		b = b[n:]
	}
	return nil
}

// consumeVarint decodes a varint field and passes its value to set. A field
// of another wire type is skipped and set is not called.
func consumeVarint(typ protowire.Type, b []byte, set func(uint64)) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		set(v)
	}
	return n
}

func consumeMessage(typ protowire.Type, b []byte, decode func([]byte) error) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	return n, decode(v)
}

func AppendAabb(b []byte, a geometry.Aabb) []byte {
	b = appendFloat(b, 1, a.Mins.X)
	b = appendFloat(b, 2, a.Mins.Y)
	b = appendFloat(b, 3, a.Mins.Z)
	b = appendFloat(b, 4, a.Maxs.X)
	b = appendFloat(b, 5, a.Maxs.Y)
	return appendFloat(b, 6, a.Maxs.Z)
}

func UnmarshalAabb(b []byte) (geometry.Aabb, error) {
	var a geometry.Aabb
	fields := [...]*float32{&a.Mins.X, &a.Mins.Y, &a.Mins.Z, &a.Maxs.X, &a.Maxs.Y, &a.Maxs.Z}

	err := walkFields("aabb", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < 1 || int(num) > len(fields) || typ != protowire.Fixed32Type {
			return 0, nil
		}
		v, n := protowire.ConsumeFixed32(b)
		if n > 0 {
			*fields[num-1] = math.Float32frombits(v)
		}
		return n, nil
	})
	return a, err
}

func appendCollider(b []byte, h models.ColliderHandle) []byte {
	b = appendVarint(b, 1, uint64(h.Index))
	return appendVarint(b, 2, uint64(h.Generation))
}

func unmarshalCollider(b []byte) (models.ColliderHandle, error) {
	var index, generation uint64
	err := walkFields("collider", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeVarint(typ, b, func(v uint64) { index = v }), nil
		case 2:
			return consumeVarint(typ, b, func(v uint64) { generation = v }), nil
		}
		return 0, nil
	})
	return models.ColliderHandle{Index: uint32(index), Generation: uint32(generation)}, err
}

func AppendRegion(b []byte, r *Region) []byte {
	b = appendMessage(b, 1, AppendAabb(nil, r.Bounds))
	b = appendMessage(b, 2, AppendProxies(nil, &r.Proxies))

	var packed []byte
	for _, i := range r.Subregions {
		packed = protowire.AppendVarint(packed, uint64(i))
	}
	b = appendMessage(b, 3, packed)

	b = appendVarint(b, 4, uint64(r.ProperProxyCount))
	return appendVarint(b, 5, uint64(r.UpdateCount))
}

func UnmarshalRegion(b []byte) (*Region, error) {
	r := &Region{Proxies: NewProxies()}

	err := walkFields("region", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, func(b []byte) (err error) {
				r.Bounds, err = UnmarshalAabb(b)
				return err
			})

		case 2:
			return consumeMessage(typ, b, func(b []byte) (err error) {
				r.Proxies, err = UnmarshalProxies(b)
				return err
			})

		case 3:
			return consumeMessage(typ, b, func(b []byte) error {
				for len(b) > 0 {
					i, n := protowire.ConsumeVarint(b)
					if n < 0 {
						return corruptEncoding("region subregions", n)
					}
					r.Subregions = append(r.Subregions, ProxyIndex(i))
					b = b[n:]
				}
				return nil
			})

		case 4:
			return consumeVarint(typ, b, func(v uint64) { r.ProperProxyCount = int(v) }), nil

		case 5:
			return consumeVarint(typ, b, func(v uint64) { r.UpdateCount = uint8(v) }), nil
		}
		return 0, nil
	})
	return r, err
}

func AppendProxyData(b []byte, d ProxyData) []byte {
	switch {
	case d.kind == ColliderData:
		return appendMessage(b, 1, appendCollider(nil, d.collider))
	case d.region != nil:
		return appendMessage(b, 2, AppendRegion(nil, d.region))
	default:
		return appendVarint(b, 3, 1)
	}
}

func UnmarshalProxyData(b []byte) (ProxyData, error) {
	var d ProxyData

	err := walkFields("proxy data", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, func(b []byte) error {
				h, err := unmarshalCollider(b)
				d = NewColliderData(h)
				return err
			})

		case 2:
			return consumeMessage(typ, b, func(b []byte) error {
				r, err := UnmarshalRegion(b)
				d = NewRegionData(r)
				return err
			})

		case 3:
			return consumeVarint(typ, b, func(uint64) { d = NewRegionData(nil) }), nil
		}
		return 0, nil
	})
	return d, err
}

func AppendProxy(b []byte, p *Proxy) []byte {
	b = appendMessage(b, 1, AppendProxyData(nil, p.Data))
	b = appendMessage(b, 2, AppendAabb(nil, p.Aabb))
	b = appendVarint(b, 3, uint64(p.NextFree))
	b = appendVarint(b, 4, uint64(p.LayerID))
	return appendVarint(b, 5, protowire.EncodeZigZag(int64(p.LayerDepth)))
}

func UnmarshalProxy(b []byte) (Proxy, error) {
	var p Proxy

	err := walkFields("proxy", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, func(b []byte) (err error) {
				p.Data, err = UnmarshalProxyData(b)
				return err
			})

		case 2:
			return consumeMessage(typ, b, func(b []byte) (err error) {
				p.Aabb, err = UnmarshalAabb(b)
				return err
			})

		case 3:
			return consumeVarint(typ, b, func(v uint64) { p.NextFree = ProxyIndex(v) }), nil

		case 4:
			return consumeVarint(typ, b, func(v uint64) { p.LayerID = uint8(v) }), nil

		case 5:
			return consumeVarint(typ, b, func(v uint64) {
				p.LayerDepth = int8(protowire.DecodeZigZag(v))
			}), nil
		}
		return 0, nil
	})
	return p, err
}

func AppendProxies(b []byte, s *Proxies) []byte {
	for i := range s.Elements {
		b = appendMessage(b, 1, AppendProxy(nil, &s.Elements[i]))
	}
	return appendVarint(b, 2, uint64(s.FirstFree))
}

func UnmarshalProxies(b []byte) (Proxies, error) {
	s := NewProxies()

	err := walkFields("proxies", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, func(b []byte) error {
				p, err := UnmarshalProxy(b)
				s.Elements = append(s.Elements, p)
				return err
			})

		case 2:
			return consumeVarint(typ, b, func(v uint64) { s.FirstFree = ProxyIndex(v) }), nil
		}
		return 0, nil
	})
	return s, err
}

func AppendProxyDiff(b []byte, d ProxyDiff) []byte {
	if d.Data != nil {
		b = appendMessage(b, 1, AppendProxyData(nil, *d.Data))
	}
	if d.Aabb != nil {
		b = appendMessage(b, 2, AppendAabb(nil, *d.Aabb))
	}
	if d.NextFree.Changed() {
		b = appendVarint(b, 3, uint64(d.NextFree.Value()))
	}
	if d.LayerID.Changed() {
		b = appendVarint(b, 4, uint64(d.LayerID.Value()))
	}
	if d.LayerDepth.Changed() {
		b = appendVarint(b, 5, protowire.EncodeZigZag(int64(d.LayerDepth.Value())))
	}
	return b
}

func UnmarshalProxyDiff(b []byte) (ProxyDiff, error) {
	var d ProxyDiff

	err := walkFields("proxy diff", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, b, func(b []byte) error {
				data, err := UnmarshalProxyData(b)
				d.Data = &data
				return err
			})

		case 2:
			return consumeMessage(typ, b, func(b []byte) error {
				aabb, err := UnmarshalAabb(b)
				d.Aabb = &aabb
				return err
			})

		case 3:
			return consumeVarint(typ, b, func(v uint64) { d.NextFree = diff.Set(ProxyIndex(v)) }), nil

		case 4:
			return consumeVarint(typ, b, func(v uint64) { d.LayerID = diff.Set(uint8(v)) }), nil

		case 5:
			return consumeVarint(typ, b, func(v uint64) {
				d.LayerDepth = diff.Set(int8(protowire.DecodeZigZag(v)))
			}), nil
		}
		return 0, nil
	})
	return d, err
}

func appendSlotDiff(b []byte, sd SlotDiff) []byte {
	b = appendVarint(b, 1, uint64(sd.Index))
	return appendMessage(b, 2, AppendProxyDiff(nil, sd.Diff))
}

func unmarshalSlotDiff(b []byte) (SlotDiff, error) {
	var sd SlotDiff

	err := walkFields("slot diff", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var err error
			n := consumeVarint(typ, b, func(v uint64) {
				if v > math.MaxUint32 {
					err = outOfRange("slot diff index", v)
					return
				}
				sd.Index = ProxyIndex(v)
			})
			return n, err

		case 2:
			return consumeMessage(typ, b, func(b []byte) (err error) {
				sd.Diff, err = UnmarshalProxyDiff(b)
				return err
			})
		}
		return 0, nil
	})
	return sd, err
}

func AppendProxiesDiff(b []byte, d ProxiesDiff) []byte {
	b = appendVarint(b, 1, uint64(d.Len))
	for _, sd := range d.Slots {
		b = appendMessage(b, 2, appendSlotDiff(nil, sd))
	}
	if d.FirstFree.Changed() {
		b = appendVarint(b, 3, uint64(d.FirstFree.Value()))
	}
	return b
}

func UnmarshalProxiesDiff(b []byte) (ProxiesDiff, error) {
	var d ProxiesDiff

	err := walkFields("proxies diff", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var err error
			n := consumeVarint(typ, b, func(v uint64) {
				if v > math.MaxUint32 {
					err = outOfRange("proxies diff length", v)
					return
				}
				d.Len = int(v)
			})
			return n, err

		case 2:
			return consumeMessage(typ, b, func(b []byte) error {
				sd, err := unmarshalSlotDiff(b)
				d.Slots = append(d.Slots, sd)
				return err
			})

		case 3:
			return consumeVarint(typ, b, func(v uint64) { d.FirstFree = diff.Set(ProxyIndex(v)) }), nil
		}
		return 0, nil
	})
	return d, err
}
