package variant

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"
)

// Hash returns a 64-bit hash of v consistent with Equal: equal variants hash
// equally. Containers hash by content.
func Hash(v Variant) uint64 {
	h := xxh3.New()
	writeHash(h, v)
	return h.Sum64()
}

// Hash32 folds Hash to the 32 bits the native containers use.
func Hash32(v Variant) uint32 {
	x := Hash(v)
	return uint32(x) ^ uint32(x>>32)
}

func writeHash(h *xxh3.Hasher, v Variant) {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(v.typ))
	_, _ = h.Write(buf[:4])

	switch v.typ {
	case TypeNil:
	case TypeFloat:
		f := v.val.(float64)
		if f == 0 {
			f = 0 // -0 == 0
		}
		binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(f))
		_, _ = h.Write(buf[:8])
	case TypeObject:
		binary.LittleEndian.PutUint64(buf[:8], uint64(v.val.(Object).ID))
		_, _ = h.Write(buf[:8])
	case TypeCallable:
		c := v.val.(Callable)
		binary.LittleEndian.PutUint64(buf[:8], c.Native.Data[0])
		binary.LittleEndian.PutUint64(buf[8:], c.Native.Data[1])
		_, _ = h.Write(buf[:])
	case TypeSignal:
		s := v.val.(Signal)
		_, _ = h.WriteString(string(s.Name))
		binary.LittleEndian.PutUint64(buf[:8], uint64(s.Owner))
		_, _ = h.Write(buf[:8])
	case TypeArray:
		for _, e := range v.val.(*Array).elems {
			writeHash(h, e)
		}
	case TypeDictionary:
		// Entry order does not take part in equality.
		d := v.val.(*Dictionary)
		var sum uint64
		for i := range d.keys {
			sum += Hash(d.keys[i])*31 + Hash(d.values[i])
		}
		binary.LittleEndian.PutUint64(buf[:8], sum)
		_, _ = h.Write(buf[:8])
	default:
		p, err := payload(v)
		if err != nil {
			return
		}
		data, err := cborEncMode.Marshal(p)
		if err != nil {
			return
		}
		_, _ = h.Write(data)
	}
}
