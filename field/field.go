// Package field implements arithmetic over GF(2^w) for the widths the wire
// format supports (4, 8, 16 and 32 bits), plus the coefficient generator
// shared by the encoder and decoder.
package field

import (
	"encoding/binary"
	"fmt"
)

// Width is a supported field width, in bits.
type Width uint8

const (
	W4  Width = 4
	W8  Width = 8
	W16 Width = 16
	W32 Width = 32
)

func (w Width) String() string {
	return fmt.Sprintf("GF(2^%d)", uint8(w))
}

// primitive reduction polynomials, expressed as the bits below the implicit
// leading term. Chosen to match commonly used primitive polynomials for
// these widths; gf-complete's exact tables are not reproducible without the
// vendored C library, so log/exp tables are regenerated from these instead
// (see DESIGN.md).
const (
	poly4  = 0x3  // x^4 + x + 1
	poly8  = 0x1d // x^8 + x^4 + x^3 + x^2 + 1
	poly16 = 0x100b // x^16 + x^12 + x^3 + x + 1
	poly32 = 0x8d // x^32 + x^7 + x^3 + x^2 + 1
)

// Field is an immutable, stateless-after-construction GF(2^w) arithmetic
// context. A *Field is safe for concurrent read-only use by multiple
// encoders/decoders.
type Field struct {
	w    Width
	size uint32 // 2^w
	mask uint32 // size-1

	// log/exp tables, valid only for w < 32.
	expTable []uint32 // length 2*(size-1), avoids a modulo in Multiply
	logTable []int32  // length size, logTable[0] is unused
}

// New builds a field of the given width. Only 4, 8, 16 and 32 are supported.
func New(w Width) (*Field, error) {
	switch w {
	case W4, W8, W16:
		return newTableField(w), nil
	case W32:
		return &Field{w: w, size: 0, mask: 0xffffffff}, nil
	default:
		return nil, fmt.Errorf("field: unsupported width %d: %w", w, ErrInvalidWidth)
	}
}

// ErrInvalidWidth is returned when constructing a field with a width other
// than 4, 8, 16 or 32.
var ErrInvalidWidth = fmt.Errorf("field width must be one of 4, 8, 16, 32")

func poly(w Width) uint32 {
	switch w {
	case W4:
		return poly4
	case W8:
		return poly8
	case W16:
		return poly16
	default:
		return poly32
	}
}

// newTableField builds the log/exp tables for w in {4,8,16} using generator
// element 2, following the classic zfec/Reed-Solomon bootstrapping technique.
func newTableField(w Width) *Field {
	size := uint32(1) << uint(w)
	f := &Field{
		w:        w,
		size:     size,
		mask:     size - 1,
		expTable: make([]uint32, 2*(size-1)),
		logTable: make([]int32, size),
	}
	p := poly(w)
	x := uint32(1)
	for i := uint32(0); i < size-1; i++ {
		f.expTable[i] = x
		f.logTable[x] = int32(i)
		x <<= 1
		if x&size != 0 {
			x ^= (size | p)
		}
	}
	// duplicate so Multiply can index without wrapping.
	for i := size - 1; i < 2*(size-1); i++ {
		f.expTable[i] = f.expTable[i-(size-1)]
	}
	return f
}

// Width reports the field's element width in bits.
func (f *Field) Width() Width { return f.w }

// Multiply returns x*y in the field.
func (f *Field) Multiply(x, y uint32) uint32 {
	if f.w == W32 {
		return clmul32(x, y)
	}
	if x == 0 || y == 0 {
		return 0
	}
	return f.expTable[f.logTable[x]+f.logTable[y]]
}

// Invert returns the multiplicative inverse of x. x must be non-zero.
func (f *Field) Invert(x uint32) uint32 {
	if x == 0 {
		panic("field: invert of zero")
	}
	if f.w == W32 {
		return f.pow32(x, 0xfffffffe) // x^(2^32-2), Fermat's little theorem
	}
	if x == 1 {
		return 1
	}
	li := int32(f.size-1) - f.logTable[x]
	return f.expTable[li]
}

func (f *Field) pow32(x uint32, n uint32) uint32 {
	result := uint32(1)
	base := x
	for n > 0 {
		if n&1 == 1 {
			result = clmul32(result, base)
		}
		base = clmul32(base, base)
		n >>= 1
	}
	return result
}

// clmul32 multiplies two GF(2^32) elements via carryless multiplication in a
// 64-bit intermediate, then reduces modulo the field's primitive polynomial.
// Per the coefficient-overflow note, the 64-bit intermediate is mandatory:
// the raw product of two 32-bit values can exceed 32 bits before reduction.
func clmul32(a, b uint32) uint32 {
	var product uint64
	for i := 0; i < 32; i++ {
		if (b>>uint(i))&1 == 1 {
			product ^= uint64(a) << uint(i)
		}
	}
	return reduce32(product)
}

func reduce32(product uint64) uint32 {
	const modulus = (uint64(1) << 32) | poly32
	for bit := 63; bit >= 32; bit-- {
		if (product>>uint(bit))&1 == 1 {
			product ^= modulus << uint(bit-32)
		}
	}
	return uint32(product)
}

// MultiplyRegion writes dst[i] := c (x) src[i] for every element of src,
// where an "element" is a nibble (w=4), byte (w=8) or little-endian
// uint16/uint32 (w=16/32). len(dst) must be >= len(src).
func (f *Field) MultiplyRegion(src, dst []byte, c uint32) {
	f.regionOp(src, dst, c, false)
}

// MultiplyAddRegion writes dst[i] ^= c (x) src[i] for every element of src.
func (f *Field) MultiplyAddRegion(src, dst []byte, c uint32) {
	f.regionOp(src, dst, c, true)
}

func (f *Field) regionOp(src, dst []byte, c uint32, add bool) {
	if c == 0 {
		if !add {
			for i := range dst[:len(src)] {
				dst[i] = 0
			}
		}
		return
	}
	switch f.w {
	case W4:
		for i, b := range src {
			lo := f.Multiply(uint32(b&0x0f), c)
			hi := f.Multiply(uint32(b>>4), c)
			v := byte(lo) | byte(hi)<<4
			if add {
				dst[i] ^= v
			} else {
				dst[i] = v
			}
		}
	case W8:
		for i, b := range src {
			v := byte(f.Multiply(uint32(b), c))
			if add {
				dst[i] ^= v
			} else {
				dst[i] = v
			}
		}
	case W16:
		n := len(src) / 2
		for i := 0; i < n; i++ {
			e := binary.LittleEndian.Uint16(src[2*i:])
			v := uint16(f.Multiply(uint32(e), c))
			if add {
				existing := binary.LittleEndian.Uint16(dst[2*i:])
				binary.LittleEndian.PutUint16(dst[2*i:], existing^v)
			} else {
				binary.LittleEndian.PutUint16(dst[2*i:], v)
			}
		}
		if rem := len(src) - 2*n; rem > 0 {
			var in, out [2]byte
			copy(in[:], src[2*n:])
			binary.LittleEndian.PutUint16(out[:], uint16(f.Multiply(uint32(binary.LittleEndian.Uint16(in[:])), c)))
			for i := 0; i < rem; i++ {
				if add {
					dst[2*n+i] ^= out[i]
				} else {
					dst[2*n+i] = out[i]
				}
			}
		}
	case W32:
		n := len(src) / 4
		for i := 0; i < n; i++ {
			e := binary.LittleEndian.Uint32(src[4*i:])
			v := f.Multiply(e, c)
			if add {
				existing := binary.LittleEndian.Uint32(dst[4*i:])
				binary.LittleEndian.PutUint32(dst[4*i:], existing^v)
			} else {
				binary.LittleEndian.PutUint32(dst[4*i:], v)
			}
		}
		if rem := len(src) - 4*n; rem > 0 {
			var in, out [4]byte
			copy(in[:], src[4*n:])
			binary.LittleEndian.PutUint32(out[:], f.Multiply(binary.LittleEndian.Uint32(in[:]), c))
			for i := 0; i < rem; i++ {
				if add {
					dst[4*n+i] ^= out[i]
				} else {
					dst[4*n+i] = out[i]
				}
			}
		}
	}
}

// MultiplySize multiplies the two-byte size field by c using the same field
// semantics as MultiplyRegion, so that sizes stay algebraically recoverable
// alongside symbol data. For narrow fields (w<=8) the two size bytes are
// treated as an independent two-byte region; for w in {16,32} the size is
// treated as a single field element.
func (f *Field) MultiplySize(size uint16, c uint32) uint16 {
	if f.w <= W8 {
		src := []byte{byte(size), byte(size >> 8)}
		dst := make([]byte, 2)
		f.MultiplyRegion(src, dst, c)
		return uint16(dst[0]) | uint16(dst[1])<<8
	}
	return uint16(f.Multiply(uint32(size), c))
}

// Coeff is the deterministic coefficient generator shared by the encoder and
// decoder: coeff(repair_id, source_id) = ((repair_id+1)+(source_id+1))*(repair_id+1),
// reduced into the field's non-zero elements.
func Coeff(w Width, repairID, sourceID uint32) uint32 {
	product := (uint64(repairID) + 1 + uint64(sourceID) + 1) * (uint64(repairID) + 1)
	if w == W32 {
		return uint32(product)
	}
	size := uint64(1)<<uint(w) - 1
	return uint32(product%size) + 1
}
