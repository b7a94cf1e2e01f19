package pack

import (
	"errors"
)

// ErrInvalidDelta is returned when a delta stream is truncated or
// internally inconsistent.
var ErrInvalidDelta = errors.New("pack: invalid delta")

// decodeVarint reads Git's delta-header varint (little-endian 7-bit
// groups, MSB-continuation) used for the base-size and result-size
// fields at the start of a delta payload.
func decodeVarint(b []byte) (uint64, []byte) {
	var val uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		val |= uint64(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			return val, b[i+1:]
		}
		shift += 7
	}
	return val, nil
}

// ApplyDelta reconstructs the target object by applying delta to base,
// per Git's delta instruction stream: a literal-insert opcode (top bit
// 0) or a copy-from-base opcode (top bit 1, with up to 4 offset bytes
// and 3 size bytes selected by the low 7 flag bits).
func ApplyDelta(base, delta []byte) ([]byte, error) {
	if len(delta) < 2 {
		return nil, ErrInvalidDelta
	}
	baseSize, rest := decodeVarint(delta)
	if rest == nil || baseSize != uint64(len(base)) {
		return nil, ErrInvalidDelta
	}
	resultSize, rest := decodeVarint(rest)
	if rest == nil {
		return nil, ErrInvalidDelta
	}

	out := make([]byte, 0, resultSize)
	for len(rest) > 0 {
		cmd := rest[0]
		rest = rest[1:]

		if cmd&0x80 != 0 {
			// Copy from base: bits 0-3 select which of 4 little-endian
			// offset bytes follow, bits 4-6 select which of 3 size bytes
			// follow. A size of 0 means 0x10000.
			var offset, size uint64
			for i, bit := range []byte{0x01, 0x02, 0x04, 0x08} {
				if cmd&bit != 0 {
					if len(rest) == 0 {
						return nil, ErrInvalidDelta
					}
					offset |= uint64(rest[0]) << (8 * i)
					rest = rest[1:]
				}
			}
			for i, bit := range []byte{0x10, 0x20, 0x40} {
				if cmd&bit != 0 {
					if len(rest) == 0 {
						return nil, ErrInvalidDelta
					}
					size |= uint64(rest[0]) << (8 * i)
					rest = rest[1:]
				}
			}
			if size == 0 {
				size = 0x10000
			}
			if offset+size > uint64(len(base)) {
				return nil, ErrInvalidDelta
			}
			out = append(out, base[offset:offset+size]...)
		} else if cmd != 0 {
			// Literal insert: low 7 bits are the length.
			n := int(cmd)
			if len(rest) < n {
				return nil, ErrInvalidDelta
			}
			out = append(out, rest[:n]...)
			rest = rest[n:]
		} else {
			return nil, ErrInvalidDelta // opcode 0 is reserved
		}
	}
	if uint64(len(out)) != resultSize {
		return nil, ErrInvalidDelta
	}
	return out, nil
}

// encodeVarint is the inverse of decodeVarint.
func encodeVarint(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

const (
	maxCopySize    = 0x10000
	maxInsertChunk = 0x7f
)

// ComputeDelta produces a delta transforming base into target, using a
// greedy hash-anchored matcher over fixed-size blocks of base (the same
// shape of algorithm real Git uses: an index of base substrings consulted
// to extend matches at the current target position, falling back to a
// literal-insert run otherwise). It always produces a *correct* delta,
// though not necessarily the smallest one a full suffix-automaton based
// matcher (as in upstream Git) would find.
func ComputeDelta(base, target []byte) []byte {
	const blockSize = 16

	index := make(map[uint64][]int)
	if len(base) >= blockSize {
		var h uint64
		for i := 0; i+blockSize <= len(base); i++ {
			h = blockHash(base[i : i+blockSize])
			index[h] = append(index[h], i)
		}
	}

	out := append(encodeVarint(uint64(len(base))), encodeVarint(uint64(len(target)))...)

	var pendingLiteral []byte
	flushLiteral := func() {
		for len(pendingLiteral) > 0 {
			n := len(pendingLiteral)
			if n > maxInsertChunk {
				n = maxInsertChunk
			}
			out = append(out, byte(n))
			out = append(out, pendingLiteral[:n]...)
			pendingLiteral = pendingLiteral[n:]
		}
	}

	i := 0
	for i < len(target) {
		matched := false
		if i+blockSize <= len(target) {
			h := blockHash(target[i : i+blockSize])
			for _, cand := range index[h] {
				if !bytesEqual(base[cand:cand+blockSize], target[i:i+blockSize]) {
					continue
				}
				// Extend the match forward as far as possible.
				length := blockSize
				for cand+length < len(base) && i+length < len(target) && base[cand+length] == target[i+length] {
					length++
				}
				flushLiteral()
				for length > 0 {
					n := length
					if n > maxCopySize {
						n = maxCopySize
					}
					out = append(out, encodeCopy(cand, n)...)
					cand += n
					i += n
					length -= n
				}
				matched = true
				break
			}
		}
		if !matched {
			pendingLiteral = append(pendingLiteral, target[i])
			i++
		}
	}
	flushLiteral()
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func blockHash(b []byte) uint64 {
	// FNV-1a, good enough as a non-cryptographic anchor hash.
	var h uint64 = 14695981039346656037
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

// encodeCopy writes a copy-from-base opcode for [offset, offset+size).
func encodeCopy(offset, size int) []byte {
	cmd := byte(0x80)
	var rest []byte
	o := uint32(offset)
	if o&0xff != 0 {
		rest = append(rest, byte(o))
		cmd |= 0x01
	}
	if o&0xff00 != 0 {
		rest = append(rest, byte(o>>8))
		cmd |= 0x02
	}
	if o&0xff0000 != 0 {
		rest = append(rest, byte(o>>16))
		cmd |= 0x04
	}
	if o&0xff000000 != 0 {
		rest = append(rest, byte(o>>24))
		cmd |= 0x08
	}
	s := uint32(size)
	if size == maxCopySize {
		s = 0
	}
	if s&0xff != 0 {
		rest = append(rest, byte(s))
		cmd |= 0x10
	}
	if s&0xff00 != 0 {
		rest = append(rest, byte(s>>8))
		cmd |= 0x20
	}
	if s&0xff0000 != 0 {
		rest = append(rest, byte(s>>16))
		cmd |= 0x40
	}
	return append([]byte{cmd}, rest...)
}
