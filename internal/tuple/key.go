// Package tuple implements the order-preserving key codec: packing and
// unpacking of typed Key segments into bytes whose lexicographic order
// matches the segments' logical order, plus the BEFORE/AFTER edge
// sentinels used to build half-open scan ranges and strinc for
// whole-object upper bounds.
package tuple

import (
	"encoding/binary"
	"fmt"

	"github.com/flatkv/sqladapter/internal/errs"
)

// Kind identifies the logical type of a Segment.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindString
	KindBytes
)

// Segment is one typed element of a Key. Only the field matching Kind is
// meaningful.
type Segment struct {
	Kind  Kind
	Int   int64
	Str   string
	Bytes []byte
}

func Null() Segment               { return Segment{Kind: KindNull} }
func Int(v int64) Segment         { return Segment{Kind: KindInt, Int: v} }
func String(v string) Segment     { return Segment{Kind: KindString, Str: v} }
func BytesSeg(v []byte) Segment   { return Segment{Kind: KindBytes, Bytes: v} }

func (s Segment) IsNull() bool { return s.Kind == KindNull }

func (s Segment) Equal(o Segment) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case KindNull:
		return true
	case KindInt:
		return s.Int == o.Int
	case KindString:
		return s.Str == o.Str
	case KindBytes:
		return string(s.Bytes) == string(o.Bytes)
	}
	return false
}

// Key is a mutable, ordered, append-only sequence of typed segments. Its
// logical depth is len(Segments).
type Key struct {
	Segments []Segment
}

// New builds a Key from segments.
func New(segments ...Segment) Key { return Key{Segments: append([]Segment{}, segments...)} }

// Append adds a segment and returns the same Key for chaining.
func (k *Key) Append(s Segment) *Key {
	k.Segments = append(k.Segments, s)
	return k
}

// Depth returns the key's logical depth.
func (k Key) Depth() int { return len(k.Segments) }

// Truncate sets the key's logical depth, dropping any trailing segments
// beyond n. Used by the index writer to strip a trailing null-separator
// before a uniqueness check.
func (k Key) Truncate(n int) Key {
	if n >= len(k.Segments) {
		return k
	}
	return Key{Segments: append([]Segment{}, k.Segments[:n]...)}
}

// Equal compares two keys segment-by-segment.
func (k Key) Equal(o Key) bool {
	if len(k.Segments) != len(o.Segments) {
		return false
	}
	for i := range k.Segments {
		if !k.Segments[i].Equal(o.Segments[i]) {
			return false
		}
	}
	return true
}

// Edge is a sentinel byte appended after a packed key's segments. Before
// (0x00) sorts just above the key itself and at or below every key that
// extends it; a key whose next segment is null packs to the same bytes,
// since the null tag is also 0x00. After (0xff) sorts above the key and
// every key that extends it.
type Edge int

const (
	NoEdge Edge = iota
	Before
	After
)

const (
	tagNull   byte = 0x00
	tagBytes  byte = 0x01
	tagString byte = 0x02
	tagInt    byte = 0x0c

	escByte byte = 0x00
	escFF   byte = 0xff
	termLo  byte = 0x00
	termHi  byte = 0x00

	edgeBefore byte = 0x00
	edgeAfter  byte = 0xff
)

// Pack concatenates prefix with the tuple encoding of key's segments,
// optionally followed by an edge byte. The result is the physical key
// written to or read from the underlying store.
func Pack(prefix []byte, key Key, edge Edge) []byte {
	out := make([]byte, 0, len(prefix)+16*len(key.Segments)+1)
	out = append(out, prefix...)
	for _, seg := range key.Segments {
		out = appendSegment(out, seg)
	}
	switch edge {
	case Before:
		out = append(out, edgeBefore)
	case After:
		out = append(out, edgeAfter)
	}
	return out
}

// PackPrefix returns just prefix, the exclusive lower bound of an
// object's entire keyspace (pair it with Strinc(prefix) for the upper
// bound).
func PackPrefix(prefix []byte) []byte {
	out := make([]byte, len(prefix))
	copy(out, prefix)
	return out
}

func appendSegment(out []byte, seg Segment) []byte {
	switch seg.Kind {
	case KindNull:
		return append(out, tagNull)
	case KindInt:
		out = append(out, tagInt)
		var buf [8]byte
		// Flip the sign bit so two's-complement ordering becomes
		// unsigned big-endian ordering.
		binary.BigEndian.PutUint64(buf[:], uint64(seg.Int)^(uint64(1)<<63))
		return append(out, buf[:]...)
	case KindString:
		out = append(out, tagString)
		return appendEscaped(out, []byte(seg.Str))
	case KindBytes:
		out = append(out, tagBytes)
		return appendEscaped(out, seg.Bytes)
	default:
		panic(fmt.Sprintf("tuple: unknown segment kind %d", seg.Kind))
	}
}

// appendEscaped writes b with every 0x00 byte escaped to 0x00 0xff, then
// a 0x00 0x00 terminator, so the byte/string tag's payload never
// contains an unescaped terminator and short values sort before longer
// ones sharing the same prefix.
func appendEscaped(out []byte, b []byte) []byte {
	for _, c := range b {
		if c == escByte {
			out = append(out, escByte, escFF)
		} else {
			out = append(out, c)
		}
	}
	return append(out, termLo, termHi)
}

// Unpack strips prefix from raw and decodes the remaining bytes into a
// fresh Key at depth equal to the number of decoded segments. It fails
// with a CorruptKey error if raw does not start with prefix or the
// tuple encoding is malformed.
func Unpack(prefix []byte, raw []byte) (Key, error) {
	if len(raw) < len(prefix) || string(raw[:len(prefix)]) != string(prefix) {
		return Key{}, errs.NewCorruptKey("prefix mismatch")
	}
	rest := raw[len(prefix):]
	var segs []Segment
	for len(rest) > 0 {
		tag := rest[0]
		rest = rest[1:]
		switch tag {
		case tagNull:
			segs = append(segs, Null())
		case tagInt:
			if len(rest) < 8 {
				return Key{}, errs.NewCorruptKey("truncated int segment")
			}
			v := binary.BigEndian.Uint64(rest[:8]) ^ (uint64(1) << 63)
			segs = append(segs, Int(int64(v)))
			rest = rest[8:]
		case tagBytes, tagString:
			decoded, remainder, err := readEscaped(rest)
			if err != nil {
				return Key{}, err
			}
			if tag == tagBytes {
				segs = append(segs, BytesSeg(decoded))
			} else {
				segs = append(segs, String(string(decoded)))
			}
			rest = remainder
		default:
			return Key{}, errs.NewCorruptKey(fmt.Sprintf("unknown tag byte 0x%02x", tag))
		}
	}
	return Key{Segments: segs}, nil
}

func readEscaped(in []byte) (decoded []byte, remainder []byte, err error) {
	for i := 0; i < len(in); i++ {
		if in[i] != escByte {
			decoded = append(decoded, in[i])
			continue
		}
		// in[i] == 0x00: either an escaped 0x00 (followed by 0xff) or
		// the terminator (followed by 0x00).
		if i+1 >= len(in) {
			return nil, nil, errs.NewCorruptKey("truncated escape sequence")
		}
		switch in[i+1] {
		case escFF:
			decoded = append(decoded, escByte)
			i++
		case termHi:
			return decoded, in[i+2:], nil
		default:
			return nil, nil, errs.NewCorruptKey("invalid escape sequence")
		}
	}
	return nil, nil, errs.NewCorruptKey("missing terminator")
}

// Strinc returns the smallest byte string strictly greater than every
// string with prefix as a prefix: it strips trailing 0xff bytes and
// increments the last remaining byte. It is used to form the
// right-exclusive upper bound of a whole-object scan. An empty or
// all-0xff prefix has no such successor; for it Strinc returns prefix
// with one 0xff byte appended, which is not an upper bound of longer
// keys under that prefix.
func Strinc(prefix []byte) []byte {
	end := len(prefix)
	for end > 0 && prefix[end-1] == 0xff {
		end--
	}
	if end == 0 {
		// prefix is empty or all 0xff: there is no finite successor in
		// the same byte-length scheme, so widen by one byte instead.
		out := make([]byte, len(prefix)+1)
		copy(out, prefix)
		out[len(prefix)] = 0xff
		return out
	}
	out := make([]byte, end)
	copy(out, prefix[:end])
	out[end-1]++
	return out
}
