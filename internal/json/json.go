// Package json provides small JSON encode/decode helpers, used by the
// props package for its variant (de)serialisation without paying for
// encoding/json's reflection on every property dump.
package json

import (
	"encoding/hex"
	"errors"
	"strconv"
	"unsafe"

	jsp "github.com/buger/jsonparser"
)

const hextable = "0123456789abcdef"

var ErrValue = errors.New("invalid value")

// B returns a byte slice view of s, in an unsafe way (no copy).
func B(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// S returns a string view of buf, in an unsafe way (no copy).
func S(buf []byte) string {
	return *(*string)(unsafe.Pointer(&buf))
}

// Q removes "double quotes" around buf, if present.
func Q(buf []byte) []byte {
	if l := len(buf); l > 1 && buf[0] == '"' && buf[l-1] == '"' {
		return buf[1 : l-1]
	}
	return buf
}

// SQ returns a string from buf, unquoting if necessary.
func SQ(buf []byte) string {
	return S(Q(buf))
}

// Ascii appends src to dst as an ASCII-escaped JSON string body
// (caller provides the surrounding double quotes).
func Ascii(dst []byte, src []byte) []byte {
	for _, b := range src {
		switch {
		case b == '"' || b == '\\':
			dst = append(dst, '\\', b)
		case b == '\n':
			dst = append(dst, '\\', 'n')
		case b == '\t':
			dst = append(dst, '\\', 't')
		case b == '\r':
			dst = append(dst, '\\', 'r')
		case b < 0x20 || b >= 0x7f:
			dst = append(dst, '\\', 'u', '0', '0', hextable[b>>4], hextable[b&0x0f])
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// Str appends src as a fully quoted, ASCII-escaped JSON string.
func Str(dst []byte, src string) []byte {
	dst = append(dst, '"')
	dst = Ascii(dst, B(src))
	return append(dst, '"')
}

func Hex(dst []byte, src []byte) []byte {
	if src == nil {
		return append(dst, `null`...)
	} else if len(src) == 0 {
		return append(dst, `""`...)
	}

	dst = append(dst, `"0x`...)
	for _, v := range src {
		dst = append(dst, hextable[v>>4], hextable[v&0x0f])
	}
	return append(dst, '"')
}

func UnHex(dst []byte, src []byte) ([]byte, error) {
	src = Q(src)
	if len(src) < 2 {
		return dst, nil
	} else if src[0] == '0' && src[1] == 'x' {
		src = src[2:]
	}
	bl := len(src) / 2
	if cap(dst) >= bl {
		dst = dst[:bl]
	} else {
		dst = make([]byte, bl)
	}
	_, err := hex.Decode(dst, src)
	return dst, err
}

func U32(dst []byte, src uint32) []byte {
	return strconv.AppendUint(dst, uint64(src), 10)
}

func UnU32(src []byte) (uint32, error) {
	v, err := strconv.ParseUint(S(src), 0, 32)
	return uint32(v), err
}

func Bool(dst []byte, val bool) []byte {
	if val {
		return append(dst, `true`...)
	}
	return append(dst, `false`...)
}

func UnBool(src []byte) (bool, error) {
	switch SQ(src) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, ErrValue
	}
}

// ArrayEach calls cb for each element in the src array.
// If the callback returns a non-nil error, it breaks immediately and returns it.
func ArrayEach(src []byte, cb func(val []byte) error) (reterr error) {
	defer func() {
		if r, ok := recover().(error); ok {
			reterr = r
		}
	}()

	jsp.ArrayEach(src, func(val []byte, _ jsp.ValueType, _ int, _ error) {
		if err := cb(val); err != nil {
			panic(err) // the only way to break out of ArrayEach
		}
	})

	return nil
}

// ObjectEach calls cb for each key/value pair in the src object.
// If the callback returns a non-nil error, it breaks immediately and returns it.
func ObjectEach(src []byte, cb func(key, val []byte) error) error {
	return jsp.ObjectEach(src, func(key, val []byte, _ jsp.ValueType, _ int) error {
		return cb(key, val)
	})
}
