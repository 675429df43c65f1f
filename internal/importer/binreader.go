package importer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/flywave/go3d/vec3"

	"github.com/Faultbox/geomc/pkg/encoding"
)

// binReader reads little-endian fields of Ragnarok Online binary formats
// and keeps the first error. Callers check err once per record.
type binReader struct {
	data []byte
	off  int
	err  error

	errTruncated error // reported when a read runs past the data
	errCount     error // reported for impossible record counts
}

func (r *binReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = r.errTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *binReader) u8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *binReader) u16() uint16 {
	if b := r.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *binReader) i16() int16 {
	return int16(r.u16())
}

func (r *binReader) u32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *binReader) i32() int32 {
	return int32(r.u32())
}

func (r *binReader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *binReader) vec3() vec3.T {
	return vec3.T{r.f32(), r.f32(), r.f32()}
}

// str reads a fixed-length null-terminated EUC-KR string.
func (r *binReader) str(n int) string {
	return encoding.FixedStringToUTF8(r.next(n))
}

// count reads a record count and checks that many records of recordSize
// bytes fit in the remaining data.
func (r *binReader) count(recordSize int) int {
	return r.checkCount(int64(r.i32()), recordSize)
}

// checkCount validates an already decoded record count. Zero-sized records
// count as one byte.
func (r *binReader) checkCount(n int64, recordSize int) int {
	if r.err != nil {
		return 0
	}
	recordSize = max(recordSize, 1)
	if n < 0 || n > int64(len(r.data)-r.off)/int64(recordSize) {
		r.err = fmt.Errorf("%w: %d records of %d bytes at offset %d", r.errCount, n, recordSize, r.off)
		return 0
	}
	return int(n)
}
