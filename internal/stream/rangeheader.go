package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnsatisfiable means the range lies entirely outside the file.
	ErrUnsatisfiable = errors.New("range not satisfiable")
	// ErrMalformedRange means the header is not a bytes range; callers
	// serve the whole file.
	ErrMalformedRange = errors.New("malformed range header")
)

// Range is an inclusive byte window.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range value for a file of size bytes.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange reads the first range of a "bytes=start-end" header. A
// missing start means 0 and a missing end means the last byte, so
// "bytes=-N" selects bytes 0 through N. The end is clamped to the file.
func ParseRange(header string, size int64) (Range, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return Range{}, ErrMalformedRange
	}
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return Range{}, ErrMalformedRange
	}

	start, end := int64(0), size-1
	var err error
	if s := strings.TrimSpace(startStr); s != "" {
		if start, err = strconv.ParseInt(s, 10, 64); err != nil || start < 0 {
			return Range{}, ErrMalformedRange
		}
	}
	if s := strings.TrimSpace(endStr); s != "" {
		if end, err = strconv.ParseInt(s, 10, 64); err != nil || end < 0 {
			return Range{}, ErrMalformedRange
		}
	}

	if end > size-1 {
		end = size - 1
	}
	if size == 0 || start >= size || start > end {
		return Range{}, ErrUnsatisfiable
	}
	return Range{Start: start, End: end}, nil
}
