package source

import (
	"bufio"
	"fmt"
	"io"
)

// Scanner for raw MJPEG byte streams (concatenated JPEG images).
// We walk the stream looking for the JPEG start-of-image marker (FFD8) and
// accumulate until the matching end-of-image marker (FFD9).

const maxJPEGSize = 32 * 1024 * 1024

type mjpegScanner struct {
	r *bufio.Reader
}

func newMJPEGScanner(r io.Reader) *mjpegScanner {
	return &mjpegScanner{
		r: bufio.NewReaderSize(r, 64*1024),
	}
}

// Next returns the raw bytes of the next JPEG image in the stream.
// io.EOF when the stream is exhausted.
func (s *mjpegScanner) Next() ([]byte, error) {
	// Seek to SOI
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xFF {
			continue
		}
		nxt, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if nxt == 0xD8 {
			break
		}
	}
	buf := make([]byte, 2, 256*1024)
	buf[0] = 0xFF
	buf[1] = 0xD8
	// Accumulate until EOI
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if b == 0xFF {
			nxt, err := s.r.ReadByte()
			if err != nil {
				return nil, err
			}
			buf = append(buf, nxt)
			if nxt == 0xD9 {
				return buf, nil
			}
		}
		if len(buf) > maxJPEGSize {
			return nil, fmt.Errorf("JPEG frame exceeds %v bytes. Stream is likely corrupt", maxJPEGSize)
		}
	}
}
