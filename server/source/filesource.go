package source

import (
	"fmt"
	"os"
	"time"

	"github.com/bmharper/cimg/v2"
)

// FileSource reads frames out of an MJPEG video file, synchronously,
// frame by frame. End of file is a normal terminal condition, not an error,
// so there is no reconnect logic here.
type FileSource struct {
	Path string

	file    *os.File
	scanner *mjpegScanner
	number  int64
}

func NewFileSource(path string) *FileSource {
	return &FileSource{
		Path: path,
	}
}

func (s *FileSource) Open() error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("Failed to open video file '%v': %w", s.Path, err)
	}
	s.file = f
	s.scanner = newMJPEGScanner(f)
	s.number = 0
	return nil
}

func (s *FileSource) Read() (*Frame, error) {
	raw, err := s.scanner.Next()
	if err != nil {
		// io.EOF propagates as-is: end of file is not a failure
		return nil, err
	}
	img, err := cimg.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode frame %v: %w", s.number+1, err)
	}
	s.number++
	return &Frame{
		Image:     img,
		Number:    s.number,
		Timestamp: time.Now(),
	}, nil
}

func (s *FileSource) Close() {
	if s.file != nil {
		s.file.Close()
		s.file = nil
		s.scanner = nil
	}
}
