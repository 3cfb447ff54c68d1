package source

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bmharper/cimg/v2"
)

// StreamSource reads a live MJPEG network stream, either
// multipart/x-mixed-replace (the usual IP camera format) or a raw
// concatenated JPEG stream. Open failures and read failures are transient;
// the supervisor tears us down and re-opens after its delay.
type StreamSource struct {
	URL      string
	Username string
	Password string

	client *http.Client
	resp   *http.Response
	parts  *multipart.Reader
	raw    *mjpegScanner
	number int64
}

func NewStreamSource(url, username, password string) *StreamSource {
	return &StreamSource{
		URL:      url,
		Username: username,
		Password: password,
		// No overall timeout: the response body is an endless stream.
		// The dial phase is bounded by the transport's defaults.
		client: &http.Client{},
	}
}

func (s *StreamSource) Open() error {
	req, err := http.NewRequest("GET", s.URL, nil)
	if err != nil {
		return err
	}
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("Failed to connect to stream '%v': %w", s.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("Stream '%v' returned %v", s.URL, resp.Status)
	}
	mediaType, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			resp.Body.Close()
			return fmt.Errorf("Stream '%v' is multipart but has no boundary", s.URL)
		}
		s.parts = multipart.NewReader(resp.Body, boundary)
		s.raw = nil
	} else {
		s.parts = nil
		s.raw = newMJPEGScanner(resp.Body)
	}
	s.resp = resp
	return nil
}

func (s *StreamSource) Read() (*Frame, error) {
	raw, err := s.nextJPEG()
	if err != nil {
		if err == io.EOF {
			// A live stream has no legitimate end; treat EOF as a failure
			// so the supervisor's counter sees it.
			return nil, fmt.Errorf("Stream ended unexpectedly")
		}
		return nil, err
	}
	img, err := cimg.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode stream frame: %w", err)
	}
	s.number++
	return &Frame{
		Image:     img,
		Number:    s.number,
		Timestamp: time.Now(),
	}, nil
}

func (s *StreamSource) nextJPEG() ([]byte, error) {
	if s.parts != nil {
		part, err := s.parts.NextPart()
		if err != nil {
			return nil, err
		}
		defer part.Close()
		return io.ReadAll(io.LimitReader(part, maxJPEGSize))
	}
	return s.raw.Next()
}

// Close closes the response body, which unblocks a concurrent Read with an
// error. The reader fields are left alone: they are only written by Open,
// and a Read racing with Close must never observe them as nil.
func (s *StreamSource) Close() {
	if s.resp != nil {
		s.resp.Body.Close()
	}
}
