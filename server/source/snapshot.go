package source

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/icholy/digest"
)

// SnapshotSource polls an HTTP still-image endpoint (e.g. Hikvision ISAPI).
// Each Read is one GET. Cameras of this kind usually want Digest auth;
// some older ones want Basic.
type SnapshotSource struct {
	URL       string
	Username  string
	Password  string
	BasicAuth bool          // Use Basic instead of Digest when credentials are set
	Timeout   time.Duration // Per-request timeout

	client *http.Client
	number int64
}

const DefaultSnapshotTimeout = 10 * time.Second

func NewSnapshotSource(url, username, password string, basicAuth bool) *SnapshotSource {
	return &SnapshotSource{
		URL:       url,
		Username:  username,
		Password:  password,
		BasicAuth: basicAuth,
		Timeout:   DefaultSnapshotTimeout,
	}
}

func (s *SnapshotSource) Open() error {
	client := &http.Client{
		Timeout: s.Timeout,
	}
	if s.Username != "" && !s.BasicAuth {
		client.Transport = &digest.Transport{
			Username: s.Username,
			Password: s.Password,
		}
	}
	s.client = client
	return nil
}

func (s *SnapshotSource) Read() (*Frame, error) {
	req, err := http.NewRequest("GET", s.URL, nil)
	if err != nil {
		return nil, err
	}
	if s.Username != "" && s.BasicAuth {
		req.SetBasicAuth(s.Username, s.Password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Snapshot request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Snapshot endpoint returned %v", resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxJPEGSize))
	if err != nil {
		return nil, fmt.Errorf("Failed to read snapshot body: %w", err)
	}
	img, err := cimg.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode snapshot: %w", err)
	}
	s.number++
	return &Frame{
		Image:     img,
		Number:    s.number,
		Timestamp: time.Now(),
	}, nil
}

func (s *SnapshotSource) Close() {
	if s.client != nil {
		s.client.CloseIdleConnections()
		s.client = nil
	}
}
