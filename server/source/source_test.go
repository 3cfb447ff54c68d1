package source

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := cimg.NewImage(16, 16, cimg.PixelFormatRGB)
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 85, 0))
	require.NoError(t, err)
	return jpg
}

func TestMJPEGScanner(t *testing.T) {
	jpg := testJPEG(t)
	stream := bytes.Buffer{}
	// Garbage between frames must be skipped
	stream.Write([]byte{0x00, 0x01, 0xFF, 0x00})
	stream.Write(jpg)
	stream.Write([]byte("not a jpeg"))
	stream.Write(jpg)

	s := newMJPEGScanner(&stream)
	first, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, jpg, first)
	second, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, jpg, second)
	_, err = s.Next()
	require.Equal(t, io.EOF, err)
}

func TestFileSource(t *testing.T) {
	jpg := testJPEG(t)
	path := filepath.Join(t.TempDir(), "clip.mjpeg")
	require.NoError(t, os.WriteFile(path, bytes.Repeat(jpg, 3), 0644))

	src := NewFileSource(path)
	require.NoError(t, src.Open())
	defer src.Close()

	for i := int64(1); i <= 3; i++ {
		frame, err := src.Read()
		require.NoError(t, err)
		require.Equal(t, i, frame.Number)
		require.Equal(t, 16, frame.Image.Width)
		require.Equal(t, 16, frame.Image.Height)
	}
	_, err := src.Read()
	require.Equal(t, io.EOF, err)
}

func TestFileSourceMissing(t *testing.T) {
	src := NewFileSource("/no/such/file.mjpeg")
	require.Error(t, src.Open())
}

func TestSnapshotSource(t *testing.T) {
	jpg := testJPEG(t)
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); ok {
			sawAuth = true
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
	}))
	defer server.Close()

	src := NewSnapshotSource(server.URL, "admin", "secret", true)
	require.NoError(t, src.Open())
	defer src.Close()

	frame, err := src.Read()
	require.NoError(t, err)
	require.EqualValues(t, 1, frame.Number)
	require.Equal(t, 16, frame.Image.Width)
	require.True(t, sawAuth)

	frame, err = src.Read()
	require.NoError(t, err)
	require.EqualValues(t, 2, frame.Number)
}

func TestSnapshotSourceHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	src := NewSnapshotSource(server.URL, "", "", false)
	require.NoError(t, src.Open())
	defer src.Close()
	_, err := src.Read()
	require.Error(t, err)
}

func TestStreamSourceMultipart(t *testing.T) {
	jpg := testJPEG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		for i := 0; i < 3; i++ {
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type": []string{"image/jpeg"},
			})
			require.NoError(t, err)
			part.Write(jpg)
		}
		mw.Close()
	}))
	defer server.Close()

	src := NewStreamSource(server.URL, "", "")
	require.NoError(t, src.Open())
	defer src.Close()

	for i := int64(1); i <= 3; i++ {
		frame, err := src.Read()
		require.NoError(t, err)
		require.Equal(t, i, frame.Number)
		require.Equal(t, 16, frame.Image.Width)
	}
	// The stream ending is a failure, never a clean EOF
	_, err := src.Read()
	require.Error(t, err)
	require.NotEqual(t, io.EOF, err)
}

func TestStreamSourceRaw(t *testing.T) {
	jpg := testJPEG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/x-motion-jpeg")
		w.Write(bytes.Repeat(jpg, 2))
	}))
	defer server.Close()

	src := NewStreamSource(server.URL, "", "")
	require.NoError(t, src.Open())
	defer src.Close()

	for i := int64(1); i <= 2; i++ {
		frame, err := src.Read()
		require.NoError(t, err)
		require.Equal(t, i, frame.Number)
	}
	_, err := src.Read()
	require.Error(t, err)
}

func TestStreamSourceBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	src := NewStreamSource(server.URL+"/stream", "", "")
	err := src.Open()
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

// Close racing a blocked Read must produce a read error, never a panic.
func TestStreamSourceCloseDuringRead(t *testing.T) {
	jpg := testJPEG(t)
	release := make(chan bool)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/x-motion-jpeg")
		w.Write(jpg)
		w.(http.Flusher).Flush()
		// Hold the stream open so the second Read blocks on the network
		<-release
	}))
	defer server.Close()
	defer close(release)

	src := NewStreamSource(server.URL, "", "")
	require.NoError(t, src.Open())

	frame, err := src.Read()
	require.NoError(t, err)
	require.EqualValues(t, 1, frame.Number)

	readDone := make(chan error)
	go func() {
		_, err := src.Read()
		readDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	src.Close()
	require.Error(t, <-readDone)

	// Reads after Close keep failing cleanly
	_, err = src.Read()
	require.Error(t, err)
}

func TestCloneImage(t *testing.T) {
	img := cimg.NewImage(8, 8, cimg.PixelFormatRGB)
	img.Pixels[0] = 42
	clone := CloneImage(img)
	require.Equal(t, img.Pixels, clone.Pixels)
	img.Pixels[0] = 99
	require.EqualValues(t, 42, clone.Pixels[0])
}

func TestCloneImageStrided(t *testing.T) {
	// A source whose rows carry padding must clone into a dense image with
	// the padding stripped
	width, height := 8, 8
	stride := width*3 + 4
	buf := make([]byte, stride*height)
	for i := range buf {
		buf[i] = byte(i)
	}
	img := cimg.WrapImageStrided(width, height, cimg.PixelFormatRGB, buf, stride)
	clone := CloneImage(img)
	require.Equal(t, width*3, clone.Stride)
	for y := 0; y < height; y++ {
		require.Equal(t, buf[y*stride:y*stride+width*3], clone.Pixels[y*clone.Stride:(y+1)*clone.Stride])
	}
}
