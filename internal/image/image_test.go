package image

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/manash/imgpost/internal/security"
)

type allowAll struct{}

func (allowAll) Validate(string) error { return nil }

type denyAll struct{}

func (denyAll) Validate(string) error { return security.ErrUntrustedHost }

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	info, err := Inspect(encodePNG(t, 64, 32, color.Black))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Format != "png" || info.Width != 64 || info.Height != 32 {
		t.Errorf("Inspect() = %+v, want png 64x32", info)
	}
	if info.Extension() != "png" {
		t.Errorf("Extension() = %q, want png", info.Extension())
	}

	info, err = Inspect(encodeJPEG(t, 10, 10))
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Extension() != "jpg" {
		t.Errorf("Extension() = %q, want jpg", info.Extension())
	}
}

func TestInspect_NotImage(t *testing.T) {
	_, err := Inspect([]byte(`{"error":"Model is loading"}`))
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("Inspect() error = %v, want ErrNotImage", err)
	}
}

func TestInfo_AspectRatioOK(t *testing.T) {
	tests := []struct {
		w, h int
		want bool
	}{
		{1080, 1080, true},
		{1080, 1350, true},
		{1080, 566, true},
		{1080, 1920, false},
		{2000, 500, false},
		{10, 0, false},
	}
	for _, tt := range tests {
		info := &Info{Width: tt.w, Height: tt.h}
		if got := info.AspectRatioOK(); got != tt.want {
			t.Errorf("AspectRatioOK(%dx%d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		opts       PrepareOptions
		wantWidth  int
		wantHeight int
		unchanged  bool
	}{
		{
			name:       "large png is resized and converted",
			data:       encodePNG(t, 2048, 1024, color.RGBA{R: 200, A: 255}),
			opts:       PrepareOptions{MaxDimension: 1024},
			wantWidth:  1024,
			wantHeight: 512,
		},
		{
			name:       "small png is converted",
			data:       encodePNG(t, 100, 80, color.Transparent),
			wantWidth:  100,
			wantHeight: 80,
		},
		{
			name:       "small jpeg passes through",
			data:       encodeJPEG(t, 100, 100),
			wantWidth:  100,
			wantHeight: 100,
			unchanged:  true,
		},
		{
			name:       "large jpeg is resized",
			data:       encodeJPEG(t, 1200, 1500),
			opts:       PrepareOptions{MaxDimension: 600, Quality: 80},
			wantWidth:  480,
			wantHeight: 600,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, info, err := Prepare(tt.data, tt.opts)
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			if info.Format != "jpeg" {
				t.Errorf("Prepare() format = %q, want jpeg", info.Format)
			}
			if info.Width != tt.wantWidth || info.Height != tt.wantHeight {
				t.Errorf("Prepare() size = %dx%d, want %dx%d", info.Width, info.Height, tt.wantWidth, tt.wantHeight)
			}
			if tt.unchanged != bytes.Equal(out, tt.data) {
				t.Errorf("Prepare() unchanged = %v, want %v", bytes.Equal(out, tt.data), tt.unchanged)
			}

			decoded, err := Inspect(out)
			if err != nil {
				t.Fatalf("Inspect(prepared) error = %v", err)
			}
			if decoded.Format != "jpeg" || decoded.Width != tt.wantWidth {
				t.Errorf("prepared bytes = %+v", decoded)
			}
		})
	}
}

func TestPrepare_FlattensTransparency(t *testing.T) {
	out, _, err := Prepare(encodePNG(t, 8, 8, color.Transparent), PrepareOptions{})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("jpeg.Decode() error = %v", err)
	}
	r, g, b, _ := img.At(4, 4).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("transparent pixel = (%d,%d,%d), want white", r>>8, g>>8, b>>8)
	}
}

func TestPrepare_NotImage(t *testing.T) {
	_, _, err := Prepare([]byte("nope"), PrepareOptions{})
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("Prepare() error = %v, want ErrNotImage", err)
	}
}

func TestSaver_Save(t *testing.T) {
	s := NewSaver(nil)
	path := filepath.Join(t.TempDir(), "subdir", "nested", "test.jpg")

	if err := s.Save([]byte("image data"), path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}
	if string(data) != "image data" {
		t.Errorf("saved data mismatch: got %s", string(data))
	}
}

func TestSaver_Save_NoData(t *testing.T) {
	s := NewSaver(nil)
	if err := s.Save(nil, filepath.Join(t.TempDir(), "empty.jpg")); err == nil {
		t.Fatal("Save() error = nil, want error for no data")
	}
}

func TestSaver_Save_RejectsTraversal(t *testing.T) {
	s := NewSaver(nil)
	err := s.Save([]byte("data"), "../escape.jpg")
	if !errors.Is(err, security.ErrPathTraversal) {
		t.Fatalf("Save() error = %v, want ErrPathTraversal", err)
	}
}

func TestSaver_Save_RejectsNonImageExtension(t *testing.T) {
	s := NewSaver(nil)
	path := filepath.Join(t.TempDir(), "post.txt")
	if err := s.Save([]byte("data"), path); !errors.Is(err, security.ErrImageExtension) {
		t.Fatalf("Save() error = %v, want ErrImageExtension", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected file was written")
	}
}

func TestSaver_SaveInDir(t *testing.T) {
	s := NewSaver(nil)
	dir := t.TempDir()
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	path, err := s.SaveInDir(encodePNG(t, 4, 4, color.Black), dir, "Neon City", at)
	if err != nil {
		t.Fatalf("SaveInDir() error = %v", err)
	}
	want := filepath.Join(dir, "neon-city-20240601-100000.png")
	if path != want {
		t.Errorf("SaveInDir() = %q, want %q", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
}

func TestSaver_Download(t *testing.T) {
	expected := []byte("downloaded image content")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(expected)
	}))
	defer server.Close()

	s := NewSaver(allowAll{})
	data, err := s.Download(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !bytes.Equal(data, expected) {
		t.Errorf("Download() = %q, want %q", data, expected)
	}
}

func TestSaver_Download_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewSaver(allowAll{})
	if _, err := s.Download(context.Background(), server.URL); err == nil {
		t.Fatal("Download() error = nil, want error for download failure")
	}
}

func TestSaver_Download_Rejected(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	s := NewSaver(denyAll{})
	_, err := s.Download(context.Background(), server.URL)
	if !errors.Is(err, security.ErrUntrustedHost) {
		t.Errorf("Download() error = %v, want ErrUntrustedHost", err)
	}
	if called {
		t.Error("Download() contacted a rejected URL")
	}
}

func TestSaver_Download_DefaultValidatorRejectsLoopback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	s := NewSaver(nil)
	if _, err := s.Download(context.Background(), server.URL); err == nil {
		t.Fatal("Download() error = nil, want rejection of plain HTTP loopback URL")
	}
}

func TestGenerateFilename(t *testing.T) {
	at := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		label string
		ext   string
		want  string
	}{
		{"", "jpg", "imgpost-20240115-143045.jpg"},
		{"Market News", "jpg", "market-news-20240115-143045.jpg"},
		{"a/b:c", "png", "a-b-c-20240115-143045.png"},
		{"...", "jpg", "imgpost-20240115-143045.jpg"},
	}
	for _, tt := range tests {
		if got := GenerateFilename(tt.label, tt.ext, at); got != tt.want {
			t.Errorf("GenerateFilename(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}

	long := GenerateFilename(strings.Repeat("x", 100), "jpg", at)
	if !strings.HasPrefix(long, strings.Repeat("x", 40)+"-2024") {
		t.Errorf("GenerateFilename(long) = %q, want 40-char label", long)
	}
}
