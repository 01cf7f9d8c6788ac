package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/manash/imgpost/internal/security"
)

// URLChecker vets a URL before it is fetched.
type URLChecker interface {
	Validate(rawURL string) error
}

type Saver struct {
	httpClient *http.Client
	validator  URLChecker
}

func NewSaver(validator URLChecker) *Saver {
	if validator == nil {
		validator = security.NewURLValidator(false)
	}
	return &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		validator: validator,
	}
}

// Save writes data to path, creating parent directories. Relative paths
// that escape the working directory are rejected.
func (s *Saver) Save(data []byte, path string) error {
	if len(data) == 0 {
		return fmt.Errorf("no image data available")
	}
	check := security.CheckImageExtension
	if !filepath.IsAbs(path) {
		check = security.ValidateSavePath
	}
	if err := check(path); err != nil {
		return fmt.Errorf("invalid save path %q: %w", path, err)
	}

	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// SaveInDir writes data under dir with a generated, timestamped name and
// returns the path.
func (s *Saver) SaveInDir(data []byte, dir, label string, t time.Time) (string, error) {
	format := "jpg"
	if info, err := Inspect(data); err == nil {
		format = info.Extension()
	}
	path := filepath.Join(dir, GenerateFilename(label, format, t))
	if err := s.Save(data, path); err != nil {
		return "", err
	}
	return path, nil
}

// Download fetches an image from a public HTTPS URL.
func (s *Saver) Download(ctx context.Context, url string) ([]byte, error) {
	if err := s.validator.Validate(url); err != nil {
		return nil, fmt.Errorf("refusing to download %s: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// GenerateFilename builds "<label>-<timestamp>.<ext>" with the label
// slugged to at most 40 runes. An empty label becomes "imgpost".
func GenerateFilename(label, ext string, t time.Time) string {
	label = security.Slug(label, 40)
	if label == "" {
		label = "imgpost"
	}
	return fmt.Sprintf("%s-%s.%s", label, t.Format("20060102-150405"), ext)
}
