package display

import (
	"bytes"
	"fmt"
	stdimage "image"
	"image/png"
	"io"
	"strings"

	"github.com/manash/imgpost/internal/image"
)

// Previewer draws generated images inline in terminals that speak the
// kitty graphics protocol.
type Previewer struct {
	out    io.Writer
	getenv func(string) string
}

func New(out io.Writer, getenv func(string) string) *Previewer {
	return &Previewer{out: out, getenv: getenv}
}

// Show writes data as an inline image. Non-PNG input is re-encoded since
// the protocol only carries PNG.
func (p *Previewer) Show(data []byte) error {
	if !p.Supported() {
		return ErrUnsupportedTerminal
	}

	pngData, err := toPNG(data)
	if err != nil {
		return err
	}

	if err := NewKittyEncoder(p.out).Encode(pngData); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	fmt.Fprintln(p.out)
	return nil
}

func toPNG(data []byte) ([]byte, error) {
	info, err := image.Inspect(data)
	if err != nil {
		return nil, err
	}
	if info.Format == "png" {
		return data, nil
	}

	img, _, err := stdimage.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", image.ErrNotImage, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to convert %s preview to png: %w", info.Format, err)
	}
	return buf.Bytes(), nil
}

var supportedPrograms = []string{"kitty", "ghostty", "wezterm"}

// Supported reports whether the terminal advertises kitty graphics support.
func (p *Previewer) Supported() bool {
	termProgram := strings.ToLower(p.getenv("TERM_PROGRAM"))
	for _, prog := range supportedPrograms {
		if termProgram == prog {
			return true
		}
	}

	if p.getenv("KITTY_WINDOW_ID") != "" {
		return true
	}

	term := strings.ToLower(p.getenv("TERM"))
	return strings.Contains(term, "kitty") || strings.Contains(term, "ghostty")
}
