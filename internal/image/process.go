// Package image inspects generated images, prepares them for publishing
// and saves local copies.
package image

import (
	"bytes"
	"errors"
	"fmt"
	stdimage "image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1080
	DefaultQuality      = 90

	// Instagram feed images must have an aspect ratio between 4:5 and 1.91:1.
	minAspectRatio = 0.8
	maxAspectRatio = 1.91
)

var ErrNotImage = errors.New("data is not a decodable image")

type Info struct {
	Format string
	Width  int
	Height int
	Bytes  int
}

func (i *Info) Extension() string {
	if i.Format == "jpeg" {
		return "jpg"
	}
	return i.Format
}

// AspectRatioOK reports whether Instagram accepts the image's proportions.
func (i *Info) AspectRatioOK() bool {
	if i.Height == 0 {
		return false
	}
	r := float64(i.Width) / float64(i.Height)
	return r >= minAspectRatio && r <= maxAspectRatio
}

// Inspect decodes only the header of data.
func Inspect(data []byte) (*Info, error) {
	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return &Info{Format: format, Width: cfg.Width, Height: cfg.Height, Bytes: len(data)}, nil
}

type PrepareOptions struct {
	MaxDimension int
	Quality      int
}

func (o PrepareOptions) withDefaults() PrepareOptions {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Prepare converts data to a JPEG no larger than MaxDimension on either
// side. A JPEG already within bounds is returned unchanged. Transparent
// areas are flattened onto white.
func Prepare(data []byte, opts PrepareOptions) ([]byte, *Info, error) {
	opts = opts.withDefaults()

	img, format, err := stdimage.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	bounds := img.Bounds()
	needsResize := bounds.Dx() > opts.MaxDimension || bounds.Dy() > opts.MaxDimension
	needsConversion := format != "jpeg"

	if !needsResize && !needsConversion {
		return data, &Info{Format: format, Width: bounds.Dx(), Height: bounds.Dy(), Bytes: len(data)}, nil
	}

	processed := img
	if needsResize {
		processed = resize.Thumbnail(uint(opts.MaxDimension), uint(opts.MaxDimension), img, resize.Lanczos3)
	}
	if needsConversion {
		processed = flatten(processed)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, processed, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode image to jpeg: %w", err)
	}

	out := processed.Bounds()
	return buf.Bytes(), &Info{Format: "jpeg", Width: out.Dx(), Height: out.Dy(), Bytes: buf.Len()}, nil
}

func flatten(img stdimage.Image) stdimage.Image {
	b := img.Bounds()
	dst := stdimage.NewRGBA(b)
	draw.Draw(dst, b, &stdimage.Uniform{C: color.White}, stdimage.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
