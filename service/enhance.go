package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	// Register decoders for the upload formats we accept.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	"github.com/zheomara/ScribbleToDoc/model"
)

// EnhanceImage prepares a page photo for recognition: optional downscale to
// maxDimension on the longer edge, then grayscale / contrast / binarization
// per cfg. The result is always PNG-encoded. With no enhancement requested
// and no downscale needed, the input bytes are returned untouched.
func EnhanceImage(data []byte, cfg model.OCRConfig, maxDimension int) ([]byte, error) {
	needsTone := cfg.Grayscale || cfg.Threshold > 0 || (cfg.Contrast != 0 && cfg.Contrast != 1)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	scaled, resized := downscale(img, maxDimension)
	if !needsTone && !resized {
		return data, nil
	}
	img = scaled

	if needsTone {
		img = adjustTone(img, cfg)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode enhanced image: %w", err)
	}
	return buf.Bytes(), nil
}

// downscale shrinks img so its longer edge is at most maxDimension. It
// reports whether any scaling happened.
func downscale(img image.Image, maxDimension int) (image.Image, bool) {
	if maxDimension <= 0 {
		return img, false
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDimension {
		return img, false
	}

	scale := float64(maxDimension) / float64(longest)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst, true
}

// adjustTone applies grayscale conversion, contrast stretch around the
// midpoint, and optional binarization at cfg.Threshold (1-255). Threshold
// implies grayscale.
func adjustTone(img image.Image, cfg model.OCRConfig) image.Image {
	bounds := img.Bounds()
	contrast := cfg.Contrast
	if contrast == 0 {
		contrast = 1
	}

	gray := cfg.Grayscale || cfg.Threshold > 0
	if gray {
		dst := image.NewGray(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				v := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
				v = applyContrast(v, contrast)
				if cfg.Threshold > 0 {
					if int(v) >= cfg.Threshold {
						v = 255
					} else {
						v = 0
					}
				}
				dst.SetGray(x, y, color.Gray{Y: v})
			}
		}
		return dst
	}

	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			dst.SetRGBA(x, y, color.RGBA{
				R: applyContrast(uint8(r>>8), contrast),
				G: applyContrast(uint8(g>>8), contrast),
				B: applyContrast(uint8(b>>8), contrast),
				A: uint8(a >> 8),
			})
		}
	}
	return dst
}

func applyContrast(v uint8, contrast float64) uint8 {
	adjusted := (float64(v)-128)*contrast + 128
	if adjusted < 0 {
		return 0
	}
	if adjusted > 255 {
		return 255
	}
	return uint8(adjusted)
}
