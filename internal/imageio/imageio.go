// Package imageio decodes uploaded document images and encodes redacted
// results back to a raster format.
//
// Supported input formats: PNG, JPEG, GIF, BMP, TIFF and WebP.
// Supported output formats: PNG, JPEG, BMP and TIFF. Inputs in any other
// format are written back as PNG.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	// Decoders registered with image.Decode.
	_ "image/gif"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxImageBytes is the largest accepted encoded image (20MB).
const MaxImageBytes = 20 * 1024 * 1024

const jpegQuality = 92

var (
	// ErrUndecodableImage is returned when the bytes are not an image in a supported format.
	ErrUndecodableImage = errors.New("could not read file as an image")

	// ErrImageTooLarge is returned when the encoded image exceeds MaxImageBytes.
	ErrImageTooLarge = errors.New("image exceeds the maximum size (20MB)")

	// ErrEmptyImage is returned for zero-length input or images without pixels.
	ErrEmptyImage = errors.New("image is empty")
)

// Decode validates and decodes an encoded image. The returned format is the
// registered decoder name ("png", "jpeg", "bmp", ...).
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	if len(data) > MaxImageBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(data))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	if img.Bounds().Empty() {
		return nil, "", ErrEmptyImage
	}
	return img, format, nil
}

// OutputFormat returns the format a decoded image of the given format is
// written back as.
func OutputFormat(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "jpeg"
	case "bmp":
		return "bmp"
	case "tiff", "tif":
		return "tiff"
	default:
		return "png"
	}
}

// Encode writes img in the output format for format and returns the format used.
func Encode(w io.Writer, img image.Image, format string) (string, error) {
	out := OutputFormat(format)

	var err error
	switch out {
	case "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case "bmp":
		err = bmp.Encode(w, img)
	case "tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(w, img)
	}
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", out, err)
	}
	return out, nil
}

// EncodeBytes is Encode into a fresh buffer.
func EncodeBytes(img image.Image, format string) ([]byte, string, error) {
	var buf bytes.Buffer
	out, err := Encode(&buf, img, format)
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), out, nil
}

// EncodePNG encodes img as PNG. Cloud engines receive images in this form.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Extension returns the file extension, including the dot, for a format.
// Decode-only formats keep their own extension.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	}
	switch OutputFormat(format) {
	case "jpeg":
		return ".jpg"
	case "bmp":
		return ".bmp"
	case "tiff":
		return ".tiff"
	default:
		return ".png"
	}
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	}
	switch OutputFormat(format) {
	case "jpeg":
		return "image/jpeg"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}

// IsImageExtension reports whether a file name carries an extension Decode accepts.
func IsImageExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
