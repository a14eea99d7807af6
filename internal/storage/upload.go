package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // GIF decode support
	"image/jpeg"
	_ "image/png" // PNG decode support
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decode support
)

var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Uploaded describes a stored operator upload.
type Uploaded struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Upload decodes an operator image, downsizes it to MaxWidth and stores it as
// JPEG under listings/<id>/uploads/.
func (s *ImageStore) Upload(ctx context.Context, listingID, filename string, r io.Reader) (*Uploaded, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return nil, ErrEmptyListingID
	}

	data, err := io.ReadAll(io.LimitReader(r, s.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if int64(len(data)) > s.opts.MaxBytes {
		return nil, fmt.Errorf("%s: %w (%d MB)", filename, ErrImageTooLarge, s.opts.MaxBytes>>20)
	}
	if ct := detectContentType(data); !supportedImageTypes[ct] {
		return nil, fmt.Errorf("%s: %w: %s", filename, ErrUnsupportedImage, ct)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}

	out, w, h, err := EncodeJPEG(img, s.opts.MaxWidth, s.opts.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", filename, err)
	}

	key := fmt.Sprintf("listings/%s/uploads/%s.jpg", listingID, uuid.New().String())
	url, err := s.PutObject(ctx, key, "image/jpeg", out)
	if err != nil {
		return nil, err
	}
	return &Uploaded{Key: key, URL: url, Width: w, Height: h}, nil
}

// EncodeJPEG scales img down to maxWidth (never up), flattens transparency
// onto white and encodes it as JPEG.
func EncodeJPEG(img image.Image, maxWidth, quality int) ([]byte, int, int, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, 0, 0, fmt.Errorf("image has no pixels")
	}

	newWidth, newHeight := width, height
	if maxWidth > 0 && width > maxWidth {
		newWidth = maxWidth
		newHeight = int(float64(height) * float64(maxWidth) / float64(width))
		if newHeight < 1 {
			newHeight = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), newWidth, newHeight, nil
}

func detectContentType(data []byte) string {
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	if len(data) >= 8 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
		return "image/png"
	}
	if len(data) >= 6 && data[0] == 'G' && data[1] == 'I' && data[2] == 'F' {
		return "image/gif"
	}
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}
	return "application/octet-stream"
}
