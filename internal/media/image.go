package media

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	// webp 解码注册到 image 包
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxWidth = 480
	thumbQuality    = 80
)

var errEmptyImage = errors.New("image payload is empty")

// Thumbnail decodes png/jpeg/gif/webp data and re-encodes it as a JPEG no wider than maxWidth.
// Smaller images keep their size; orientation from EXIF is applied.
func Thumbnail(data []byte, maxWidth int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errEmptyImage
	}
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(thumbQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
