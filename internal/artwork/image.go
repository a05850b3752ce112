// Package artwork resolves album artwork for tracks through a coalescing,
// cost-bounded, two-source cache.
package artwork

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder for artwork
	_ "image/jpeg" // JPEG decoder for artwork
	_ "image/png"  // PNG decoder for artwork
)

// ErrEmpty is returned when decoding zero bytes.
var ErrEmpty = errors.New("empty image data")

// Image is decoded artwork together with the bytes it came from.
type Image struct {
	// Hash is the hex SHA-256 of Data and identifies the image in the cache.
	Hash   string
	Data   []byte
	Format string
	img    image.Image
}

// Decode parses encoded image bytes.
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	sum := sha256.Sum256(data)
	return &Image{
		Hash:   hex.EncodeToString(sum[:]),
		Data:   data,
		Format: format,
		img:    img,
	}, nil
}

// Decoded returns the decoded image.
func (i *Image) Decoded() image.Image { return i.img }

// Width returns the image width in pixels.
func (i *Image) Width() int { return i.img.Bounds().Dx() }

// Height returns the image height in pixels.
func (i *Image) Height() int { return i.img.Bounds().Dy() }

// Cost approximates the in-memory size of the decoded image.
func (i *Image) Cost() int64 {
	return int64(i.Width()) * int64(i.Height()) * 4
}
