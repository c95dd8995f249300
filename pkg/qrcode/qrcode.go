// Package qrcode renders enrollment URIs as QR code images that authenticator
// apps can scan. It wraps github.com/skip2/go-qrcode.
package qrcode

import (
	"encoding/base64"
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent           = errors.New("qrcode: content cannot be empty")
	ErrFailedToGenerateQRCode = errors.New("qrcode: failed to generate QR code")
)

// DefaultSize is the image edge in pixels used when no size is given.
const DefaultSize = 256

type options struct {
	size  int
	level skipqrcode.RecoveryLevel
}

// Option configures image generation.
type Option func(*options)

// WithSize sets the image edge in pixels. Non-positive values keep DefaultSize.
func WithSize(px int) Option {
	return func(o *options) {
		if px > 0 {
			o.size = px
		}
	}
}

// WithHighRecovery uses the highest error correction level, useful when the
// code is printed or partially covered by a logo.
func WithHighRecovery() Option {
	return func(o *options) { o.level = skipqrcode.Highest }
}

// PNG encodes content as a PNG image.
func PNG(content string, opts ...Option) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	o := options{size: DefaultSize, level: skipqrcode.Medium}
	for _, opt := range opts {
		opt(&o)
	}

	png, err := skipqrcode.Encode(content, o.level, o.size)
	if err != nil {
		return nil, errors.Join(ErrFailedToGenerateQRCode, err)
	}
	return png, nil
}

// DataURI encodes content as a "data:image/png;base64,..." string for an <img> src.
func DataURI(content string, opts ...Option) (string, error) {
	png, err := PNG(content, opts...)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
