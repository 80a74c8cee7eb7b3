// Package render turns pairing URIs into scannable images.
package render

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const DefaultQRSize = 256

type Renderer interface {
	Render(uri string) ([]byte, error)
}

// QRRenderer encodes a URI as a PNG QR code.
type QRRenderer struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewQRRenderer() *QRRenderer {
	return &QRRenderer{Size: DefaultQRSize, Level: qrcode.Medium}
}

func (r *QRRenderer) Render(uri string) ([]byte, error) {
	if uri == "" {
		return nil, fmt.Errorf("render qr: empty uri")
	}
	png, err := qrcode.Encode(uri, r.Level, r.Size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
