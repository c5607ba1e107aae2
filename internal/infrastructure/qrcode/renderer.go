package qrcode

import (
	"encoding/base64"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"

	"github.com/paysettle/paysettle/internal/application/checkout"
)

const defaultSize = 256

// Renderer draws deposit payloads as PNG QR codes.
type Renderer struct {
	size int
}

func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = defaultSize
	}
	return &Renderer{size: size}
}

var _ checkout.QRCodeRenderer = (*Renderer)(nil)

// DataURL returns the payload encoded as a base64 PNG data URL.
func (r *Renderer) DataURL(payload string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("qr payload is empty")
	}
	png, err := goqrcode.Encode(payload, goqrcode.Medium, r.size)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
