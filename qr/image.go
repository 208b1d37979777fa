package qr

import (
	qrcode "github.com/skip2/go-qrcode"
)

// RenderPNG rasterizes an encoded payload string into a PNG QR image.
func RenderPNG(content string, size int) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, size)
}
