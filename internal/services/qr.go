package services

import qrcode "github.com/skip2/go-qrcode"

// RenderQR encodes url as a 256x256 PNG. Callers treat the result as an
// opaque image blob.
func RenderQR(url string) ([]byte, error) {
	return qrcode.Encode(url, qrcode.Medium, 256)
}
