package pix

import "strings"

const (
	// MinPayloadLength is the shortest copy-and-paste code considered usable.
	MinPayloadLength = 50

	minPayloadField = 10
	minImageField   = 100
	pngDataPrefix   = "data:image/png;base64,"
)

var (
	payloadFields = []string{"payload", "emv", "qrcode", "qrCode", "qr_code", "codigo", "chave", "copyPaste", "copiaecola", "copiaECola"}
	imageFields   = []string{"base64", "imagem", "imagemQrcode", "image", "imageBase64"}
)

// QRCode is the PIX charge returned by the billing backend.
type QRCode struct {
	Payload string
	// Image is a data URI, empty when the backend sent none.
	Image string
}

// Usable reports whether the copy-and-paste code is long enough to hand to a customer.
func (q QRCode) Usable() bool {
	return len(q.Payload) >= MinPayloadLength
}

// ParseQRResponse picks the payload and image out of a backend QR response.
// A nested "data" object takes precedence over the top level.
func ParseQRResponse(raw map[string]any) QRCode {
	obj := raw
	if nested, ok := raw["data"].(map[string]any); ok {
		obj = nested
	}
	var out QRCode
	if obj == nil {
		return out
	}
	for _, key := range payloadFields {
		if s, ok := obj[key].(string); ok && len(s) > minPayloadField {
			out.Payload = s
			break
		}
	}
	for _, key := range imageFields {
		if s, ok := obj[key].(string); ok && len(s) > minImageField {
			if strings.HasPrefix(s, "data:image") {
				out.Image = s
			} else {
				out.Image = pngDataPrefix + s
			}
			break
		}
	}
	return out
}
