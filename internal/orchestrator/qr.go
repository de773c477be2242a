package orchestrator

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

const challengeImageSize = 256

// challengeImage renders a challenge payload as a data URI so API
// clients can drop it straight into an <img> tag.
func challengeImage(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, challengeImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
