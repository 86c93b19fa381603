package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"park-ticketing/internal/models"

	"github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

const defaultSize = 256

// QRGenerator renders ticket QR codes. With a secret the embedded JSON is
// sealed with AES-GCM and base64url encoded; without one it is embedded as is.
type QRGenerator struct {
	secret []byte
	size   int
}

func NewQRGenerator(secret string, size int) *QRGenerator {
	if size <= 0 {
		size = defaultSize
	}
	g := &QRGenerator{size: size}
	if secret != "" {
		hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
		g.secret = hashed[:]
	}
	return g
}

// Content returns the exact text that goes into the QR symbol.
func (q *QRGenerator) Content(ticket models.Ticket) (string, error) {
	data, err := json.Marshal(ticket.QRContent())
	if err != nil {
		return "", err
	}
	if q.secret == nil {
		return string(data), nil
	}
	return encryptAES(data, q.secret)
}

func (q *QRGenerator) GeneratePNG(ticket models.Ticket) ([]byte, error) {
	content, err := q.Content(ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to build QR content: %w", err)
	}
	png, err := qrcode.Encode(content, qrcode.Medium, q.size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR image: %w", err)
	}
	return png, nil
}

// GenerateDataURL renders the QR image as a data URL suitable for an <img> tag.
func (q *QRGenerator) GenerateDataURL(ticket models.Ticket) (string, error) {
	png, err := q.GeneratePNG(ticket)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// DecryptQRData turns scanned QR text back into its ticket fields.
func (q *QRGenerator) DecryptQRData(content string) (*models.QRContent, error) {
	data := []byte(content)
	if q.secret != nil {
		plain, err := decryptAES(content, q.secret)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	var out models.QRContent
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid QR payload: %w", err)
	}
	return &out, nil
}

// DecodeDataURL extracts the PNG bytes from a value produced by GenerateDataURL.
func DecodeDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return nil, errors.New("not a PNG data URL")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, dataURLPrefix))
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func decryptAES(encoded string, key []byte) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid QR encoding: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("QR payload too short")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("QR payload failed authentication: %w", err)
	}
	return plain, nil
}
