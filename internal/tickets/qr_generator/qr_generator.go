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

	"smec-portal/internal/models"

	"github.com/skip2/go-qrcode"
)

// Payload is what a gate scanner recovers from a pass.
type Payload struct {
	TicketID     string `json:"ticketId"`
	SerialNumber string `json:"serialNumber"`
	EventID      string `json:"eventId"`
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

func PayloadFor(ticket models.Ticket) Payload {
	p := Payload{TicketID: ticket.ID, SerialNumber: ticket.SerialNumber}
	if ticket.Event != nil {
		p.EventID = ticket.Event.ID
	}
	return p
}

// GenerateEncryptedQR returns a PNG QR code of the sealed payload.
func (q *QRGenerator) GenerateEncryptedQR(ticket models.Ticket) ([]byte, error) {
	sealed, err := q.Seal(PayloadFor(ticket))
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(sealed, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR: %w", err)
	}
	return png, nil
}

// Seal encrypts p with AES-GCM and returns url-safe base64 of nonce||ciphertext.
func (q *QRGenerator) Seal(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	gcm, err := q.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(gcm.Seal(nonce, nonce, data, nil)), nil
}

// DecryptPayload reverses Seal.
func (q *QRGenerator) DecryptPayload(sealed string) (*Payload, error) {
	raw, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("invalid QR payload encoding: %w", err)
	}

	gcm, err := q.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("QR payload too short")
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt QR payload: %w", err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid QR payload: %w", err)
	}
	return &p, nil
}

func (q *QRGenerator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
