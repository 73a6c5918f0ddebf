package boardingpass

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
	"time"

	"atlas-air/internal/models"

	"github.com/skip2/go-qrcode"
)

var ErrNotBoardable = errors.New("cancelled reservations have no boarding pass")

// Pass is the content encrypted into the QR image.
type Pass struct {
	ReservationCode string           `json:"code"`
	Passenger       string           `json:"passenger"`
	FlightNumber    string           `json:"flight"`
	Origin          string           `json:"from"`
	Destination     string           `json:"to"`
	Departure       time.Time        `json:"departure"`
	SeatNumber      string           `json:"seat"`
	SeatClass       models.SeatClass `json:"class"`
}

// PassFor builds the pass of a reservation loaded with its relations.
func PassFor(r models.Reservation) (Pass, error) {
	if !r.Active() {
		return Pass{}, ErrNotBoardable
	}
	p := Pass{ReservationCode: r.ReservationCode}
	if r.Customer != nil {
		p.Passenger = r.Customer.Name
	}
	if r.Flight != nil {
		p.FlightNumber = r.Flight.FlightNumber
		p.Departure = r.Flight.ScheduledDeparture
		if r.Flight.OriginAirport != nil {
			p.Origin = r.Flight.OriginAirport.Code
		}
		if r.Flight.DestinationAirport != nil {
			p.Destination = r.Flight.DestinationAirport.Code
		}
	}
	if r.Seat != nil {
		p.SeatNumber = r.Seat.SeatNumber
		p.SeatClass = r.Seat.SeatClass
	}
	return p, nil
}

type QRGenerator struct {
	secret []byte
	size   int
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:], size: 256}
}

// GenerateEncryptedQR renders the encrypted pass as a PNG.
func (q *QRGenerator) GenerateEncryptedQR(p Pass) ([]byte, error) {
	token, err := q.Seal(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, q.size)
}

// Seal encrypts the pass with AES-GCM and returns it URL-safe base64 encoded.
func (q *QRGenerator) Seal(p Pass) (string, error) {
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
	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Tampered or foreign tokens fail.
func (q *QRGenerator) Open(token string) (Pass, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Pass{}, fmt.Errorf("decode boarding pass: %w", err)
	}
	gcm, err := q.aead()
	if err != nil {
		return Pass{}, err
	}
	if len(raw) < gcm.NonceSize() {
		return Pass{}, errors.New("boarding pass too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Pass{}, fmt.Errorf("decrypt boarding pass: %w", err)
	}
	var p Pass
	if err := json.Unmarshal(data, &p); err != nil {
		return Pass{}, fmt.Errorf("parse boarding pass: %w", err)
	}
	return p, nil
}

func (q *QRGenerator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
