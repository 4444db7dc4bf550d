// Package totp implements RFC 6238 time-based one-time passwords for
// two-factor enrollment and login.
//
// Codes are 6 decimal digits computed with HMAC-SHA1 over 30 second steps.
// Verification accepts the current step and the configured number of
// adjacent steps on each side to tolerate clock skew.
package totp

import (
	"bytes"
	"encoding/base32"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/dtroode/gophaccount-server/internal/model"
)

const (
	// Period is the length of one time step in seconds.
	Period = 30
	// Digits is the number of digits in a code.
	Digits = otp.DigitsSix
	// SecretSize is the shared secret length in bytes (160 bits).
	SecretSize = 20
)

// Engine generates shared secrets and verifies codes.
type Engine struct {
	issuer string
	skew   uint
}

// NewEngine creates an Engine that labels provisioning URIs with issuer and
// accepts codes up to skew steps away from the current one.
func NewEngine(issuer string, skew uint) *Engine {
	return &Engine{issuer: issuer, skew: skew}
}

// GenerateSecret creates a random secret for accountLabel and the otpauth://
// URI an authenticator app imports.
func (e *Engine) GenerateSecret(accountLabel string) (model.Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountLabel,
		Period:      Period,
		SecretSize:  SecretSize,
		Digits:      Digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return model.Enrollment{}, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	return model.Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

// ProvisioningURI rebuilds the otpauth:// URI for an already issued secret.
func (e *Engine) ProvisioningURI(secret, accountLabel string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountLabel,
		Period:      Period,
		Secret:      raw,
		Digits:      Digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build provisioning uri: %w", err)
	}

	return key.URL(), nil
}

// Verify reports whether code is valid for secret at now.
func (e *Engine) Verify(secret, code string, now time.Time) bool {
	if secret == "" || !isCode(code) {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, now, e.validateOpts())
	if err != nil {
		return false
	}

	return ok
}

// GenerateCode returns the code for secret at the given time.
func (e *Engine) GenerateCode(secret string, at time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("empty totp secret")
	}

	code, err := totp.GenerateCodeCustom(secret, at, e.validateOpts())
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}

	return code, nil
}

// RenderQRCode encodes uri as a size x size PNG QR code.
func RenderQRCode(uri string, size int) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provisioning uri: %w", err)
	}

	img, err := key.Image(size, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	return buf.Bytes(), nil
}

func (e *Engine) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      e.skew,
		Digits:    Digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func decodeSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty totp secret")
	}

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return nil, fmt.Errorf("failed to decode totp secret: %w", err)
	}

	return raw, nil
}

func isCode(code string) bool {
	if len(code) != Digits.Length() {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
