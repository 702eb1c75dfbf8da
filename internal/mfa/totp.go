package mfa

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"regexp"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Issuer is the name shown in authenticator apps.
	Issuer = "Clearwell Health"

	totpPeriod = 30
	totpSkew   = 1 // accept the previous and next step for clock drift
	qrSize     = 200
)

var totpCodeRe = regexp.MustCompile(`^\d{6}$`)

// generateKey creates a fresh TOTP provisioning key for the account.
func generateKey(accountName string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      Issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("mfa: generate key: %w", err)
	}
	return key, nil
}

// qrDataURL renders the provisioning key as a PNG data URL for inline display.
func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("mfa: render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("mfa: encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// normalizeTOTPCode strips whitespace and checks the six-digit shape. Returns
// ErrInvalidCode for anything else so malformed and wrong codes are
// indistinguishable to callers.
func normalizeTOTPCode(code string) (string, error) {
	code = strings.Join(strings.Fields(code), "")
	if !totpCodeRe.MatchString(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

// verifyTOTP checks a code against the secret at time t, accepting one step
// of drift in either direction.
func verifyTOTP(code, secret string, t time.Time) bool {
	code, err := normalizeTOTPCode(code)
	if err != nil {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
