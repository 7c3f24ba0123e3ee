// Package auth answers multi-factor challenges during password login.
package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	totpPeriod = 30
	totpDigits = 1e6
)

var ErrEmptySecret = errors.New("totp secret is empty")

// GenerateTOTP returns the RFC 6238 code (SHA1, 30s step, 6 digits) for a
// base32 encoded secret at t.
func GenerateTOTP(secret string, t time.Time) (int, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.Unix()/totpPeriod))
	h := hmac.New(sha1.New, key)
	h.Write(buf)
	sum := h.Sum(nil)

	off := sum[len(sum)-1] & 0xf
	trunc := (int(sum[off])&0x7f)<<24 |
		int(sum[off+1])<<16 |
		int(sum[off+2])<<8 |
		int(sum[off+3])

	return trunc % totpDigits, nil
}

// FormatTOTP zero-pads a code to six digits.
func FormatTOTP(code int) string {
	return fmt.Sprintf("%06d", code)
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrEmptySecret
	}
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode totp secret: %w", err)
	}
	return key, nil
}
