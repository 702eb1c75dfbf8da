package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// BackupCodeCount is how many recovery codes a set contains.
	BackupCodeCount = 10

	// backupCodeLength is the character length of a raw code.
	backupCodeLength = 8

	// backupCodeAlphabet excludes I, O, 0, and 1 so codes survive being read
	// aloud or written down.
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateBackupCodes returns a fresh set of plaintext recovery codes and the
// parallel slice of their hashes. The plaintext is shown to the user exactly
// once; only the hashes are stored.
func GenerateBackupCodes() (codes []string, hashes []string, err error) {
	codes = make([]string, BackupCodeCount)
	hashes = make([]string, BackupCodeCount)
	for i := range codes {
		code, err := randomBackupCode()
		if err != nil {
			return nil, nil, err
		}
		codes[i] = code
		hashes[i] = HashBackupCode(code)
	}
	return codes, hashes, nil
}

func randomBackupCode() (string, error) {
	buf := make([]byte, backupCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mfa: generate backup code: %w", err)
	}
	out := make([]byte, backupCodeLength)
	for i, b := range buf {
		out[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
	}
	return string(out), nil
}

// HashBackupCode returns the SHA-256 hex digest of the normalized code.
// Codes are high-entropy and single-use, so an unsalted fast hash is enough.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(normalizeBackupCode(code)))
	return hex.EncodeToString(sum[:])
}

// normalizeBackupCode uppercases and strips separators and whitespace, so
// "abcd-2345" and "ABCD 2345" both match the stored hash of "ABCD2345".
func normalizeBackupCode(code string) string {
	code = strings.ToUpper(code)
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, code)
}

// FormatBackupCode renders a raw code as XXXX-XXXX for display.
func FormatBackupCode(code string) string {
	if len(code) != backupCodeLength {
		return code
	}
	return code[:4] + "-" + code[4:]
}

// FormatBackupCodes renders a full set for display.
func FormatBackupCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = FormatBackupCode(c)
	}
	return out
}

// VerifyBackupCode checks candidate against the stored hash set. On a match
// it returns ok and the set with the consumed hash removed; on a miss it
// returns the set unchanged.
func VerifyBackupCode(storedHashes []string, candidate string) (ok bool, remaining []string) {
	want := HashBackupCode(candidate)
	remaining = make([]string, 0, len(storedHashes))
	for _, h := range storedHashes {
		if !ok && subtle.ConstantTimeCompare([]byte(h), []byte(want)) == 1 {
			ok = true
			continue
		}
		remaining = append(remaining, h)
	}
	if !ok {
		return false, storedHashes
	}
	return true, remaining
}
