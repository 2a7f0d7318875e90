package secrets

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// envelopePrefix tags ciphertext so a stored row is recognizably a sealed
// envelope rather than accidental plaintext, mirroring the versioned
// ciphertext prefixes si's vault package uses for the same reason.
const envelopePrefix = "loom-secret:v1:"

func seal(plaintext string, kek *KEK) (string, error) {
	recipient, err := age.ParseX25519Recipient(kek.recipient)
	if err != nil {
		return "", fmt.Errorf("secrets: parse KEK recipient: %w", err)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return "", fmt.Errorf("secrets: open age writer: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("secrets: encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("secrets: finalize envelope: %w", err)
	}
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

func unseal(ciphertext string, kek *KEK) (string, error) {
	if !strings.HasPrefix(ciphertext, envelopePrefix) {
		return "", fmt.Errorf("secrets: value is not a %s envelope", envelopePrefix)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, envelopePrefix))
	if err != nil {
		return "", fmt.Errorf("secrets: decode envelope: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), kek.identity)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("secrets: read plaintext: %w", err)
	}
	return string(plain), nil
}
