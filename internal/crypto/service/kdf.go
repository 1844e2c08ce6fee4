package service

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/hkdf"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
)

const (
	contentEncryptionLabel = "content-encryption"
	keyWrappingLabel       = "key-wrapping"
)

// expand runs one HKDF-SHA256 extract-and-expand for the given info label.
func expand(secret, salt []byte, info string) ([]byte, error) {
	out := make([]byte, cryptoDomain.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return out, nil
}

func deriveContentKeys(secret cryptoDomain.SharedSecret, salt []byte, protocolInfo string) (cryptoDomain.ContentKeys, error) {
	if len(secret) == 0 {
		return cryptoDomain.ContentKeys{}, &cryptoDomain.KeyAgreementError{Reason: "empty shared secret"}
	}

	cek, err := expand(secret, salt, protocolInfo+"/"+contentEncryptionLabel)
	if err != nil {
		return cryptoDomain.ContentKeys{}, err
	}
	kwk, err := expand(secret, salt, protocolInfo+"/"+keyWrappingLabel)
	if err != nil {
		cryptoDomain.Zero(cek)
		return cryptoDomain.ContentKeys{}, err
	}

	return cryptoDomain.ContentKeys{ContentEncryptionKey: cek, KeyWrappingKey: kwk}, nil
}

// ContentKeySalt builds the HKDF salt for one envelope: SHA-256 over the sorted
// recipient key ids joined by "." followed by the ephemeral public key. Every
// recipient computes the same salt regardless of the order of the "to" list.
func ContentKeySalt(recipientKeyIDs []string, ephemeralPublic []byte) []byte {
	ids := append([]string(nil), recipientKeyIDs...)
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(strings.Join(ids, ".")))
	h.Write(ephemeralPublic)
	return h.Sum(nil)
}
