// Package domain defines the wire envelope exchanged between parties and the
// logical message it carries.
package domain

import (
	"encoding/base64"
	"encoding/json"
	"slices"
	"time"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
)

// Bytes is a byte slice encoded as unpadded base64url in JSON.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// RecipientKeyWrap holds the content key wrapped for one recipient key.
type RecipientKeyWrap struct {
	Recipient  string `json:"recipient"`
	KeyID      string `json:"kid"`
	Version    int    `json:"kver,omitempty"`
	WrappedKey Bytes  `json:"encrypted_key"`
}

// Envelope is the wire unit. Encrypted envelopes set Ciphertext; signed plaintext
// envelopes set Payload and Signature instead.
type Envelope struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	From           string     `json:"from"`
	To             []string   `json:"to"`
	CreatedAt      time.Time  `json:"created_time"`
	ExpiresAt      *time.Time `json:"expires_time,omitempty"`
	ThreadID       string     `json:"thid,omitempty"`
	ParentThreadID string     `json:"pthid,omitempty"`
	Protocol       string     `json:"protocol,omitempty"`

	Ciphertext         Bytes                  `json:"ciphertext,omitempty"`
	Nonce              Bytes                  `json:"iv,omitempty"`
	Tag                Bytes                  `json:"tag,omitempty"`
	Algorithm          cryptoDomain.Algorithm `json:"enc,omitempty"`
	RecipientKeyWrap   []RecipientKeyWrap     `json:"recipients,omitempty"`
	SenderKeyID        string                 `json:"skid,omitempty"`
	KeyVersion         int                    `json:"skver,omitempty"`
	SenderPublicKey    Bytes                  `json:"spk,omitempty"`
	EphemeralPublicKey Bytes                  `json:"epk,omitempty"`
	KeyType            cryptoDomain.KeyType   `json:"kty,omitempty"`

	Payload     Bytes  `json:"payload,omitempty"`
	Signature   Bytes  `json:"signature,omitempty"`
	SignerKeyID string `json:"signer_kid,omitempty"`
}

// Encrypted reports whether the envelope is an encrypted one. An empty body still
// produces a tag and wrapped keys.
func (e *Envelope) Encrypted() bool {
	return len(e.Ciphertext) > 0 || len(e.Tag) > 0 || len(e.RecipientKeyWrap) > 0
}

// Addressed reports whether party is listed in To.
func (e *Envelope) Addressed(party string) bool {
	return slices.Contains(e.To, party)
}

// WrapFor returns the wrapped-key entry for keyID, or nil.
func (e *Envelope) WrapFor(keyID string) *RecipientKeyWrap {
	for i := range e.RecipientKeyWrap {
		if e.RecipientKeyWrap[i].KeyID == keyID {
			return &e.RecipientKeyWrap[i]
		}
	}
	return nil
}

// Marshal encodes the envelope as JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes an envelope produced by Marshal.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &MalformedError{Field: "json", Reason: err.Error()}
	}
	return &env, nil
}

// Message is the logical content of an envelope.
type Message struct {
	ID             string
	Type           string
	From           string
	To             []string
	ThreadID       string
	ParentThreadID string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	Body           []byte
}

// Party is a participant identifier together with the key id used on its behalf.
type Party struct {
	ID    string
	KeyID string
}

// Options select how an envelope is produced.
type Options struct {
	// Plaintext produces a signed but unencrypted envelope.
	Plaintext bool

	// ContentAlgorithm defaults to AES-256-GCM.
	ContentAlgorithm cryptoDomain.Algorithm

	// Protocol is bound into key derivation and the associated data.
	Protocol string

	// SigningKeyID names the signing key for plaintext envelopes.
	SigningKeyID string
}
