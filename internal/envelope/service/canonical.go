package service

import (
	"crypto/sha256"
	"encoding/binary"
	"slices"
	"strconv"

	envelopeDomain "github.com/allisson/credx/internal/envelope/domain"
)

// associatedData binds the routing metadata of env into the AEAD tag (or the
// signature for plaintext envelopes). Any change to these fields fails authentication.
func associatedData(env *envelopeDomain.Envelope) []byte {
	to := slices.Clone(env.To)
	slices.Sort(to)

	buf := make([]byte, 0, 512)
	buf = appendLengthPrefixed(buf, []byte(env.ID))
	buf = appendLengthPrefixed(buf, []byte(env.Type))
	buf = appendLengthPrefixed(buf, []byte(env.From))
	buf = appendUint32(buf, uint32(len(to)))
	for _, party := range to {
		buf = appendLengthPrefixed(buf, []byte(party))
	}
	buf = appendLengthPrefixed(buf, []byte(env.ThreadID))
	buf = appendLengthPrefixed(buf, []byte(env.ParentThreadID))
	buf = appendLengthPrefixed(buf, []byte(env.Protocol))
	buf = appendLengthPrefixed(buf, []byte(env.SenderKeyID))
	buf = appendLengthPrefixed(buf, []byte(strconv.Itoa(env.KeyVersion)))
	buf = appendLengthPrefixed(buf, env.SenderPublicKey)
	buf = appendLengthPrefixed(buf, env.EphemeralPublicKey)
	buf = appendLengthPrefixed(buf, []byte(env.KeyType))
	buf = appendLengthPrefixed(buf, []byte(env.Algorithm))
	buf = appendLengthPrefixed(buf, []byte(env.SignerKeyID))
	buf = appendUint64(buf, uint64(env.CreatedAt.UnixNano()))
	if env.ExpiresAt != nil {
		buf = appendUint64(buf, uint64(env.ExpiresAt.UnixNano()))
	} else {
		buf = appendUint64(buf, 0)
	}

	sum := sha256.Sum256(buf)
	return sum[:]
}

// signingInput is what the signer signs for a plaintext envelope.
func signingInput(env *envelopeDomain.Envelope) []byte {
	out := associatedData(env)
	payloadSum := sha256.Sum256(env.Payload)
	return append(out, payloadSum[:]...)
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by data.
func appendLengthPrefixed(buf []byte, data []byte) []byte {
	buf = appendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

func appendUint32(buf []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(buf, v)
}

func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}
