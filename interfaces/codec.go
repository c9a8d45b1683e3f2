package interfaces

// EnvelopeCodec seals plaintext into opaque envelopes and opens them
// again. The production implementation is an AES-GCM codec keyed per
// session; it stands in for a homomorphic ciphertext, so a real HE or
// MPC backend can be substituted without touching the domain engines.
// The dispatcher is the only component that calls Open.
type EnvelopeCodec interface {
	// Seal encrypts plaintext under the session key with a fresh nonce.
	// Sealing identical plaintext twice produces different envelopes, so
	// envelope equality never leaks plaintext equality. Returns
	// ErrEncryptionUnavailable when no key is established.
	Seal(plaintext []byte) (Envelope, error)

	// Open reverses Seal. Returns ErrKeyMismatch for envelopes sealed
	// under a foreign session key and ErrInvalidCiphertext when
	// authentication fails.
	Open(envelope Envelope) ([]byte, error)
}

// SealRecord is a convenience wrapper sealing a structured record.
func SealRecord(codec EnvelopeCodec, record Record) (Envelope, error) {
	payload, err := record.Marshal()
	if err != nil {
		return "", err
	}
	return codec.Seal(payload)
}

// OpenRecord opens an envelope and decodes the structured record inside.
func OpenRecord(codec EnvelopeCodec, envelope Envelope) (Record, error) {
	payload, err := codec.Open(envelope)
	if err != nil {
		return nil, err
	}
	return UnmarshalRecord(payload)
}
