package cryptoutils

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
)

// CommitmentSaltSize is the salt length for value commitments. A fresh
// salt per commitment prevents offline guessing over small value spaces
// such as bid amounts.
const CommitmentSaltSize = 32

// Commitment is a one-way Keccak-256 binding of a (value, salt) pair. A
// party publishes the commitment first and reveals value and salt later;
// verification is an exact recomputation with no tolerance.
type Commitment [32]byte

// NewCommitmentSalt generates a fresh random salt. Salts must never be
// reused across commitments.
func NewCommitmentSalt() ([]byte, error) {
	salt := make([]byte, CommitmentSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate commitment salt: %w", err)
	}
	return salt, nil
}

// Commit computes the commitment over value concatenated with salt.
func Commit(value, salt []byte) Commitment {
	return Commitment(crypto.Keccak256Hash(value, salt))
}

// VerifyCommitment recomputes and compares. Exact match only.
func VerifyCommitment(c Commitment, value, salt []byte) bool {
	recomputed := Commit(value, salt)
	return bytes.Equal(c[:], recomputed[:])
}

// String returns the hex form of the commitment.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// Bytes returns the raw digest.
func (c Commitment) Bytes() []byte {
	return c[:]
}

// Signer produces the signatures carried on exported audit blocks. It is
// an ordinary ECDSA signer over a Keccak-256 digest; in the simulation it
// stands in for whatever attestation or notary signature a production
// deployment would use.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner generates a fresh signing key.
func NewSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &Signer{key: key}, nil
}

// NewSignerFromSeed derives a deterministic signer from a 32-byte seed.
// Used by tests and demo sessions that need reproducible signatures.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != 32 {
		return nil, errors.New("signer seed must be 32 bytes")
	}
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return &Signer{key: key}, nil
}

// Sign signs the Keccak-256 digest of the payload.
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	digest := crypto.Keccak256Hash(payload)
	return crypto.Sign(digest.Bytes(), s.key)
}

// PublicKeyBytes returns the uncompressed public key for verification.
func (s *Signer) PublicKeyBytes() []byte {
	return crypto.FromECDSAPub(&s.key.PublicKey)
}

// VerifySignature checks a signature produced by Sign against a public key.
func VerifySignature(pubkey, payload, signature []byte) bool {
	if len(signature) < 64 {
		return false
	}
	digest := crypto.Keccak256Hash(payload)
	// crypto.VerifySignature expects the 64-byte R||S form without the
	// recovery id byte appended by crypto.Sign.
	return crypto.VerifySignature(pubkey, digest.Bytes(), signature[:64])
}
