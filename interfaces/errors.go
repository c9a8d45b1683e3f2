package interfaces

import "errors"

// Sentinel errors for the confidential computation engine. Crypto and
// cohort-size failures must reach the caller as one of these; they are
// never downgraded to a default value.
var (
	// ErrEncryptionUnavailable is returned when no session key has been
	// established for the envelope codec.
	ErrEncryptionUnavailable = errors.New("encryption unavailable: no session key established")

	// ErrInvalidCiphertext is returned when envelope authentication fails,
	// indicating a tampered or truncated envelope.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: envelope authentication failed")

	// ErrKeyMismatch is returned when an envelope was sealed under a
	// different session key than the one opening it.
	ErrKeyMismatch = errors.New("key mismatch: envelope sealed under a different session key")

	// ErrDecryptionFailed aborts a whole dispatcher batch when any single
	// envelope fails to open. Partial computation over the subset that
	// happened to decrypt is not permitted.
	ErrDecryptionFailed = errors.New("decryption failed for batch")

	// ErrUnsupportedOperation is returned for operation names outside the
	// closed operation set.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrKAnonymityViolation is returned when a cohort query matches fewer
	// records than the required minimum cohort size. It carries no detail
	// beyond the violation itself and is raised before any decryption.
	ErrKAnonymityViolation = errors.New("insufficient cohort size")

	// ErrPolicyInputInvalid marks a malformed record handed to the policy
	// evaluator. Evaluation treats it as a denial with an explicit reason,
	// never a silent allow.
	ErrPolicyInputInvalid = errors.New("policy input invalid")
)
