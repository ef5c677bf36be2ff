package out

// SecretSealer encrypts a secret for storage at rest. Opening sealed values
// is the credential provider's job; the admin layer only ever seals.
type SecretSealer interface {
	Seal(plaintext []byte) ([]byte, error)
}
