package solwire

// Signer is the signing capability consumed by transaction helpers.
// The transport layers never hold key material; they accept fully
// signed payloads or a Signer supplied by the caller.
type Signer interface {
	// Sign signs payload and returns the 64-byte ed25519 signature.
	Sign(payload []byte) ([]byte, error)

	// PublicKey returns the address the produced signatures verify
	// against.
	PublicKey() PublicKey
}
