package wire

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/sigilrun/sigilgraph/pkg/fact"
)

// VerifySignatures checks every signature on f against f's hash, hex
// decoding both the public key and the signature the way
// core/pkg/crypto.Ed25519Verifier does for its own signed records. It
// returns an error naming the first signature that fails to verify, or
// nil if f carries none or all verify. Signature verification is a
// wire-layer concern (facts arrive over the wire already carrying
// signatures); the specification subsystem itself never calls this.
func VerifySignatures(f *fact.Fact) error {
	for i, sig := range f.Signatures {
		pubkey, err := hex.DecodeString(sig.PublicKey)
		if err != nil {
			return fmt.Errorf("wire: signature %d: decoding public key: %w", i, err)
		}
		if len(pubkey) != ed25519.PublicKeySize {
			return fmt.Errorf("wire: signature %d: invalid public key size %d", i, len(pubkey))
		}
		raw, err := hex.DecodeString(sig.Signature)
		if err != nil {
			return fmt.Errorf("wire: signature %d: decoding signature: %w", i, err)
		}
		if !ed25519.Verify(ed25519.PublicKey(pubkey), []byte(f.Hash), raw) {
			return fmt.Errorf("wire: signature %d: verification failed", i)
		}
	}
	return nil
}
