package crypto

import (
	"golang.org/x/crypto/ed25519"
)

// Keypair is the signature-scheme collaborator from spec.md section 2.1,
// backed by golang.org/x/crypto/ed25519. The signature consensus variant's
// proposer identity is a Keypair's PublicKey.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair produces a fresh Ed25519 keypair.
func GenerateKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// Sign signs message with the keypair's private key.
func (k Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.Private, message)
}

// Verify reports whether sig is a valid signature over message by pub.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	return ed25519.Verify(pub, message, sig)
}
