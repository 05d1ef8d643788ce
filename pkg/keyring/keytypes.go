package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
)

// SigningKey is the server's ed25519 keypair used to sign operator tokens.
// Raw bytes so it round-trips through the JSON key-value store; the accessors
// hand out copies so callers cannot mutate the stored key material.
type SigningKey struct {
	Public  []byte `json:"public"`
	Private []byte `json:"private"`
}

func NewSigningKey() (*SigningKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &SigningKey{
		Public:  pub,
		Private: priv,
	}, nil
}

func (k *SigningKey) PrivateKey() ed25519.PrivateKey {
	out := make([]byte, len(k.Private))
	copy(out, k.Private)
	return ed25519.PrivateKey(out)
}

func (k *SigningKey) PublicKey() ed25519.PublicKey {
	out := make([]byte, len(k.Public))
	copy(out, k.Public)
	return ed25519.PublicKey(out)
}
