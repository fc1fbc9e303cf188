package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	nano "github.com/nanopay/nanogate/pkg"
)

// aesProtector encrypts private keys at rest with AES-256-GCM. The
// cipher key is derived from the configured secret; ciphertexts carry
// their nonce as a hex prefix.
type aesProtector struct {
	aead cipher.AEAD
}

// NewProtector builds a nano.Protector from the configured secret.
func NewProtector(secret string) (nano.Protector, error) {
	if secret == "" {
		return nil, nano.NewErr(nano.BadRequest, "key protection secret is not configured")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aesProtector{aead: aead}, nil
}

func (p *aesProtector) Encrypt(plain []byte) (string, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := p.aead.Seal(nil, nonce, plain, nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

func (p *aesProtector) Decrypt(protected string) ([]byte, error) {
	sep := strings.IndexByte(protected, ':')
	if sep < 0 {
		return nil, nano.NewErr(nano.MissingKeyMaterial, "protected key has no nonce prefix")
	}
	nonce, err := hex.DecodeString(protected[:sep])
	if err != nil || len(nonce) != p.aead.NonceSize() {
		return nil, nano.NewErr(nano.MissingKeyMaterial, "protected key nonce is invalid")
	}
	sealed, err := hex.DecodeString(protected[sep+1:])
	if err != nil {
		return nil, nano.NewErr(nano.MissingKeyMaterial, "protected key ciphertext is invalid")
	}
	plain, err := p.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, nano.NewErr(nano.MissingKeyMaterial, "protected key does not decrypt with the configured secret")
	}
	return plain, nil
}
