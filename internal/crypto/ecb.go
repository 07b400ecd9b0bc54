package crypto

import (
	"bytes"
	"crypto/cipher"

	apperrors "PrivateLine/server/pkg/errors"
)

// Deterministic block-mode cipher kept only for cipher_version=1 readers.
// It is unauthenticated and leaks plaintext equality; the GCM columns are
// authoritative for every client that understands them.

func encryptECB(block cipher.Block, plaintext []byte) ([]byte, error) {
	bs := block.BlockSize()
	padded := pkcs7Pad(plaintext, bs)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += bs {
		block.Encrypt(out[i:i+bs], padded[i:i+bs])
	}
	return out, nil
}

func decryptECB(block cipher.Block, ciphertext []byte) ([]byte, error) {
	bs := block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, apperrors.DecryptionFailed("legacy ciphertext not block-aligned", nil)
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += bs {
		block.Decrypt(out[i:i+bs], ciphertext[i:i+bs])
	}
	return pkcs7Unpad(out, bs)
}

func pkcs7Pad(data []byte, bs int) []byte {
	n := bs - len(data)%bs
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, bs int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > bs || n > len(data) {
		return nil, apperrors.DecryptionFailed("bad legacy padding", nil)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, apperrors.DecryptionFailed("bad legacy padding", nil)
		}
	}
	return data[:len(data)-n], nil
}
