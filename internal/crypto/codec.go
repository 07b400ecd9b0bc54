package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strconv"

	apperrors "PrivateLine/server/pkg/errors"
)

const (
	// PreviewLimit bounds the plaintext search preview. The preview column
	// exists only so substring search works without decrypting rows; short
	// messages fit entirely, which is the documented tradeoff.
	PreviewLimit = 100

	nonceSize = 12
	tagSize   = 16
)

// Envelope is the full encrypted form of one message body: the modern
// authenticated ciphertext, the legacy deterministic ciphertext kept for
// old readers, and the bounded plaintext preview.
type Envelope struct {
	Text          string
	IV            string
	Tag           string
	CipherVersion int16
	TextECB       string
	Preview       string
}

// Codec derives a per-message key from the message timestamp and a fixed
// master secret. The same timestamp always yields the same key, which is
// why edits must reuse the original timestamp.
type Codec struct {
	masterSecret []byte
}

func NewCodec(masterSecret string) *Codec {
	return &Codec{masterSecret: []byte(masterSecret)}
}

func (c *Codec) deriveKey(timestamp int64) []byte {
	h := sha256.New()
	h.Write(c.masterSecret)
	h.Write([]byte(":"))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return h.Sum(nil)
}

// EncryptForStorage produces both cipher formats plus the search preview
// for a plaintext created (or originally created, for edits) at timestamp.
func (c *Codec) EncryptForStorage(plaintext string, timestamp int64) (*Envelope, error) {
	key := c.deriveKey(timestamp)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "init gcm", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate nonce", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	ecb, err := encryptECB(block, []byte(plaintext))
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Text:          base64.StdEncoding.EncodeToString(ct),
		IV:            base64.StdEncoding.EncodeToString(nonce),
		Tag:           base64.StdEncoding.EncodeToString(tag),
		CipherVersion: 2,
		TextECB:       base64.StdEncoding.EncodeToString(ecb),
		Preview:       Preview(plaintext),
	}, nil
}

// Decrypt opens the modern ciphertext under the key derived from timestamp.
// A tag mismatch or malformed field fails closed: corrupted plaintext is
// never returned.
func (c *Codec) Decrypt(env *Envelope, timestamp int64) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(env.Text)
	if err != nil {
		return "", apperrors.DecryptionFailed("malformed ciphertext", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return "", apperrors.DecryptionFailed("malformed iv", err)
	}
	tag, err := base64.StdEncoding.DecodeString(env.Tag)
	if err != nil {
		return "", apperrors.DecryptionFailed("malformed tag", err)
	}
	if len(nonce) != nonceSize || len(tag) != tagSize {
		return "", apperrors.DecryptionFailed("wrong iv or tag length", nil)
	}

	block, err := aes.NewCipher(c.deriveKey(timestamp))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "init gcm", err)
	}

	plain, err := gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", apperrors.DecryptionFailed("authentication failed", err)
	}
	return string(plain), nil
}

// DecryptLegacy opens the deterministic cipher_version=1 column. Kept so
// rows written before the authenticated scheme stay readable server-side.
func (c *Codec) DecryptLegacy(textECB string, timestamp int64) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(textECB)
	if err != nil {
		return "", apperrors.DecryptionFailed("malformed legacy ciphertext", err)
	}
	block, err := aes.NewCipher(c.deriveKey(timestamp))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "init cipher", err)
	}
	plain, err := decryptECB(block, raw)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Preview truncates plaintext to the bounded search preview.
func Preview(plaintext string) string {
	runes := []rune(plaintext)
	if len(runes) <= PreviewLimit {
		return plaintext
	}
	return string(runes[:PreviewLimit])
}
