package gateway

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"

	"letmaster-backend/internal/apperr"
)

// Envelope crypto for signed gateway requests: the JSON payload is encrypted
// with a fresh AES-256-CBC key, and the key+IV pair is wrapped with the
// provider's RSA public key. The gateway receives the ciphertext in the
// x-signature header and the wrapped key in x-key.

const (
	aesKeyLen = 32
	aesIVLen  = 16
)

// GenerateAESKeyIV returns a fresh random key and IV for one request.
func GenerateAESKeyIV() (key, iv []byte, err error) {
	key = make([]byte, aesKeyLen)
	if _, err = rand.Read(key); err != nil {
		return nil, nil, apperr.Cryptof(err, "generate aes key")
	}
	iv = make([]byte, aesIVLen)
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, apperr.Cryptof(err, "generate aes iv")
	}
	return key, iv, nil
}

// EncryptPayload AES-256-CBC encrypts payload with PKCS7 padding and returns
// the ciphertext base64-encoded.
func EncryptPayload(payload, key, iv []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apperr.Cryptof(err, "init aes cipher")
	}
	padded := pkcs7Pad(payload, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// WrapKeyIV RSA-OAEP(SHA-256) encrypts "base64(key):base64(iv)" with the
// provider's PEM public key and returns it base64-encoded.
func WrapKeyIV(publicKeyPEM string, key, iv []byte) (string, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return "", apperr.Cryptof(errors.New("no PEM block"), "parse gateway public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return "", apperr.Cryptof(err, "parse gateway public key")
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return "", apperr.Cryptof(errors.New("not an RSA key"), "parse gateway public key")
	}

	plain := base64.StdEncoding.EncodeToString(key) + ":" + base64.StdEncoding.EncodeToString(iv)
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaKey, []byte(plain), nil)
	if err != nil {
		return "", apperr.Cryptof(err, "wrap aes key")
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// Seal produces the x-signature and x-key header values for one payload.
func Seal(payload []byte, publicKeyPEM string) (signature, wrappedKey string, err error) {
	key, iv, err := GenerateAESKeyIV()
	if err != nil {
		return "", "", err
	}
	signature, err = EncryptPayload(payload, key, iv)
	if err != nil {
		return "", "", err
	}
	wrappedKey, err = WrapKeyIV(publicKeyPEM, key, iv)
	if err != nil {
		return "", "", err
	}
	return signature, wrappedKey, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}
