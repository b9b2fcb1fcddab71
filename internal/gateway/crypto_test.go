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
	"strings"
	"testing"

	"letmaster-backend/internal/apperr"
)

func testRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	return key, pemStr
}

func decryptCBC(t *testing.T, ciphertextB64 string, key, iv []byte) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		t.Fatalf("decode ciphertext: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("init cipher: %v", err)
	}
	if len(raw)%block.BlockSize() != 0 {
		t.Fatalf("ciphertext not block aligned: %d", len(raw))
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, raw)
	pad := int(out[len(out)-1])
	if pad < 1 || pad > block.BlockSize() {
		t.Fatalf("bad padding byte %d", pad)
	}
	return out[:len(out)-pad]
}

func TestEncryptPayloadRoundTrip(t *testing.T) {
	key, iv, err := GenerateAESKeyIV()
	if err != nil {
		t.Fatalf("GenerateAESKeyIV: %v", err)
	}
	if len(key) != 32 || len(iv) != 16 {
		t.Fatalf("key/iv sizes = %d/%d, want 32/16", len(key), len(iv))
	}

	payload := []byte(`{"reference":"Rent payment","transaction":{"id":"abc"}}`)
	enc, err := EncryptPayload(payload, key, iv)
	if err != nil {
		t.Fatalf("EncryptPayload: %v", err)
	}

	got := decryptCBC(t, enc, key, iv)
	if string(got) != string(payload) {
		t.Errorf("round trip = %q, want %q", got, payload)
	}
}

func TestEncryptPayloadBlockAlignedInput(t *testing.T) {
	// Payload length an exact multiple of the block size still gets a full
	// padding block.
	key, iv, _ := GenerateAESKeyIV()
	payload := make([]byte, 48)
	enc, err := EncryptPayload(payload, key, iv)
	if err != nil {
		t.Fatalf("EncryptPayload: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(enc)
	if len(raw) != 64 {
		t.Errorf("ciphertext length = %d, want 64", len(raw))
	}
	got := decryptCBC(t, enc, key, iv)
	if len(got) != 48 {
		t.Errorf("plaintext length = %d, want 48", len(got))
	}
}

func TestWrapKeyIV(t *testing.T) {
	priv, pubPEM := testRSAKey(t)
	key, iv, _ := GenerateAESKeyIV()

	wrapped, err := WrapKeyIV(pubPEM, key, iv)
	if err != nil {
		t.Fatalf("WrapKeyIV: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		t.Fatalf("decode wrapped key: %v", err)
	}
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, raw, nil)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}

	parts := strings.SplitN(string(plain), ":", 2)
	if len(parts) != 2 {
		t.Fatalf("wrapped payload = %q, want key:iv", plain)
	}
	gotKey, _ := base64.StdEncoding.DecodeString(parts[0])
	gotIV, _ := base64.StdEncoding.DecodeString(parts[1])
	if string(gotKey) != string(key) || string(gotIV) != string(iv) {
		t.Error("unwrapped key/iv do not match originals")
	}
}

func TestWrapKeyIVBadPEM(t *testing.T) {
	key, iv, _ := GenerateAESKeyIV()
	_, err := WrapKeyIV("not a pem block", key, iv)
	if err == nil {
		t.Fatal("expected error for bad PEM")
	}
	if apperr.KindOf(err) != apperr.KindCrypto {
		t.Errorf("error kind = %v, want crypto", apperr.KindOf(err))
	}
}

func TestSeal(t *testing.T) {
	priv, pubPEM := testRSAKey(t)
	payload := []byte(`{}`)

	signature, wrappedKey, err := Seal(payload, pubPEM)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(wrappedKey)
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, raw, nil)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	parts := strings.SplitN(string(plain), ":", 2)
	key, _ := base64.StdEncoding.DecodeString(parts[0])
	iv, _ := base64.StdEncoding.DecodeString(parts[1])

	got := decryptCBC(t, signature, key, iv)
	if string(got) != string(payload) {
		t.Errorf("sealed payload = %q, want %q", got, payload)
	}
}
