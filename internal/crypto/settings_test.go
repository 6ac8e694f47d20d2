package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	cases := [][]byte{
		[]byte("sk-test-key"),
		[]byte(""),
		bytes.Repeat([]byte("x"), 4096),
	}
	for _, want := range cases {
		ct, err := c.Encrypt(want)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("round trip mismatch: got %q want %q", got, want)
		}
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c, _ := NewCipher("passphrase")
	ct, _ := c.Encrypt([]byte("secret"))
	ct[len(ct)-1] ^= 0xFF
	if _, err := c.Decrypt(ct); err == nil {
		t.Fatalf("expected authentication failure on tampered ciphertext")
	}
}

func TestNewCipherRejectsEmptyPassphrase(t *testing.T) {
	if _, err := NewCipher(""); err != ErrEmptyPassphrase {
		t.Fatalf("expected ErrEmptyPassphrase, got %v", err)
	}
}
