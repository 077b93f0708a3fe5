package vault

import (
	"encoding/base64"
	"log/slog"
	"io"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	v, err := New(key, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plaintext := "s3cr3t-password-value"
	token, err := v.EncryptString(plaintext)
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if token == plaintext {
		t.Fatal("token must not equal plaintext")
	}

	got, err := v.DecryptString(token)
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if got != plaintext {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	keyA := base64.StdEncoding.EncodeToString([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	keyB := base64.StdEncoding.EncodeToString([]byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))

	vA, _ := New(keyA, testLogger())
	vB, _ := New(keyB, testLogger())

	token, err := vA.EncryptString("hello")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if _, err := vB.Decrypt(token); err == nil {
		t.Fatal("expected decryption with the wrong key to fail")
	}
}

func TestEphemeralKeyWhenUnset(t *testing.T) {
	v, err := New("", testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	token, err := v.EncryptString("hello")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if _, err := v.DecryptString(token); err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
}
