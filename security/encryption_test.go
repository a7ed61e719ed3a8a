package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if len(key) != EncryptionKeySize {
		t.Errorf("len(key) = %d, want %d", len(key), EncryptionKeySize)
	}

	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if bytes.Equal(key, key2) {
		t.Error("GenerateKey() returned identical keys")
	}
}

func TestNewEncryptor(t *testing.T) {
	tests := []struct {
		name       string
		key        []byte
		wantErr    bool
		wantEnable bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32), wantEnable: true},
		{name: "nil key disables", key: nil},
		{name: "empty key disables", key: []byte{}},
		{name: "short key", key: make([]byte, 16), wantErr: true},
		{name: "long key", key: make([]byte, 64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if enc.IsEnabled() != tt.wantEnable {
				t.Errorf("IsEnabled() = %v, want %v", enc.IsEnabled(), tt.wantEnable)
			}
		})
	}
}

func TestEncryptor_EncryptDecrypt(t *testing.T) {
	key, _ := GenerateKey()
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	for _, plaintext := range []string{"sec1", "test@example.com", "$2a$10$abcdefghijklmnopqrstuv", "ünïcødé"} {
		ciphertext, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plaintext, err)
		}
		if ciphertext == plaintext {
			t.Errorf("Encrypt(%q) returned plaintext", plaintext)
		}

		again, _ := enc.Encrypt(plaintext)
		if again == ciphertext {
			t.Errorf("Encrypt(%q) is deterministic, nonce not random", plaintext)
		}

		got, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if got != plaintext {
			t.Errorf("Decrypt() = %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptor_EmptyValuePassesThrough(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	got, err := enc.Encrypt("")
	if err != nil || got != "" {
		t.Errorf("Encrypt(\"\") = %q, %v; want empty, nil", got, err)
	}
	got, err = enc.Decrypt("")
	if err != nil || got != "" {
		t.Errorf("Decrypt(\"\") = %q, %v; want empty, nil", got, err)
	}
}

func TestEncryptor_Disabled(t *testing.T) {
	var nilEnc *Encryptor
	disabled, _ := NewEncryptor(nil)

	for name, enc := range map[string]*Encryptor{"nil": nilEnc, "disabled": disabled} {
		t.Run(name, func(t *testing.T) {
			got, err := enc.Encrypt("secret")
			if err != nil || got != "secret" {
				t.Errorf("Encrypt() = %q, %v; want passthrough", got, err)
			}
			got, err = enc.Decrypt("secret")
			if err != nil || got != "secret" {
				t.Errorf("Decrypt() = %q, %v; want passthrough", got, err)
			}
		})
	}
}

func TestEncryptor_Decrypt_InvalidData(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	if _, err := enc.Decrypt("not-base64!!!"); err == nil {
		t.Error("Decrypt() of invalid base64 should fail")
	}

	short := base64.StdEncoding.EncodeToString([]byte("abc"))
	if _, err := enc.Decrypt(short); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Decrypt() of short data error = %v, want ErrCiphertextTooShort", err)
	}

	garbage := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 40))
	if _, err := enc.Decrypt(garbage); err == nil {
		t.Error("Decrypt() of tampered data should fail")
	}
}

func TestEncryptor_Decrypt_WrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()
	enc1, _ := NewEncryptor(key1)
	enc2, _ := NewEncryptor(key2)

	ciphertext, err := enc1.Encrypt("sec1")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("Decrypt() with wrong key should fail")
	}
}

func TestKeyBase64RoundTrip(t *testing.T) {
	key, _ := GenerateKey()
	decoded, err := KeyFromBase64(KeyToBase64(key))
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if !bytes.Equal(decoded, key) {
		t.Error("KeyFromBase64(KeyToBase64(key)) != key")
	}
}

func TestKeyFromBase64_Invalid(t *testing.T) {
	if _, err := KeyFromBase64("!!!"); err == nil {
		t.Error("KeyFromBase64() of invalid base64 should fail")
	}
	if _, err := KeyFromBase64(base64.StdEncoding.EncodeToString(make([]byte, 16))); err == nil {
		t.Error("KeyFromBase64() of 16-byte key should fail")
	}
}

func TestEncryptor_Recorder(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	var ops []string
	enc.SetRecorder(func(op string) { ops = append(ops, op) })

	sealed, err := enc.Encrypt("user@example.com")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := enc.Decrypt(sealed); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	// empty values are not sealed and not counted
	if _, err := enc.Encrypt(""); err != nil {
		t.Fatalf("Encrypt(\"\") error = %v", err)
	}

	if len(ops) != 2 || ops[0] != "encrypt" || ops[1] != "decrypt" {
		t.Errorf("recorded ops = %v, want [encrypt decrypt]", ops)
	}
}
