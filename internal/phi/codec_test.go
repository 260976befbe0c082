package phi

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, KeySize)
	c, err := NewCodec(key)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	c := testCodec(t)

	cases := []string{
		"patient reports chest pain",
		"multi\nline\nnotes",
		"unicode: šđčćž 北京",
		strings.Repeat("x", 10_000),
	}

	for _, plaintext := range cases {
		encoded, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext[:min(20, len(plaintext))], err)
		}
		if encoded == plaintext {
			t.Fatal("ciphertext equals plaintext")
		}
		if !strings.Contains(encoded, ":") {
			t.Fatalf("encoded form missing delimiter: %q", encoded)
		}

		decoded, err := c.Decrypt(encoded)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if decoded != plaintext {
			t.Fatalf("round trip mismatch: got %q", decoded)
		}
	}
}

func TestEmptyPassthrough(t *testing.T) {
	c := testCodec(t)

	encoded, err := c.Encrypt("")
	if err != nil || encoded != "" {
		t.Fatalf("Encrypt(\"\") = %q, %v; want empty", encoded, err)
	}

	decoded, err := c.Decrypt("")
	if err != nil || decoded != "" {
		t.Fatalf("Decrypt(\"\") = %q, %v; want empty", decoded, err)
	}
}

func TestFreshNoncePerCall(t *testing.T) {
	c := testCodec(t)

	first, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptFailure(t *testing.T) {
	c := testCodec(t)

	valid, err := c.Encrypt("sensitive")
	if err != nil {
		t.Fatal(err)
	}

	// Flip one ciphertext hex digit
	corrupted := []byte(valid)
	last := len(corrupted) - 1
	if corrupted[last] == 'a' {
		corrupted[last] = 'b'
	} else {
		corrupted[last] = 'a'
	}

	tests := []struct {
		name  string
		input string
	}{
		{"no delimiter", "deadbeef"},
		{"bad nonce hex", "zz:deadbeef"},
		{"short nonce", "dead:deadbeef"},
		{"bad ciphertext hex", valid[:strings.Index(valid, ":")+1] + "zz"},
		{"tampered ciphertext", string(corrupted)},
		{"truncated", valid[:len(valid)-4]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Decrypt(tt.input)
			if !errors.Is(err, ErrDecryptFailure) {
				t.Fatalf("Decrypt(%q) err = %v; want ErrDecryptFailure", tt.input, err)
			}
			if out != "" {
				t.Fatalf("Decrypt returned content %q on failure", out)
			}
		})
	}
}

func TestWrongKey(t *testing.T) {
	c1 := testCodec(t)
	c2, err := NewCodec(bytes.Repeat([]byte{0x17}, KeySize))
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := c1.Encrypt("cross-key")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c2.Decrypt(encoded); !errors.Is(err, ErrDecryptFailure) {
		t.Fatalf("decrypt with wrong key: err = %v; want ErrDecryptFailure", err)
	}
}

func TestKeyValidation(t *testing.T) {
	if _, err := NewCodec([]byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("short key err = %v; want ErrInvalidKey", err)
	}
	if _, err := NewCodecFromHex("not-hex"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
}
