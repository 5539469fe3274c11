package crypto

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

var testHasher = Hasher{Cost: bcrypt.MinCost}

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal, looks non-random", n)
	}
}

func TestRandToken_HexAndEntropy(t *testing.T) {
	t.Parallel()

	a, err := RandToken()
	if err != nil {
		t.Fatalf("RandToken: %v", err)
	}
	if len(a) != 2*TokenEntropyBytes {
		t.Fatalf("len=%d, want=%d", len(a), 2*TokenEntropyBytes)
	}
	if strings.Trim(a, "0123456789abcdef") != "" {
		t.Fatalf("not lowercase hex: %q", a)
	}
	b, _ := RandToken()
	if a == b {
		t.Fatalf("tokens collide")
	}
}

func TestHasher_HashIsSaltedAndSelfDescribing(t *testing.T) {
	t.Parallel()

	h1, err := testHasher.Hash("p@ssw0rd")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := testHasher.Hash("p@ssw0rd")
	if err != nil {
		t.Fatalf("Hash(2): %v", err)
	}
	if h1 == h2 {
		t.Fatalf("hash must be salted")
	}
	if !strings.HasPrefix(h1, "$2a$") {
		t.Fatalf("unexpected hash format: %s", h1)
	}
	cost, err := bcrypt.Cost([]byte(h1))
	if err != nil || cost != bcrypt.MinCost {
		t.Fatalf("cost=%d err=%v", cost, err)
	}
}

func TestHasher_Verify(t *testing.T) {
	t.Parallel()

	hash, err := testHasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if !testHasher.Verify("correct horse battery staple", hash) {
		t.Fatalf("Verify: expected true for correct password")
	}
	if testHasher.Verify("wrong", hash) {
		t.Fatalf("Verify: expected false for wrong password")
	}
	if testHasher.Verify("", hash) {
		t.Fatalf("Verify: expected false for empty password")
	}
	if testHasher.Verify("correct horse battery staple", "not-a-bcrypt-hash") {
		t.Fatalf("Verify: malformed hash must be false, not an error")
	}
	if testHasher.Verify("x", "") {
		t.Fatalf("Verify: empty hash must be false")
	}
}

func TestPackageLevelHelpers(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("pw-123456")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("pw-123456", hash) || VerifyPassword("pw-1234567", hash) {
		t.Fatalf("VerifyPassword mismatch")
	}
}
