package signature

import (
	"strings"
	"testing"
)

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"event":"user.created"}`)
	secret := "whsec_test"
	ts := int64(1700000000)

	sig1 := Sign(payload, secret, ts)
	sig2 := Sign(payload, secret, ts)

	if sig1 != sig2 {
		t.Fatalf("same inputs produced different signatures: %s vs %s", sig1, sig2)
	}
	if !strings.HasPrefix(sig1, "v1=") {
		t.Fatalf("signature missing version prefix: %s", sig1)
	}
}

func TestSignVaries(t *testing.T) {
	payload := []byte(`{"event":"user.created"}`)
	base := Sign(payload, "whsec_a", 1700000000)

	if Sign(payload, "whsec_b", 1700000000) == base {
		t.Fatal("different secrets should produce different signatures")
	}
	if Sign(payload, "whsec_a", 1700000001) == base {
		t.Fatal("different timestamps should produce different signatures")
	}
	if Sign([]byte(`{}`), "whsec_a", 1700000000) == base {
		t.Fatal("different payloads should produce different signatures")
	}
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"n":1}`)
	secret := "whsec_verify"
	ts := int64(1700000000)
	sig := Sign(payload, secret, ts)

	if !Verify(payload, secret, ts, sig) {
		t.Fatal("valid signature rejected")
	}
	if Verify(payload, "whsec_wrong", ts, sig) {
		t.Fatal("wrong secret accepted")
	}
	if Verify(payload, secret, ts+1, sig) {
		t.Fatal("wrong timestamp accepted")
	}
	if Verify([]byte(`{"n":2}`), secret, ts, sig) {
		t.Fatal("tampered payload accepted")
	}
}

func TestGenerateSecret(t *testing.T) {
	s1 := GenerateSecret()
	s2 := GenerateSecret()

	if !strings.HasPrefix(s1, "whsec_") {
		t.Fatalf("secret missing prefix: %s", s1)
	}
	if len(s1) != len("whsec_")+64 {
		t.Fatalf("unexpected secret length %d", len(s1))
	}
	if s1 == s2 {
		t.Fatal("secrets should be unique")
	}
}
