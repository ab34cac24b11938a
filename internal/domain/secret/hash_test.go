package secret

import "testing"

func TestHashAndVerifyArgon2id(t *testing.T) {
	hash, err := Hash("correct-pin")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if DetectHashType(hash) != "argon2id" {
		t.Fatalf("expected argon2id hash type, got %q", DetectHashType(hash))
	}
	ok, err := Verify("correct-pin", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = Verify("wrong-pin", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestVerifySHA256Legacy(t *testing.T) {
	hash := HashSHA256("legacy-secret")
	ok, err := Verify("legacy-secret", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = Verify("legacy-secret", "sha256:"+hash)
	if err != nil || !ok {
		t.Fatalf("expected prefixed match, got ok=%v err=%v", ok, err)
	}
}

func TestVerifyUnknownHashType(t *testing.T) {
	_, err := Verify("whatever", "not-a-hash")
	if err != ErrUnknownHashType {
		t.Fatalf("expected ErrUnknownHashType, got %v", err)
	}
}

func TestSafeArgon2idCompareMalformed(t *testing.T) {
	_, err := safeArgon2idCompare("x", "$argon2id$v=19$m=0,t=0,p=0$c2FsdA$aGFzaA")
	if err == nil {
		t.Fatal("expected error on malformed argon2id params, got nil")
	}
}
