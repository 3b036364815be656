package session

import (
	"regexp"
	"testing"
)

func TestNewTokenIsValidPathElement(t *testing.T) {
	valid := regexp.MustCompile(`^screenshot[0-9a-f]+$`)
	for i := 0; i < 32; i++ {
		if tok := NewToken(); !valid.MatchString(tok) {
			t.Fatalf("token %q is not a valid object path element", tok)
		}
	}
}

func TestGenerateTokenIsString(t *testing.T) {
	if sig := GenerateToken().Signature().String(); sig != "s" {
		t.Fatalf("signature = %q", sig)
	}
}
