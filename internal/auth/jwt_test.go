package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("t-42", "teacher", "rollcall", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	claims, err := Parse(pair.AccessToken, "secret", "rollcall")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.Subject != "t-42" || claims.Role != "teacher" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejectsWrongKeyAndIssuer(t *testing.T) {
	pair, err := Issue("t-42", "teacher", "rollcall", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "other-secret", "rollcall"); err == nil {
		t.Fatal("expected wrong key to fail")
	}
	if _, err := Parse(pair.AccessToken, "secret", "someone-else"); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}
