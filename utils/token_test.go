package utils

import (
	"testing"
)

func TestJwtRoundTrip(t *testing.T) {
	token, err := JwtGenerate(7, "admin")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	parsed, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("token must be valid")
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok {
		t.Fatalf("claims type %T", parsed.Claims)
	}
	if claims.ID != 7 || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJwtValidate_Garbage(t *testing.T) {
	if _, err := JwtValidate("not-a-token"); err == nil {
		t.Fatal("garbage token must fail validation")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := ComparePassword(string(hash), "s3cret!"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := ComparePassword(string(hash), "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
}
