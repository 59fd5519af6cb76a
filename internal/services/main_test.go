package services

import (
	"testing"

	pkgauth "github.com/BradenHooton/yoked/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	pkgauth.BcryptCost = bcrypt.MinCost
	m.Run()
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}
