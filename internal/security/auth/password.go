package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinHashCost is the lowest bcrypt work factor accepted for stored hashes
const MinHashCost = 10

// dummyHash is compared against when a username does not exist so both paths cost one bcrypt run
var dummyHash = mustHash("visiongate-timing-equalizer")

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	cost := bcrypt.DefaultCost
	if cost < MinHashCost {
		cost = MinHashCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether candidate matches the stored hash
func CheckPassword(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// BurnPasswordCheck performs a comparison with the same cost as a real one
func BurnPasswordCheck(candidate string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(candidate))
}

func mustHash(s string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(s), MinHashCost)
	if err != nil {
		panic(err)
	}
	return h
}
