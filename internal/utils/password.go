package utils

import "golang.org/x/crypto/bcrypt"

// dummyHash is a valid bcrypt hash of a random string.  Comparing against
// it when the email is unknown keeps both login paths at one bcrypt
// comparison.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOa4BjPXn7S0aqGfSYoJDhTdSj2M0cZ5."

// HashPassword returns the bcrypt hash of plain.  Costs outside bcrypt's
// accepted range use bcrypt.DefaultCost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches hash.  An empty hash is
// checked against dummyHash and never matches.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
