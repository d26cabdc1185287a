package auth

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

//Argon2Hasher hashes passwords with argon2id. The encoded hash carries its
//own salt and parameters.
type Argon2Hasher struct {
	params *argon2id.Params
}

func NewArgon2Hasher(params *argon2id.Params) *Argon2Hasher {
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &Argon2Hasher{params: params}
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", fmt.Errorf("auth: password hash failed: %w", err)
	}
	return hash, nil
}

//Compare reports whether password matches hash. An error means the stored
//hash could not be decoded.
func (h *Argon2Hasher) Compare(password, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("auth: password and hash comparison failed: %w", err)
	}
	return match, nil
}
