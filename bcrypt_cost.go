//go:build !race

package auth

import "golang.org/x/crypto/bcrypt"

// BcryptCost is the work factor used for new hashes
var BcryptCost = 12

func passwordHashCost() int {
	if BcryptCost < bcrypt.MinCost || BcryptCost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return BcryptCost
}
