//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// BcryptCost is ignored under the race detector
var BcryptCost = bcrypt.MinCost

func passwordHashCost() int {
	// Reduce cost for race-enabled builds so test suites can run with strict timeouts.
	return bcrypt.MinCost
}
