// Package signer mints guest tokens locally with an RSA private key (RS256)
// and verifies them the way a relying party would, selecting the key by kid.
package signer
