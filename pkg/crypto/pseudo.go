/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

import (
	prand "math/rand"
)

var (
	DefaultPseudoSeed int64 = 12345
)

// PseudoKeys hands out key pairs derived from a seeded pseudo-random source.
// Two PseudoKeys created with the same seed produce the same sequence of keys,
// which keeps node identities stable between runs of the same test.
type PseudoKeys struct {
	randomness *prand.Rand
}

// NewPseudoKeys returns a deterministic key source.
func NewPseudoKeys(seed int64) *PseudoKeys {
	return &PseudoKeys{
		randomness: prand.New(prand.NewSource(seed)),
	}
}

// Next generates the next key pair in the sequence.
func (pk *PseudoKeys) Next() (*Signer, PublicKey, error) {
	return GenerateKeyPair(pk.randomness)
}
