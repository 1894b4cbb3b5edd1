/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package crypto provides the signing keys of simulated nodes.
// Every node owns one ed25519 key pair; its public key is part of the node's legal identity.
package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

// PublicKey is the public half of a node's signing key.
type PublicKey []byte

// Equal reports whether both keys have the same encoding.
func (pk PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(pk, other)
}

// String returns a short hex fingerprint of the key, suitable for logs.
func (pk PublicKey) String() string {
	sum := sha256.Sum256(pk)
	return hex.EncodeToString(sum[:8])
}

// Signer signs data on behalf of a node.
type Signer struct {
	privKey ed25519.PrivateKey
}

// GenerateKeyPair generates a signer and its public key.
// The randomness parameter is read for the 32 byte key seed. Tests pass a seeded
// source to obtain reproducible identities; production code would use crypto/rand.Reader.
func GenerateKeyPair(randomness io.Reader) (*Signer, PublicKey, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(randomness, seed); err != nil {
		return nil, nil, errors.WithMessage(err, "could not read key seed")
	}

	privKey := ed25519.NewKeyFromSeed(seed)
	return &Signer{privKey: privKey}, PublicKey(privKey.Public().(ed25519.PublicKey)), nil
}

// PublicKey returns the public key matching the signer.
func (s *Signer) PublicKey() PublicKey {
	return PublicKey(s.privKey.Public().(ed25519.PublicKey))
}

// Sign signs the provided data and returns the resulting signature.
// First, Sign computes a SHA256 hash of the concatenation of all the byte slices in data.
// Then it signs the hash using the signer's private key.
func (s *Signer) Sign(data ...[]byte) []byte {
	return ed25519.Sign(s.privKey, hash(data))
}

// Verify checks that signature was produced over data by the holder of pubKey.
// Returns nil on success and a non-nil error otherwise.
func Verify(pubKey PublicKey, signature []byte, data ...[]byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return errors.Errorf("invalid public key length %d", len(pubKey))
	}

	if !ed25519.Verify(ed25519.PublicKey(pubKey), hash(data), signature) {
		return errors.Errorf("signature verification failed for key %s", pubKey)
	}

	return nil
}

// hash computes the SHA256 of the concatenation of all byte slices in data.
func hash(data [][]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
