/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"github.com/hyperledger-labs/bnsim/pkg/crypto"
)

// Party is a legal name together with the key that signs on its behalf.
type Party struct {
	Name      Name
	OwningKey crypto.PublicKey
}

// String returns the canonical form of the party's name.
func (p Party) String() string {
	return p.Name.String()
}

// Equal reports whether both parties have the same name and owning key.
func (p Party) Equal(other Party) bool {
	return p.Name == other.Name && p.OwningKey.Equal(other.OwningKey)
}
