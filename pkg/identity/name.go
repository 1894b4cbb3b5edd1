/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package identity models the legal names and identities of simulated nodes.
//
// A legal name is an X.500-style distinguished name restricted to the attributes
// CN, OU, O, L, ST and C, of which O, L and C are mandatory. Names have a single
// canonical string form, for example
//
//	O=BNO_0,L=New York,C=US
//
// which is what nodes are addressed and looked up by.
package identity

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	minOrganisationLength = 2
	maxOrganisationLength = 128
	maxAttributeLength    = 64
)

// Name is a structured legal name.
type Name struct {
	CommonName       string
	OrganisationUnit string
	Organisation     string
	Locality         string
	State            string
	Country          string
}

// attribute keys in canonical order.
var attributeKeys = []string{"CN", "OU", "O", "L", "ST", "C"}

func (n *Name) field(key string) *string {
	switch key {
	case "CN":
		return &n.CommonName
	case "OU":
		return &n.OrganisationUnit
	case "O":
		return &n.Organisation
	case "L":
		return &n.Locality
	case "ST":
		return &n.State
	case "C":
		return &n.Country
	default:
		return nil
	}
}

// ParseName parses a comma separated list of KEY=value attributes.
// Keys are case-insensitive and whitespace around keys and values is ignored.
func ParseName(s string) (Name, error) {
	var name Name

	if strings.TrimSpace(s) == "" {
		return name, errors.Errorf("empty legal name")
	}

	seen := map[string]struct{}{}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return name, errors.Errorf("malformed attribute %q in legal name %q", strings.TrimSpace(part), s)
		}

		key := strings.ToUpper(strings.TrimSpace(kv[0]))
		value := strings.TrimSpace(kv[1])

		field := name.field(key)
		if field == nil {
			return name, errors.Errorf("unknown attribute %q in legal name %q", key, s)
		}
		if _, ok := seen[key]; ok {
			return name, errors.Errorf("duplicate attribute %q in legal name %q", key, s)
		}
		seen[key] = struct{}{}

		*field = value
	}

	if err := name.Validate(); err != nil {
		return Name{}, errors.WithMessagef(err, "invalid legal name %q", s)
	}

	return name, nil
}

// MustParseName is like ParseName but panics on error.
// It is meant for names that are constants of a test.
func MustParseName(s string) Name {
	name, err := ParseName(s)
	if err != nil {
		panic(err)
	}
	return name
}

// Validate checks the attribute constraints of a legal name.
func (n Name) Validate() error {
	switch {
	case n.Organisation == "":
		return errors.Errorf("organisation (O) must be set")
	case n.Locality == "":
		return errors.Errorf("locality (L) must be set")
	case n.Country == "":
		return errors.Errorf("country (C) must be set")
	}

	if l := utf8.RuneCountInString(n.Organisation); l < minOrganisationLength || l > maxOrganisationLength {
		return errors.Errorf("organisation must be between %d and %d characters long, got %d",
			minOrganisationLength, maxOrganisationLength, l)
	}

	if !isCountryCode(n.Country) {
		return errors.Errorf("country %q is not a two letter upper-case country code", n.Country)
	}

	for _, key := range attributeKeys {
		value := *n.field(key)
		if value == "" {
			continue
		}
		if key != "O" && utf8.RuneCountInString(value) > maxAttributeLength {
			return errors.Errorf("attribute %s exceeds %d characters", key, maxAttributeLength)
		}
		if strings.TrimSpace(value) != value {
			return errors.Errorf("attribute %s has leading or trailing whitespace", key)
		}
		if strings.ContainsAny(value, "=,\"") {
			return errors.Errorf("attribute %s contains a reserved character", key)
		}
	}

	return nil
}

func isCountryCode(c string) bool {
	if len(c) != 2 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// String returns the canonical form of the name: set attributes in the order
// CN, OU, O, L, ST, C joined by commas without surrounding spaces.
func (n Name) String() string {
	var b strings.Builder
	for _, key := range attributeKeys {
		value := *n.field(key)
		if value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
	}
	return b.String()
}
