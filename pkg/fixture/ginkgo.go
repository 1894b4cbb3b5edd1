/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fixture

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// Hooks run around the lifecycle of the fixture of every spec.
type Hooks struct {
	// AfterSetup runs once the network is created and quiescent.
	AfterSetup func(*Fixture) error

	// BeforeTearDown runs before the network is stopped. The network is
	// stopped even if it fails.
	BeforeTearDown func(*Fixture) error
}

// ForEachSpec creates a fresh Fixture before every spec of the enclosing
// container and stops it after the spec, whatever its outcome.
// The returned function gives access to the fixture of the running spec.
func ForEachSpec(config Config, hooks Hooks) func() *Fixture {
	var current *Fixture

	BeforeEach(func() {
		f, err := New(config)
		Expect(err).NotTo(HaveOccurred())
		current = f

		if hooks.AfterSetup != nil {
			Expect(hooks.AfterSetup(f)).To(Succeed())
		}
	})

	AfterEach(func() {
		if current == nil {
			return
		}
		f := current
		current = nil

		var hookErr error
		if hooks.BeforeTearDown != nil {
			hookErr = hooks.BeforeTearDown(f)
		}
		Expect(f.Stop()).To(Succeed())
		Expect(hookErr).NotTo(HaveOccurred())
	})

	return func() *Fixture {
		return current
	}
}
