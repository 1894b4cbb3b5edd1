/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package flow_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/identity"
)

var _ = Describe("Func", func() {
	It("passes through outcome and error", func() {
		boom := errors.New("boom")
		f := flow.Func(func(ctx flow.Context) (interface{}, error) {
			return 7, boom
		})
		result, err := f.Call(nil)
		Expect(result).To(Equal(7))
		Expect(err).To(Equal(boom))
	})
})

var _ = Describe("Errors", func() {
	party := identity.Party{Name: identity.MustParseName("O=Bank A,L=Paris,C=FR")}

	It("describes a failed counterparty", func() {
		err := &flow.CounterpartyError{Party: party, Message: "insufficient funds"}
		Expect(err).To(MatchError("counterparty O=Bank A,L=Paris,C=FR failed: insufficient funds"))
	})

	It("describes a rejected session", func() {
		var err error = &flow.SessionRejectedError{Kind: "payments.Pay", Party: party, Reason: "no responder registered for payments.Pay"}
		Expect(err).To(MatchError("session of kind payments.Pay rejected by O=Bank A,L=Paris,C=FR: no responder registered for payments.Pay"))

		rejected := &flow.SessionRejectedError{}
		Expect(errors.As(errors.WithMessage(err, "payment failed"), &rejected)).To(BeTrue())
		Expect(rejected.Kind).To(Equal(flow.Kind("payments.Pay")))
	})
})
