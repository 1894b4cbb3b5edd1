/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package notary

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hyperledger-labs/bnsim/pkg/crypto"
	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/identity"
)

// scriptedSession replays inbound and records what the responder sends.
type scriptedSession struct {
	inbound []proto.Message
	sent    []proto.Message
}

func (s *scriptedSession) Counterparty() identity.Party {
	return identity.Party{Name: identity.MustParseName("O=Participant 1,L=London,C=GB")}
}

func (s *scriptedSession) Send(msg proto.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *scriptedSession) Receive() (proto.Message, error) {
	if len(s.inbound) == 0 {
		return nil, flow.ErrSessionEnded
	}
	msg := s.inbound[0]
	s.inbound = s.inbound[1:]
	return msg, nil
}

func (s *scriptedSession) SendAndReceive(msg proto.Message) (proto.Message, error) {
	if err := s.Send(msg); err != nil {
		return nil, err
	}
	return s.Receive()
}

var _ = Describe("Service", func() {
	var (
		service   *Service
		publicKey crypto.PublicKey
		input     = StateRef{TxID: "issue", Index: 0}
	)

	BeforeEach(func() {
		store, err := Open("", nil)
		Expect(err).NotTo(HaveOccurred())

		signer, pub, err := crypto.NewPseudoKeys(crypto.DefaultPseudoSeed).Next()
		Expect(err).NotTo(HaveOccurred())
		publicKey = pub

		service = &Service{Store: store, Signer: signer}
	})

	AfterEach(func() {
		Expect(service.Store.Close()).To(Succeed())
	})

	serve := func(req proto.Message) (*scriptedSession, error) {
		session := &scriptedSession{inbound: []proto.Message{req}}
		responder := service.Responder()
		Expect(responder.Kind).To(Equal(NotariseFlow))
		_, err := responder.New(session).Call(nil)
		return session, err
	}

	It("signs a fresh transaction", func() {
		session, err := serve(encodeRequest("tx1", []StateRef{input}))
		Expect(err).NotTo(HaveOccurred())
		Expect(session.sent).To(HaveLen(1))

		signature, conflicts, err := decodeResponse(session.sent[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(conflicts).To(BeNil())
		Expect(crypto.Verify(publicKey, signature, []byte("tx1"))).To(Succeed())
	})

	It("answers a double spend with the conflicts", func() {
		_, err := serve(encodeRequest("tx1", []StateRef{input}))
		Expect(err).NotTo(HaveOccurred())

		session, err := serve(encodeRequest("tx2", []StateRef{input}))
		Expect(err).NotTo(HaveOccurred())

		signature, conflicts, err := decodeResponse(session.sent[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(signature).To(BeNil())
		Expect(conflicts).To(Equal(map[StateRef]string{input: "tx1"}))
	})

	It("fails on a request without transaction id", func() {
		_, err := serve(&structpb.Struct{})
		Expect(err).To(MatchError("notarisation request without transaction id"))
	})

	It("fails on a request of the wrong type", func() {
		_, err := serve(structpb.NewStringValue("tx1"))
		Expect(err).To(HaveOccurred())
	})

	It("round trips requests", func() {
		txID, inputs, err := decodeRequest(encodeRequest("tx9", []StateRef{input, {TxID: "other", Index: 3}}))
		Expect(err).NotTo(HaveOccurred())
		Expect(txID).To(Equal("tx9"))
		Expect(inputs).To(Equal([]StateRef{input, {TxID: "other", Index: 3}}))
	})

	It("encodes signatures as hex", func() {
		signature, _, err := decodeResponse(signatureResponse([]byte{0xde, 0xad}))
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.Equal(signature, []byte{0xde, 0xad})).To(BeTrue())
	})
})
