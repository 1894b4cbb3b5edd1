/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package notary

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hyperledger-labs/bnsim/pkg/crypto"
	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/logging"
)

// NotariseFlow is the kind of session the notary answers.
const NotariseFlow flow.Kind = "notary.NotariseFlow"

// Service answers notarisation requests against Store, signing with Signer.
type Service struct {
	Store  *Store
	Signer *crypto.Signer
}

// Responder returns the registration of the notary's responder.
func (s *Service) Responder() flow.Responder {
	return flow.Responder{
		Kind: NotariseFlow,
		New: func(session flow.Session) flow.Flow {
			return flow.Func(func(ctx flow.Context) (interface{}, error) {
				return nil, s.serve(ctx, session)
			})
		},
	}
}

func (s *Service) serve(ctx flow.Context, session flow.Session) error {
	msg, err := session.Receive()
	if err != nil {
		return err
	}

	txID, inputs, err := decodeRequest(msg)
	if err != nil {
		return err
	}

	logger := logging.NilLogger
	if ctx != nil {
		logger = ctx.Logger()
	}

	err = s.Store.Commit(txID, inputs)
	conflict := &ConflictError{}
	switch {
	case err == nil:
		logger.Log(logging.LevelDebug, "notarised transaction", "tx", txID, "inputs", len(inputs), "requester", session.Counterparty())
		return session.Send(signatureResponse(s.Signer.Sign([]byte(txID))))
	case errors.As(err, &conflict):
		logger.Log(logging.LevelInfo, "rejected double spend", "tx", txID, "conflicts", len(conflict.Conflicts))
		return session.Send(conflictResponse(conflict))
	default:
		return errors.WithMessagef(err, "could not commit transaction %s", txID)
	}
}

// Notarise asks the network's notary to commit txID consuming inputs.
// It returns the notary's verified signature over txID, or a *ConflictError.
func Notarise(ctx flow.Context, txID string, inputs []StateRef) ([]byte, error) {
	notary := ctx.Notary()
	session, err := ctx.InitiateFlow(NotariseFlow, notary)
	if err != nil {
		return nil, err
	}

	reply, err := session.SendAndReceive(encodeRequest(txID, inputs))
	if err != nil {
		return nil, err
	}

	signature, conflicts, err := decodeResponse(reply)
	if err != nil {
		return nil, err
	}
	if conflicts != nil {
		return nil, &ConflictError{TxID: txID, Conflicts: conflicts}
	}

	if err := crypto.Verify(notary.OwningKey, signature, []byte(txID)); err != nil {
		return nil, errors.WithMessagef(err, "invalid notary signature for transaction %s", txID)
	}
	return signature, nil
}

// Requests and responses are plain structs so that no generated code is needed.
//
//   request:  {"txId": "<id>", "inputs": ["<txid>:<index>", ...]}
//   response: {"signature": "<hex>"} or {"conflicts": {"<txid>:<index>": "<consumer>", ...}}

func encodeRequest(txID string, inputs []StateRef) *structpb.Struct {
	refs := make([]*structpb.Value, len(inputs))
	for i, ref := range inputs {
		refs[i] = structpb.NewStringValue(ref.String())
	}
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"txId":   structpb.NewStringValue(txID),
			"inputs": structpb.NewListValue(&structpb.ListValue{Values: refs}),
		},
	}
}

func decodeRequest(msg proto.Message) (string, []StateRef, error) {
	s, ok := msg.(*structpb.Struct)
	if !ok {
		return "", nil, errors.Errorf("unexpected notarisation request of type %T", msg)
	}

	txID := s.Fields["txId"].GetStringValue()
	if txID == "" {
		return "", nil, errors.New("notarisation request without transaction id")
	}

	var inputs []StateRef
	for _, v := range s.Fields["inputs"].GetListValue().GetValues() {
		ref, err := ParseStateRef(v.GetStringValue())
		if err != nil {
			return "", nil, err
		}
		inputs = append(inputs, ref)
	}
	return txID, inputs, nil
}

func signatureResponse(signature []byte) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"signature": structpb.NewStringValue(hex.EncodeToString(signature)),
		},
	}
}

func conflictResponse(conflict *ConflictError) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(conflict.Conflicts))
	for ref, consumer := range conflict.Conflicts {
		fields[ref.String()] = structpb.NewStringValue(consumer)
	}
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"conflicts": structpb.NewStructValue(&structpb.Struct{Fields: fields}),
		},
	}
}

func decodeResponse(msg proto.Message) ([]byte, map[StateRef]string, error) {
	s, ok := msg.(*structpb.Struct)
	if !ok {
		return nil, nil, errors.Errorf("unexpected notary response of type %T", msg)
	}

	if c, ok := s.Fields["conflicts"]; ok {
		conflicts := map[StateRef]string{}
		for key, consumer := range c.GetStructValue().GetFields() {
			ref, err := ParseStateRef(key)
			if err != nil {
				return nil, nil, err
			}
			conflicts[ref] = consumer.GetStringValue()
		}
		return nil, conflicts, nil
	}

	signature, err := hex.DecodeString(s.Fields["signature"].GetStringValue())
	if err != nil {
		return nil, nil, errors.WithMessage(err, "malformed notary signature")
	}
	return signature, nil, nil
}
