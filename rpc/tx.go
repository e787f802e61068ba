package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math/big"
	"strings"

	"lockboxchain/core/ledger"
	"lockboxchain/core/types"
	"lockboxchain/crypto"
	"lockboxchain/observability/logging"
)

// txHandler applies one decoded operation inside an open ledger transaction.
// signer is the bech32 address recovered from the envelope signature.
type txHandler func(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error)

// TxResult is returned for every committed transaction.
type TxResult struct {
	Height uint64      `json:"height"`
	Hash   string      `json:"hash"`
	Signer string      `json:"signer"`
	Result interface{} `json:"result,omitempty"`
}

func (s *Server) sendTransaction(ctx context.Context, raw json.RawMessage) (*TxResult, error) {
	var envelope types.Transaction
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, invalidParams("invalid transaction", err.Error())
	}
	if envelope.ChainID != s.chainID {
		return nil, invalidParams("chain id mismatch", envelope.ChainID)
	}
	handler, ok := s.txOps[envelope.Op]
	if !ok {
		return nil, invalidParams("unknown operation", envelope.Op)
	}
	from, err := envelope.From()
	if err != nil {
		return nil, invalidParams("invalid signature", err.Error())
	}
	signer, err := crypto.AddressString(from)
	if err != nil {
		return nil, invalidParams("invalid signature", err.Error())
	}
	payload := envelope.Payload
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("{}")
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "transaction received",
		slog.String("op", envelope.Op),
		slog.String("signer", signer),
		slog.Uint64("nonce", envelope.Nonce),
		slog.Group("payload", logging.MaskJSON(payload)...))

	var result interface{}
	receipt, err := s.exec.Execute(ctx, envelope.Op, []string{signer}, func(tx *ledger.Tx) error {
		if err := tx.ConsumeNonce(signer, envelope.Nonce); err != nil {
			return err
		}
		var err error
		result, err = handler(tx, signer, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &TxResult{
		Height: receipt.Height,
		Hash:   hex.EncodeToString(receipt.Hash),
		Signer: signer,
		Result: result,
	}, nil
}

// decodePayload rejects unknown fields so that typos in optional parameters
// do not silently fall back to defaults.
func decodePayload(payload json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidParams("invalid payload", err.Error())
	}
	return nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, invalidParams(field+" required", nil)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams(field+" must be a base-10 integer", value)
	}
	return amount, nil
}

func decodeHex(field, value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, invalidParams(field+" required", nil)
	}
	out, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, invalidParams(field+" must be hex", err.Error())
	}
	return out, nil
}

func requireField(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", invalidParams(field+" required", nil)
	}
	return trimmed, nil
}

// orSigner defaults an optional account field to the transaction signer.
func orSigner(value, signer string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return signer
}
