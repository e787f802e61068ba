package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"lockboxchain/core/types"
	"lockboxchain/crypto"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func callRPC(g globals, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": method, "params": params,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, g.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node (status %d)", resp.StatusCode)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// readArgument returns a literal JSON argument or the contents of @file.
func readArgument(arg string) (json.RawMessage, error) {
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, err
		}
		arg = string(data)
	}
	raw := json.RawMessage(strings.TrimSpace(arg))
	if !json.Valid(raw) {
		return nil, errors.New("argument is not valid JSON")
	}
	return raw, nil
}

func runQuery(g globals, args []string, stdout io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("expected a method and optional params")
	}
	var params []interface{}
	if len(args) == 2 {
		raw, err := readArgument(args[1])
		if err != nil {
			return err
		}
		params = append(params, raw)
	}
	result, err := callRPC(g, args[0], params...)
	if err != nil {
		return err
	}
	return printJSON(stdout, result)
}

func runTx(g globals, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("tx", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	keyPath := fs.String("key", os.Getenv("LOCKBOX_KEYSTORE"), "keystore of the signing account")
	nonce := fs.Uint64("nonce", 0, "explicit nonce; zero fetches the next one from the node")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("expected an operation and a payload")
	}
	payload, err := readArgument(fs.Arg(1))
	if err != nil {
		return err
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return err
	}
	if *nonce == 0 {
		next, err := nextNonce(g, key.PubKey().Address().String())
		if err != nil {
			return err
		}
		*nonce = next
	}
	tx, err := buildTransaction(g.chainID, fs.Arg(0), *nonce, payload, key)
	if err != nil {
		return err
	}
	result, err := callRPC(g, "lockbox_sendTransaction", tx)
	if err != nil {
		return err
	}
	return printJSON(stdout, result)
}

func nextNonce(g globals, account string) (uint64, error) {
	raw, err := callRPC(g, "ledger_getNonce", map[string]string{"account": account})
	if err != nil {
		return 0, fmt.Errorf("fetch nonce: %w", err)
	}
	var out struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode nonce: %w", err)
	}
	return out.Nonce + 1, nil
}

func buildTransaction(chainID, op string, nonce uint64, payload json.RawMessage, key *crypto.PrivateKey) (*types.Transaction, error) {
	tx := &types.Transaction{
		ChainID: chainID,
		Op:      strings.TrimSpace(op),
		Nonce:   nonce,
		Payload: payload,
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	return tx, nil
}
