package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lockboxchain/core/types"
	"lockboxchain/crypto"
)

func stubPassphrase(t *testing.T) {
	t.Helper()
	prev, prevOpts := passphraseFn, keystoreOpts
	passphraseFn = func() (string, error) { return "test-pass", nil }
	keystoreOpts = []crypto.KeystoreOption{crypto.LightScrypt()}
	t.Cleanup(func() { passphraseFn, keystoreOpts = prev, prevOpts })
}

func TestGlobalFlags(t *testing.T) {
	g := defaultGlobals()
	rest, err := applyGlobalFlags(&g, []string{"--rpc", "http://node:1", "query", "--chain=c2", "ledger_head"})
	require.NoError(t, err)
	require.Equal(t, []string{"query", "ledger_head"}, rest)
	require.Equal(t, "http://node:1", g.rpcURL)
	require.Equal(t, "c2", g.chainID)

	_, err = applyGlobalFlags(&g, []string{"--chain"})
	require.Error(t, err)
}

func TestKeygenAndAddress(t *testing.T) {
	stubPassphrase(t)
	path := filepath.Join(t.TempDir(), "keys", "writer.json")

	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"keygen", path}, &out, &errOut), errOut.String())
	addr := strings.TrimSpace(out.String())
	require.True(t, crypto.IsAddress(addr))

	out.Reset()
	require.Equal(t, 0, run([]string{"address", path}, &out, &errOut))
	require.Equal(t, addr, strings.TrimSpace(out.String()))

	require.Equal(t, 1, run([]string{"keygen", path}, &out, &errOut))
}

func TestBuildTransactionRecoversSigner(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	tx, err := buildTransaction("lockbox-local", "lockbox.addReader", 3, json.RawMessage(`{"lockboxId":"lb-1"}`), key)
	require.NoError(t, err)

	from, err := tx.From()
	require.NoError(t, err)
	addr, err := crypto.AddressString(from)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), addr)
}

func TestTxFetchesNonceAndSubmits(t *testing.T) {
	stubPassphrase(t)
	keyPath := filepath.Join(t.TempDir(), "key.json")
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"keygen", keyPath}, &out, &errOut), errOut.String())

	var submitted types.Transaction
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "ledger_getNonce":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"nonce":4}}`))
		case "lockbox_sendTransaction":
			require.NoError(t, json.Unmarshal(req.Params[0], &submitted))
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"height":9}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"unknown method"}}`))
		}
	}))
	defer srv.Close()

	payloadPath := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(payloadPath, []byte(`{"lockboxId":"lb-1","reader":"r"}`), 0o600))

	out.Reset()
	code := run([]string{"--rpc", srv.URL, "--chain", "c1", "tx", "--key", keyPath, "lockbox.addReader", "@" + payloadPath}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	require.Contains(t, out.String(), `"height": 9`)
	require.Equal(t, uint64(5), submitted.Nonce)
	require.Equal(t, "c1", submitted.ChainID)
	require.Equal(t, "lockbox.addReader", submitted.Op)

	errOut.Reset()
	require.Equal(t, 1, run([]string{"--rpc", srv.URL, "query", "lockbox_nope"}, &out, &errOut))
	require.Contains(t, errOut.String(), "-32601")
}

func TestProbeRoundTrip(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"probe-keygen"}, &out, &errOut))
	var pair map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &pair))

	sharePath := filepath.Join(t.TempDir(), "share")
	require.NoError(t, os.WriteFile(sharePath, []byte("share-bytes"), 0o600))

	out.Reset()
	require.Equal(t, 0, run([]string{"seal-probe", pair["publicKey"], sharePath}, &out, &errOut), errOut.String())
	var sealed map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &sealed))

	out.Reset()
	code := run([]string{"open-probe", pair["publicKey"], pair["privateKey"], sealed["ciphertext"], sealed["nonce"], sealed["mac"]}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	require.Equal(t, "share-bytes", out.String())

	out.Reset()
	require.Equal(t, 0, run([]string{"share-hash", sharePath}, &out, &errOut))
	require.Equal(t, crypto.ShareHash([]byte("share-bytes")), strings.TrimSpace(out.String()))
}
