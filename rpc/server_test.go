package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"lockboxchain/core/ledger"
	"lockboxchain/core/types"
	"lockboxchain/crypto"
	"lockboxchain/native/lockbox"
	"lockboxchain/observability/logging"
	"lockboxchain/storage"
)

const testChainID = "lockbox-test"

type account struct {
	key  *crypto.PrivateKey
	addr string
}

func newAccount(t *testing.T) *account {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return &account{key: key, addr: key.PubKey().Address().String()}
}

type fixture struct {
	t      *testing.T
	server *Server
	router http.Handler
	nonces map[string]uint64

	writer, owner, reader, node *account
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		nonces: make(map[string]uint64),
		writer: newAccount(t),
		owner:  newAccount(t),
		reader: newAccount(t),
		node:   newAccount(t),
	}
	exec := ledger.NewExecutor(storage.NewMemDB())
	engine := lockbox.NewEngine(lockbox.DefaultParams())
	_, err := exec.Execute(context.Background(), "genesis", nil, func(tx *ledger.Tx) error {
		if err := engine.Initialize(tx); err != nil {
			return err
		}
		for _, acct := range []*account{f.writer, f.owner, f.reader, f.node} {
			guard := ledger.KeysetGuard(ledger.PredKeysAll, acct.addr)
			if err := engine.Coin().Mint(tx, acct.addr, guard, big.NewInt(10_000)); err != nil {
				return err
			}
		}
		guard := ledger.KeysetGuard(ledger.PredKeysAll, f.node.addr)
		return engine.StakeLedger().Mint(tx, f.node.addr, guard, big.NewInt(5_000))
	})
	require.NoError(t, err)

	cfg := Config{ChainID: testChainID, Executor: exec, Engine: engine}
	if mutate != nil {
		mutate(&cfg)
	}
	server, err := NewServer(cfg)
	require.NoError(t, err)
	f.server = server
	f.router = server.Router()
	return f
}

type rpcReply struct {
	Status int
	Result json.RawMessage
	Error  *RPCError
}

func (f *fixture) call(method string, params ...interface{}) rpcReply {
	f.t.Helper()
	return f.callWithHeader(nil, method, params...)
}

func (f *fixture) callWithHeader(header http.Header, method string, params ...interface{}) rpcReply {
	f.t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(f.t, err)
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	require.NoError(f.t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rpcReply{Status: rec.Code, Result: resp.Result, Error: resp.Error}
}

func (f *fixture) signed(from *account, nonce uint64, op string, payload interface{}) *types.Transaction {
	f.t.Helper()
	encoded, err := json.Marshal(payload)
	require.NoError(f.t, err)
	tx := &types.Transaction{ChainID: testChainID, Op: op, Nonce: nonce, Payload: encoded}
	require.NoError(f.t, tx.Sign(from.key.PrivateKey))
	return tx
}

// send signs op with the next nonce of from.
func (f *fixture) send(from *account, op string, payload interface{}) rpcReply {
	f.t.Helper()
	f.nonces[from.addr]++
	return f.call("lockbox_sendTransaction", f.signed(from, f.nonces[from.addr], op, payload))
}

func (f *fixture) mustSend(from *account, op string, payload interface{}) json.RawMessage {
	f.t.Helper()
	reply := f.send(from, op, payload)
	if reply.Error != nil {
		f.t.Fatalf("%s failed: %d %s", op, reply.Error.Code, reply.Error.Message)
	}
	var res TxResult
	require.NoError(f.t, json.Unmarshal(reply.Result, &res))
	require.Equal(f.t, from.addr, res.Signer)
	encoded, err := json.Marshal(res.Result)
	require.NoError(f.t, err)
	return encoded
}

func (f *fixture) balance(addr string) int64 {
	f.t.Helper()
	reply := f.call("bank_getBalance", map[string]string{"account": addr})
	require.Nil(f.t, reply.Error)
	var view struct {
		Balance *big.Int `json:"balance"`
	}
	require.NoError(f.t, json.Unmarshal(reply.Result, &view))
	return view.Balance.Int64()
}

var nodeShare = []byte("share-of-node")

func (f *fixture) activeLockbox() {
	f.t.Helper()
	f.mustSend(f.node, "lockbox.createStake", map[string]string{"amount": "1000"})
	f.mustSend(f.writer, "lockbox.createLockbox", map[string]interface{}{
		"lockboxId": "lb-1",
		"owner":     f.owner.addr,
		"version": map[string]interface{}{
			"versionId":      "v1",
			"price":          "100",
			"contentPointer": "cid-v1",
			"sharingGroup":   []string{f.node.addr},
			"shareHashes":    []string{crypto.ShareHash(nodeShare)},
		},
	})
	f.mustSend(f.node, "lockbox.createDeposit", map[string]string{"lockboxId": "lb-1"})
	ack := f.mustSend(f.node, "lockbox.acknowledgeShare", map[string]string{"lockboxId": "lb-1", "versionId": "v1"})
	var outcome lockbox.AckOutcome
	require.NoError(f.t, json.Unmarshal(ack, &outcome))
	require.True(f.t, outcome.Promoted)
	f.mustSend(f.owner, "lockbox.addReader", map[string]string{"lockboxId": "lb-1", "reader": f.reader.addr})
}

func TestReadFlowOverRPC(t *testing.T) {
	f := newFixture(t, nil)
	f.activeLockbox()

	probe, err := crypto.GenerateProbeKeyPair()
	require.NoError(t, err)
	f.mustSend(f.reader, "lockbox.openRequest", map[string]string{
		"lockboxId": "lb-1",
		"requestId": "req-1",
		"maxPrice":  "100",
		"publicKey": hex.EncodeToString(probe.Public),
	})
	require.Equal(t, int64(9_900), f.balance(f.reader.addr))

	sealed, err := crypto.SealProbe(probe.Public, nodeShare)
	require.NoError(t, err)
	f.mustSend(f.node, "lockbox.postResult", map[string]string{
		"requestId":  "req-1",
		"ciphertext": hex.EncodeToString(sealed.Ciphertext),
		"nonce":      hex.EncodeToString(sealed.Nonce),
		"mac":        hex.EncodeToString(sealed.MAC),
	})
	require.Greater(t, f.balance(f.writer.addr), int64(10_000))

	reply := f.call("lockbox_getResult", map[string]string{"requestId": "req-1", "node": f.node.addr})
	require.Nil(t, reply.Error)
	var result resultView
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	ciphertext, err := hex.DecodeString(result.Ciphertext)
	require.NoError(t, err)
	nonce, _ := hex.DecodeString(result.Nonce)
	mac, _ := hex.DecodeString(result.MAC)
	plain, err := crypto.OpenProbe(probe.Public, probe.Private, crypto.SealedProbe{Ciphertext: ciphertext, Nonce: nonce, MAC: mac})
	require.NoError(t, err)
	require.Equal(t, nodeShare, plain)

	reply = f.call("lockbox_getLockbox", map[string]string{"lockboxId": "lb-1"})
	require.Nil(t, reply.Error)
	var lb lockboxView
	require.NoError(t, json.Unmarshal(reply.Result, &lb))
	require.Equal(t, "v1", lb.CurrentVersionID)
	require.Empty(t, lb.PendingVersionID)

	head := f.call("ledger_head")
	require.Nil(t, head.Error)
	var hv headView
	require.NoError(t, json.Unmarshal(head.Result, &hv))
	require.Equal(t, uint64(8), hv.Height)

	receipt := f.call("ledger_getReceipt", map[string]uint64{"height": hv.Height})
	require.Nil(t, receipt.Error)
	var rv receiptView
	require.NoError(t, json.Unmarshal(receipt.Result, &rv))
	require.Equal(t, "lockbox.postResult", rv.Op)
	require.Equal(t, hv.Hash, rv.Hash)
}

func TestErrorKindsMapToCodes(t *testing.T) {
	f := newFixture(t, nil)
	f.activeLockbox()

	reply := f.call("lockbox_getLockbox", map[string]string{"lockboxId": "missing"})
	require.Equal(t, http.StatusNotFound, reply.Status)
	require.Equal(t, codeNotFound, reply.Error.Code)

	reply = f.send(f.reader, "lockbox.addReader", map[string]string{"lockboxId": "lb-1", "reader": f.reader.addr})
	require.Equal(t, http.StatusForbidden, reply.Status)
	require.Equal(t, codeAuthorization, reply.Error.Code)

	reply = f.send(f.node, "lockbox.withdrawDeposit", map[string]string{"lockboxId": "lb-1"})
	require.Equal(t, http.StatusConflict, reply.Status)
	require.Contains(t, []int{codeInvariant, codeDeadline}, reply.Error.Code)

	reply = f.call("lockbox_nope")
	require.Equal(t, http.StatusNotFound, reply.Status)
	require.Equal(t, codeMethodNotFound, reply.Error.Code)

	reply = f.send(f.writer, "lockbox.unknownOp", map[string]string{})
	require.Equal(t, codeInvalidParams, reply.Error.Code)

	reply = f.send(f.reader, "lockbox.openRequest", map[string]string{"lockboxId": "lb-1", "maxPrice": "lots", "publicKey": "00"})
	require.Equal(t, http.StatusBadRequest, reply.Status)
	require.Equal(t, codeInvalidParams, reply.Error.Code)
}

func TestCreateAccountForAnotherID(t *testing.T) {
	f := newFixture(t, nil)
	victim := "lbx1victim"

	own := ledger.KeysetGuard(ledger.PredKeysAll, f.reader.addr)
	reply := f.send(f.reader, "bank.createAccount", map[string]interface{}{"id": victim, "guard": own})
	require.Equal(t, http.StatusForbidden, reply.Status)
	require.Equal(t, codeAuthorization, reply.Error.Code)

	reply = f.send(f.reader, "bank.createAccount", map[string]interface{}{"id": victim})
	require.Nil(t, reply.Error)
	account := f.call("bank_getAccount", map[string]string{"account": victim})
	require.Nil(t, account.Error)
	require.Contains(t, string(account.Result), victim)
	require.NotContains(t, string(account.Result), f.reader.addr)
}

func TestTransactionPayloadLogIsMasked(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := newFixture(t, func(cfg *Config) { cfg.Logger = logger })

	f.send(f.reader, "lockbox.challengeInvalidResult", map[string]string{
		"requestId":  "r-1",
		"node":       f.node.addr,
		"publicKey":  "aa",
		"privateKey": "c0ffee",
	})
	out := buf.String()
	require.Contains(t, out, `"requestId":"r-1"`)
	require.Contains(t, out, logging.RedactedValue)
	require.NotContains(t, out, "c0ffee")
}

func TestNonceReplayRejected(t *testing.T) {
	f := newFixture(t, nil)
	payload := map[string]string{"to": f.owner.addr, "amount": "5"}

	tx := f.signed(f.writer, 1, "bank.transfer", payload)
	reply := f.call("lockbox_sendTransaction", tx)
	require.Nil(t, reply.Error)

	reply = f.call("lockbox_sendTransaction", tx)
	require.Equal(t, codeAlreadyDone, reply.Error.Code)
	require.Equal(t, int64(10_005), f.balance(f.owner.addr))

	nonce := f.call("ledger_getNonce", map[string]string{"account": f.writer.addr})
	require.Nil(t, nonce.Error)
	require.JSONEq(t, `{"account":"`+f.writer.addr+`","nonce":1}`, string(nonce.Result))
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.send(f.writer, "bank.transfer", map[string]string{"to": f.owner.addr, "amount": "20000"})
	require.NotNil(t, reply.Error)
	require.Equal(t, int64(10_000), f.balance(f.writer.addr))

	// The aborted transaction did not consume its nonce.
	nonce := f.call("ledger_getNonce", map[string]string{"account": f.writer.addr})
	require.JSONEq(t, `{"account":"`+f.writer.addr+`","nonce":0}`, string(nonce.Result))
}

func TestChainIDMismatch(t *testing.T) {
	f := newFixture(t, nil)
	tx := f.signed(f.writer, 1, "bank.transfer", map[string]string{"to": f.owner.addr, "amount": "1"})
	tx.ChainID = "other"
	reply := f.call("lockbox_sendTransaction", tx)
	require.Equal(t, codeInvalidParams, reply.Error.Code)
	require.Equal(t, "chain id mismatch", reply.Error.Message)
}

func TestRateLimiterThrottles(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.RateLimitPerMinute = 1 })
	first := f.call("ledger_head")
	require.Nil(t, first.Error)
	second := f.call("ledger_head")
	require.Equal(t, http.StatusTooManyRequests, second.Status)
	require.Equal(t, codeRateLimited, second.Error.Code)
}

func TestAuthenticatorRequiresToken(t *testing.T) {
	const secret = "rpc-secret"
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: secret, Issuer: "lockbox", RequiredScopes: []string{"rpc"}}, nil)
	require.NoError(t, err)
	f := newFixture(t, func(cfg *Config) { cfg.Auth = auth })

	reply := f.call("ledger_head")
	require.Equal(t, http.StatusUnauthorized, reply.Status)
	require.Equal(t, codeUnauthorized, reply.Error.Code)

	sign := func(claims jwt.MapClaims) http.Header {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return http.Header{"Authorization": []string{"Bearer " + token}}
	}
	exp := time.Now().Add(time.Hour).Unix()

	reply = f.callWithHeader(sign(jwt.MapClaims{"iss": "lockbox", "scope": "read", "exp": exp}), "ledger_head")
	require.Equal(t, http.StatusForbidden, reply.Status)

	reply = f.callWithHeader(sign(jwt.MapClaims{"iss": "other", "scope": "rpc", "exp": exp}), "ledger_head")
	require.Equal(t, http.StatusUnauthorized, reply.Status)

	reply = f.callWithHeader(sign(jwt.MapClaims{"iss": "lockbox", "scope": "rpc read", "exp": exp}), "ledger_head")
	require.Nil(t, reply.Error)

	_, err = NewAuthenticator(AuthConfig{}, nil)
	require.Error(t, err)
}

func TestHubFiltersByPrefix(t *testing.T) {
	hub := NewHub(nil)
	all, cancelAll := hub.Subscribe("")
	defer cancelAll()
	banks, cancelBanks := hub.Subscribe("bank.")
	defer cancelBanks()

	hub.Emit(ledger.CommittedEvent{Height: 1, TxHash: "aa", Event: &types.Event{Type: "lockbox.created"}})
	hub.Emit(ledger.CommittedEvent{Height: 2, TxHash: "bb", Event: &types.Event{Type: "bank.transfer"}})

	require.Equal(t, "lockbox.created", (<-all).Type)
	require.Equal(t, "bank.transfer", (<-all).Type)
	frame := <-banks
	require.Equal(t, uint64(2), frame.Height)
	select {
	case extra := <-banks:
		t.Fatalf("unexpected frame %+v", extra)
	default:
	}
}

func TestEventStreamOverWebsocket(t *testing.T) {
	hub := NewHub(nil)
	f := newFixture(t, func(cfg *Config) { cfg.Stream = hub })
	f.server.exec.SetEmitter(hub)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/events?type=bank.transfer", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The subscription is registered after the handshake completes on the
	// server side, so keep sending until a frame arrives.
	received := make(chan StreamEvent, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame StreamEvent
		if json.Unmarshal(data, &frame) == nil {
			received <- frame
		}
	}()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case frame := <-received:
			require.Equal(t, "bank.transfer", frame.Type)
			require.NotEmpty(t, frame.TxHash)
			return
		case <-ticker.C:
			f.mustSend(f.writer, "bank.transfer", map[string]string{"to": f.owner.addr, "amount": "1"})
		case <-ctx.Done():
			t.Fatalf("no event received")
		}
	}
}

func TestEventStreamChecksOrigin(t *testing.T) {
	hub := NewHub(nil)
	f := newFixture(t, func(cfg *Config) { cfg.Stream = hub })
	srv := httptest.NewServer(f.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	foreign := http.Header{"Origin": []string{"https://dapp.example"}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: foreign})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	hub.SetAllowedOrigins("dapp.example")
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: foreign})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "done")
}
