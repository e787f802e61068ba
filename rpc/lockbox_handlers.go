package rpc

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"lockboxchain/core/ledger"
	"lockboxchain/native/bank"
	"lockboxchain/native/lockbox"
)

func (s *Server) transactionHandlers() map[string]txHandler {
	return map[string]txHandler{
		"bank.createAccount": s.txCreateAccount,
		"bank.transfer":      s.txTransfer,

		"lockbox.createLockbox":              s.txCreateLockbox,
		"lockbox.updateLockbox":              s.txUpdateLockbox,
		"lockbox.acknowledgeShare":           s.txAcknowledgeShare,
		"lockbox.clearExpiredPendingVersion": s.txClearExpiredPending,
		"lockbox.addReader":                  s.txAddReader,
		"lockbox.removeReader":               s.txRemoveReader,
		"lockbox.openRequest":                s.txOpenRequest,
		"lockbox.postResult":                 s.txPostResult,
		"lockbox.challengeMissingResult":     s.txChallengeMissing,
		"lockbox.challengeInvalidResult":     s.txChallengeInvalid,
		"lockbox.createStake":                s.txCreateStake,
		"lockbox.increaseStake":              s.txIncreaseStake,
		"lockbox.decreaseStake":              s.txDecreaseStake,
		"lockbox.createDeposit":              s.txCreateDeposit,
		"lockbox.withdrawDeposit":            s.txWithdrawDeposit,
		"lockbox.initiateLeave":              s.txInitiateLeave,
		"lockbox.forceLeave":                 s.txForceLeave,
	}
}

func (s *Server) bankLedger(namespace string) (*bank.Ledger, error) {
	switch strings.ToLower(strings.TrimSpace(namespace)) {
	case "", bank.CoinNamespace:
		return s.engine.Coin(), nil
	case bank.StakeNamespace:
		return s.engine.StakeLedger(), nil
	default:
		return nil, invalidParams("unknown ledger namespace", namespace)
	}
}

type createAccountParams struct {
	Namespace string        `json:"namespace"`
	ID        string        `json:"id"`
	Guard     *ledger.Guard `json:"guard"`
}

func (s *Server) txCreateAccount(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p createAccountParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	l, err := s.bankLedger(p.Namespace)
	if err != nil {
		return nil, err
	}
	id := orSigner(p.ID, signer)
	guard := ledger.KeysetGuard(ledger.PredKeysAll, id)
	if p.Guard != nil {
		guard = *p.Guard
	}
	if err := l.CreateAccount(tx, id, guard); err != nil {
		return nil, err
	}
	return l.Details(tx, id)
}

type transferParams struct {
	Namespace string        `json:"namespace"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Amount    string        `json:"amount"`
	Guard     *ledger.Guard `json:"guard"`
}

// txTransfer creates the receiving account when it does not exist yet, keyed
// to the receiver address unless an explicit guard is supplied.
func (s *Server) txTransfer(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p transferParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	l, err := s.bankLedger(p.Namespace)
	if err != nil {
		return nil, err
	}
	to, err := requireField("to", p.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	from := orSigner(p.From, signer)
	exists, err := l.Exists(tx, to)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Guard != nil:
		err = l.TransferCreate(tx, from, to, *p.Guard, amount)
	case exists:
		err = l.Transfer(tx, from, to, amount)
	default:
		err = l.TransferCreate(tx, from, to, ledger.KeysetGuard(ledger.PredKeysAll, to), amount)
	}
	if err != nil {
		return nil, err
	}
	return l.Details(tx, from)
}

type versionParams struct {
	VersionID      string   `json:"versionId"`
	Price          string   `json:"price"`
	ContentPointer string   `json:"contentPointer"`
	SharingGroup   []string `json:"sharingGroup"`
	ShareHashes    []string `json:"shareHashes"`
}

func (p versionParams) spec() (lockbox.VersionSpec, error) {
	versionID := strings.TrimSpace(p.VersionID)
	if versionID == "" {
		versionID = uuid.NewString()
	}
	price, err := parseAmount("price", p.Price)
	if err != nil {
		return lockbox.VersionSpec{}, err
	}
	return lockbox.VersionSpec{
		VersionID:      versionID,
		Price:          price,
		ContentPointer: p.ContentPointer,
		SharingGroup:   p.SharingGroup,
		ShareHashes:    p.ShareHashes,
	}, nil
}

type createLockboxParams struct {
	LockboxID  string        `json:"lockboxId"`
	Writer     string        `json:"writer"`
	Owner      string        `json:"owner"`
	OwnerGuard *ledger.Guard `json:"ownerGuard"`
	Version    versionParams `json:"version"`
}

func (s *Server) txCreateLockbox(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p createLockboxParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	lockboxID, err := requireField("lockboxId", p.LockboxID)
	if err != nil {
		return nil, err
	}
	var owner ledger.Guard
	switch {
	case p.OwnerGuard != nil:
		owner = *p.OwnerGuard
	case strings.TrimSpace(p.Owner) != "":
		owner = ledger.KeysetGuard(ledger.PredKeysAll, p.Owner)
	default:
		return nil, invalidParams("owner or ownerGuard required", nil)
	}
	spec, err := p.Version.spec()
	if err != nil {
		return nil, err
	}
	lb, err := s.engine.CreateLockbox(tx, lockboxID, orSigner(p.Writer, signer), owner, spec)
	if err != nil {
		return nil, err
	}
	return newLockboxView(lb), nil
}

type updateLockboxParams struct {
	LockboxID string        `json:"lockboxId"`
	Version   versionParams `json:"version"`
}

func (s *Server) txUpdateLockbox(tx *ledger.Tx, _ string, payload json.RawMessage) (interface{}, error) {
	var p updateLockboxParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	lockboxID, err := requireField("lockboxId", p.LockboxID)
	if err != nil {
		return nil, err
	}
	spec, err := p.Version.spec()
	if err != nil {
		return nil, err
	}
	v, err := s.engine.UpdateLockbox(tx, lockboxID, spec)
	if err != nil {
		return nil, err
	}
	return newVersionView(v), nil
}

type nodeParams struct {
	LockboxID string `json:"lockboxId"`
	VersionID string `json:"versionId"`
	Node      string `json:"node"`
}

func (s *Server) txAcknowledgeShare(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p nodeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	versionID, err := requireField("versionId", p.VersionID)
	if err != nil {
		return nil, err
	}
	return s.engine.AcknowledgeShare(tx, p.LockboxID, versionID, orSigner(p.Node, signer))
}

type lockboxParams struct {
	LockboxID string `json:"lockboxId"`
}

func (s *Server) txClearExpiredPending(tx *ledger.Tx, _ string, payload json.RawMessage) (interface{}, error) {
	var p lockboxParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	return nil, s.engine.ClearExpiredPendingVersion(tx, p.LockboxID)
}

type readerParams struct {
	LockboxID string `json:"lockboxId"`
	Reader    string `json:"reader"`
}

func (s *Server) txAddReader(tx *ledger.Tx, _ string, payload json.RawMessage) (interface{}, error) {
	var p readerParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	reader, err := requireField("reader", p.Reader)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.AddReader(tx, p.LockboxID, reader)
}

func (s *Server) txRemoveReader(tx *ledger.Tx, _ string, payload json.RawMessage) (interface{}, error) {
	var p readerParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	reader, err := requireField("reader", p.Reader)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.RemoveReader(tx, p.LockboxID, reader)
}

type openRequestParams struct {
	LockboxID string `json:"lockboxId"`
	RequestID string `json:"requestId"`
	Reader    string `json:"reader"`
	MaxPrice  string `json:"maxPrice"`
	PublicKey string `json:"publicKey"`
}

func (s *Server) txOpenRequest(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p openRequestParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	maxPrice, err := parseAmount("maxPrice", p.MaxPrice)
	if err != nil {
		return nil, err
	}
	pub, err := decodeHex("publicKey", p.PublicKey)
	if err != nil {
		return nil, err
	}
	requestID := strings.TrimSpace(p.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req, err := s.engine.OpenRequest(tx, p.LockboxID, requestID, orSigner(p.Reader, signer), maxPrice, pub)
	if err != nil {
		return nil, err
	}
	return newRequestView(req), nil
}

type postResultParams struct {
	RequestID  string `json:"requestId"`
	Node       string `json:"node"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	MAC        string `json:"mac"`
}

func (s *Server) txPostResult(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p postResultParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	ciphertext, err := decodeHex("ciphertext", p.Ciphertext)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeHex("nonce", p.Nonce)
	if err != nil {
		return nil, err
	}
	mac, err := decodeHex("mac", p.MAC)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.PostResult(tx, p.RequestID, orSigner(p.Node, signer), ciphertext, nonce, mac)
}

type challengeParams struct {
	RequestID  string `json:"requestId"`
	Node       string `json:"node"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

func (s *Server) txChallengeMissing(tx *ledger.Tx, _ string, payload json.RawMessage) (interface{}, error) {
	var p challengeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	node, err := requireField("node", p.Node)
	if err != nil {
		return nil, err
	}
	return s.engine.ChallengeMissingResult(tx, p.RequestID, node)
}

func (s *Server) txChallengeInvalid(tx *ledger.Tx, _ string, payload json.RawMessage) (interface{}, error) {
	var p challengeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	node, err := requireField("node", p.Node)
	if err != nil {
		return nil, err
	}
	pub, err := decodeHex("publicKey", p.PublicKey)
	if err != nil {
		return nil, err
	}
	priv, err := decodeHex("privateKey", p.PrivateKey)
	if err != nil {
		return nil, err
	}
	return s.engine.ChallengeInvalidResult(tx, p.RequestID, node, pub, priv)
}

type stakeParams struct {
	Owner  string `json:"owner"`
	From   string `json:"from"`
	Amount string `json:"amount"`
}

func (s *Server) txCreateStake(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p stakeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	owner := orSigner(p.Owner, signer)
	if _, err := s.engine.CreateStake(tx, owner, amount); err != nil {
		return nil, err
	}
	return s.engine.GetStake(tx, owner)
}

func (s *Server) txIncreaseStake(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p stakeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	owner := orSigner(p.Owner, signer)
	if err := s.engine.IncreaseStake(tx, owner, orSigner(p.From, signer), amount); err != nil {
		return nil, err
	}
	return s.engine.GetStake(tx, owner)
}

func (s *Server) txDecreaseStake(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p stakeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	owner := orSigner(p.Owner, signer)
	if err := s.engine.DecreaseStake(tx, owner, amount); err != nil {
		return nil, err
	}
	return s.engine.GetStake(tx, owner)
}

func (s *Server) txCreateDeposit(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p nodeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	node := orSigner(p.Node, signer)
	if _, err := s.engine.CreateLockboxDeposit(tx, p.LockboxID, node); err != nil {
		return nil, err
	}
	return s.engine.GetDeposit(tx, p.LockboxID, node)
}

type withdrawResult struct {
	Amount *big.Int `json:"amount"`
}

func (s *Server) txWithdrawDeposit(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p nodeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	amount, err := s.engine.WithdrawLockboxDeposit(tx, p.LockboxID, orSigner(p.Node, signer))
	if err != nil {
		return nil, err
	}
	return &withdrawResult{Amount: amount}, nil
}

func (s *Server) txInitiateLeave(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p nodeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	return nil, s.engine.InitiateLeaveLockbox(tx, p.LockboxID, orSigner(p.Node, signer))
}

func (s *Server) txForceLeave(tx *ledger.Tx, signer string, payload json.RawMessage) (interface{}, error) {
	var p nodeParams
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	return nil, s.engine.ForceLeaveLockbox(tx, p.LockboxID, orSigner(p.Node, signer))
}
