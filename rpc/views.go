package rpc

import (
	"encoding/hex"
	"math/big"

	"lockboxchain/core/ledger"
	"lockboxchain/native/lockbox"
)

type lockboxView struct {
	ID               string       `json:"id"`
	Writer           string       `json:"writer"`
	Owner            ledger.Guard `json:"owner"`
	CurrentVersionID string       `json:"currentVersionId,omitempty"`
	PendingVersionID string       `json:"pendingVersionId,omitempty"`
	PendingAddedAt   uint64       `json:"pendingAddedAt,omitempty"`
	CreatedAt        uint64       `json:"createdAt"`
}

func newLockboxView(lb *lockbox.Lockbox) *lockboxView {
	view := &lockboxView{
		ID:               lb.ID,
		Writer:           lb.Writer,
		Owner:            lb.Owner,
		CurrentVersionID: lb.CurrentVersionID,
		PendingVersionID: lb.PendingVersionID,
		CreatedAt:        lb.CreatedAt,
	}
	if lb.HasPending() {
		view.PendingAddedAt = lb.PendingAddedAt
	}
	return view
}

type versionView struct {
	ID              string   `json:"id"`
	LockboxID       string   `json:"lockboxId"`
	ProtocolVersion uint64   `json:"protocolVersion"`
	Price           *big.Int `json:"price"`
	DepositAmount   *big.Int `json:"depositAmount"`
	ContentPointer  string   `json:"contentPointer"`
	SharingGroup    []string `json:"sharingGroup"`
	CreatedAt       uint64   `json:"createdAt"`
}

func newVersionView(v *lockbox.Version) *versionView {
	return &versionView{
		ID:              v.ID,
		LockboxID:       v.LockboxID,
		ProtocolVersion: v.ProtocolVersion,
		Price:           v.Price,
		DepositAmount:   v.DepositAmount,
		ContentPointer:  v.ContentPointer,
		SharingGroup:    nonNil(v.SharingGroup),
		CreatedAt:       v.CreatedAt,
	}
}

type shareHashView struct {
	VersionID    string `json:"versionId"`
	Node         string `json:"node"`
	Hash         string `json:"hash"`
	Acknowledged bool   `json:"acknowledged"`
}

type requestView struct {
	ID              string   `json:"id"`
	ProtocolVersion uint64   `json:"protocolVersion"`
	LockboxID       string   `json:"lockboxId"`
	VersionID       string   `json:"versionId"`
	Reader          string   `json:"reader"`
	Writer          string   `json:"writer"`
	PublicKey       string   `json:"publicKey"`
	Price           *big.Int `json:"price"`
	Escrowed        *big.Int `json:"escrowed"`
	ReaderIsOwner   bool     `json:"readerIsOwner"`
	ContentPointer  string   `json:"contentPointer"`
	SharingGroup    []string `json:"sharingGroup"`
	OpenedAt        uint64   `json:"openedAt"`
}

func newRequestView(r *lockbox.Request) *requestView {
	return &requestView{
		ID:              r.ID,
		ProtocolVersion: r.ProtocolVersion,
		LockboxID:       r.LockboxID,
		VersionID:       r.VersionID,
		Reader:          r.Reader,
		Writer:          r.Writer,
		PublicKey:       hex.EncodeToString(r.PublicKey),
		Price:           r.Price,
		Escrowed:        r.Escrowed,
		ReaderIsOwner:   r.ReaderIsOwner,
		ContentPointer:  r.ContentPointer,
		SharingGroup:    nonNil(r.SharingGroup),
		OpenedAt:        r.OpenedAt,
	}
}

type resultView struct {
	RequestID  string `json:"requestId"`
	Node       string `json:"node"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	MAC        string `json:"mac"`
	PostedAt   uint64 `json:"postedAt"`
}

func newResultView(requestID, node string, r *lockbox.Result) *resultView {
	return &resultView{
		RequestID:  requestID,
		Node:       node,
		Ciphertext: hex.EncodeToString(r.Ciphertext),
		Nonce:      hex.EncodeToString(r.Nonce),
		MAC:        hex.EncodeToString(r.MAC),
		PostedAt:   r.PostedAt,
	}
}

type challengeView struct {
	RequestID string   `json:"requestId"`
	Node      string   `json:"node"`
	Kind      string   `json:"kind"`
	Slashed   bool     `json:"slashed"`
	Amount    *big.Int `json:"amount"`
	At        uint64   `json:"at"`
}

type activityView struct {
	LockboxID           string `json:"lockboxId"`
	Node                string `json:"node"`
	LastRequestOpenedAt uint64 `json:"lastRequestOpenedAt"`
	LeavePending        bool   `json:"leavePending"`
	LeaveInitiatedAt    uint64 `json:"leaveInitiatedAt,omitempty"`
}

func newActivityView(lockboxID, node string, a *lockbox.Activity) *activityView {
	view := &activityView{
		LockboxID:           lockboxID,
		Node:                node,
		LastRequestOpenedAt: a.LastRequestOpenedAt,
		LeavePending:        a.LeavePending(),
	}
	if view.LeavePending {
		view.LeaveInitiatedAt = a.LeaveRequestInitiatedAt
	}
	return view
}

type paramsView struct {
	SharingFeeBps     uint64   `json:"sharingFeeBps"`
	DepositMultiplier uint64   `json:"depositMultiplier"`
	MinimumStake      *big.Int `json:"minimumStake"`
	PostResultWindow  uint64   `json:"postResultWindowSeconds"`
	ChallengeWindow   uint64   `json:"challengeWindowSeconds"`
	LeaveWindow       uint64   `json:"leaveWindowSeconds"`
	PendingVersionTTL uint64   `json:"pendingVersionTtlSeconds"`
}

func newParamsView(p lockbox.Params) *paramsView {
	return &paramsView{
		SharingFeeBps:     p.SharingFeeBps,
		DepositMultiplier: p.DepositMultiplier,
		MinimumStake:      p.MinimumStake,
		PostResultWindow:  uint64(p.PostResultWindow.Seconds()),
		ChallengeWindow:   uint64(p.ChallengeWindow.Seconds()),
		LeaveWindow:       uint64(p.LeaveWindow.Seconds()),
		PendingVersionTTL: uint64(p.PendingVersionTTL.Seconds()),
	}
}

type receiptView struct {
	Height    uint64   `json:"height"`
	Timestamp uint64   `json:"timestamp"`
	Op        string   `json:"op"`
	Signers   []string `json:"signers"`
	Events    []string `json:"events"`
	PrevHash  string   `json:"prevHash"`
	Hash      string   `json:"hash"`
}

func newReceiptView(r *ledger.Receipt) *receiptView {
	return &receiptView{
		Height:    r.Height,
		Timestamp: r.Timestamp,
		Op:        r.Op,
		Signers:   nonNil(r.Signers),
		Events:    nonNil(r.Events),
		PrevHash:  hex.EncodeToString(r.PrevHash),
		Hash:      hex.EncodeToString(r.Hash),
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
