package bank

import (
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lockboxchain/core/ledger"
)

// Capability names guarding module-owned accounts.
const (
	CapabilityEscrow  = "lockbox.escrow"
	CapabilityDeposit = "lockbox.deposit"
	CapabilityStake   = "lockbox.stake"
)

func moduleID(kind string, parts ...string) string {
	encoded, err := rlp.EncodeToBytes(parts)
	if err != nil {
		panic(err)
	}
	return "lockbox:" + kind + ":" + hex.EncodeToString(ethcrypto.Keccak256(encoded))
}

// EscrowAccount is the per-request escrow account id and its guard.
func EscrowAccount(requestID string) (string, ledger.Guard) {
	return moduleID("escrow", requestID), ledger.CapabilityGuard(CapabilityEscrow, requestID)
}

// DepositAccount is the per-(lockbox, node) deposit account id and its guard.
func DepositAccount(lockboxID, nodeID string) (string, ledger.Guard) {
	id := moduleID("deposit", lockboxID, nodeID)
	return id, ledger.CapabilityGuard(CapabilityDeposit, id)
}

// StakeAccount is the per-owner stake account id and its guard.
func StakeAccount(owner string) (string, ledger.Guard) {
	return moduleID("stake", owner), ledger.CapabilityGuard(CapabilityStake, owner)
}
