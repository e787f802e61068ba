package lockbox

import (
	"math/big"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
)

// AccountBalance pairs a module account with its balance.
type AccountBalance struct {
	Account string   `json:"account"`
	Balance *big.Int `json:"balance"`
}

func (e *Engine) GetLockbox(tx *ledger.Tx, lockboxID string) (*Lockbox, error) {
	return loadLockbox(tx, "get-lockbox", lockboxID)
}

func (e *Engine) GetVersion(tx *ledger.Tx, versionID string) (*Version, error) {
	return loadVersion(tx, "get-version", versionID)
}

func (e *Engine) GetShareHash(tx *ledger.Tx, versionID, node string) (*ShareHash, error) {
	return loadShareHash(tx, "get-share-hash", versionID, node)
}

// IsReaderAuthorized reports the explicit reader row only; owners are
// authorised implicitly at request time.
func (e *Engine) IsReaderAuthorized(tx *ledger.Tx, lockboxID, reader string) (bool, error) {
	if _, err := loadLockbox(tx, "is-reader-authorized", lockboxID); err != nil {
		return false, err
	}
	return readerAuthorized(tx, lockboxID, reader)
}

func (e *Engine) GetRequest(tx *ledger.Tx, requestID string) (*Request, error) {
	return loadRequest(tx, "get-request", requestID)
}

func (e *Engine) GetResult(tx *ledger.Tx, requestID, node string) (*Result, error) {
	const op = "get-result"
	result := new(Result)
	ok, err := getRow(tx, resultKey(requestID, node), result)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "no result from %s for request %s", node, requestID)
	}
	return result, nil
}

func (e *Engine) GetChallenge(tx *ledger.Tx, requestID, node string) (*Challenge, error) {
	const op = "get-challenge"
	c := new(Challenge)
	ok, err := getRow(tx, challengeKey(requestID, node), c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "%s was not challenged for request %s", node, requestID)
	}
	c.Amount = cloneBigInt(c.Amount)
	return c, nil
}

// GetActivity returns the activity row, defaulting to no requests and no
// pending leave.
func (e *Engine) GetActivity(tx *ledger.Tx, lockboxID, node string) (*Activity, error) {
	return loadActivity(tx, lockboxID, node)
}

func (e *Engine) GetMembership(tx *ledger.Tx, node string) (*Membership, error) {
	return loadMembership(tx, node)
}

func (e *Engine) GetStake(tx *ledger.Tx, owner string) (*AccountBalance, error) {
	const op = "get-stake"
	s, err := loadStake(tx, op, owner)
	if err != nil {
		return nil, err
	}
	balance, err := e.stake.Balance(tx, s.Account)
	if err != nil {
		return nil, err
	}
	return &AccountBalance{Account: s.Account, Balance: balance}, nil
}

func (e *Engine) GetDeposit(tx *ledger.Tx, lockboxID, node string) (*AccountBalance, error) {
	const op = "get-deposit"
	dep, ok, err := loadDeposit(tx, lockboxID, node)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "no deposit for %s in lockbox %s", node, lockboxID)
	}
	balance, err := e.coin.Balance(tx, dep.Account)
	if err != nil {
		return nil, err
	}
	return &AccountBalance{Account: dep.Account, Balance: balance}, nil
}

// GetFees returns the fee split of the lockbox's current version.
func (e *Engine) GetFees(tx *ledger.Tx, lockboxID string) (*Fees, error) {
	const op = "get-fees"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return nil, err
	}
	lb, err := loadLockbox(tx, op, lockboxID)
	if err != nil {
		return nil, err
	}
	if !lb.HasCurrent() {
		return nil, lerrors.NotFound(op, "lockbox %s has no active version", lockboxID)
	}
	v, err := loadVersion(tx, op, lb.CurrentVersionID)
	if err != nil {
		return nil, err
	}
	fees := params.ComputeFees(v.Price, len(v.SharingGroup))
	return &fees, nil
}
