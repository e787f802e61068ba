package lockbox

import (
	"bytes"
	"math/big"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
	"lockboxchain/crypto"
	"lockboxchain/native/bank"
)

// ChallengeMissingResult slashes a node that did not post a result within the
// post-result window.
func (e *Engine) ChallengeMissingResult(tx *ledger.Tx, requestID, node string) (*ChallengeOutcome, error) {
	const op = "challenge-missing-result"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return nil, err
	}
	req, err := e.challengeable(tx, op, params, requestID, node)
	if err != nil {
		return nil, err
	}
	postDeadline := addSaturating(req.OpenedAt, windowSeconds(params.PostResultWindow))
	if now(tx) <= postDeadline {
		return nil, lerrors.Deadline(op, "result for request %s may be posted until %d", requestID, postDeadline)
	}
	posted, err := tx.State().KVHas(resultKey(requestID, node))
	if err != nil {
		return nil, err
	}
	if posted {
		return nil, lerrors.Invariant(op, "%s posted a result for request %s", node, requestID)
	}
	c, err := markChallenged(tx, op, requestID, node, ChallengeMissing)
	if err != nil {
		return nil, err
	}
	return e.slash(tx, req, node, c)
}

// ChallengeInvalidResult decrypts node's posted result with the request key
// pair and slashes the node when the plaintext does not hash to the share hash
// the writer recorded. The (request, node) pair is marked challenged before the
// result is checked, so a matching hash still spends the challenge.
func (e *Engine) ChallengeInvalidResult(tx *ledger.Tx, requestID, node string, publicKey, privateKey []byte) (*ChallengeOutcome, error) {
	const op = "challenge-invalid-result"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return nil, err
	}
	req, err := e.challengeable(tx, op, params, requestID, node)
	if err != nil {
		return nil, err
	}
	c, err := markChallenged(tx, op, requestID, node, ChallengeInvalid)
	if err != nil {
		return nil, err
	}
	if !crypto.ValidateKeyPair(publicKey, privateKey) {
		return nil, lerrors.Invariant(op, "invalid request key pair")
	}
	if !bytes.Equal(publicKey, req.PublicKey) {
		return nil, lerrors.Invariant(op, "key pair does not belong to request %s", requestID)
	}
	result := new(Result)
	ok, err := getRow(tx, resultKey(requestID, node), result)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "%s has not posted a result for request %s", node, requestID)
	}
	share, err := loadShareHash(tx, op, req.VersionID, node)
	if err != nil {
		return nil, err
	}
	got := crypto.ProbeShareHash(publicKey, privateKey, crypto.SealedProbe{
		Ciphertext: result.Ciphertext,
		Nonce:      result.Nonce,
		MAC:        result.MAC,
	})
	if got == share.Hash {
		tx.Emit(NewChallengeEvent(req, node, c))
		return &ChallengeOutcome{Slashed: false, Amount: big.NewInt(0)}, nil
	}
	return e.slash(tx, req, node, c)
}

// challengeable loads the request and checks the caller is its reader, node
// is in its group and the challenge window is still open.
func (e *Engine) challengeable(tx *ledger.Tx, op string, params Params, requestID, node string) (*Request, error) {
	req, err := loadRequest(tx, op, requestID)
	if err != nil {
		return nil, err
	}
	if err := requireSigner(tx, op, req.Reader); err != nil {
		return nil, err
	}
	if !req.Contains(node) {
		return nil, lerrors.Invariant(op, "%s is not in the sharing group of request %s", node, requestID)
	}
	deadline := addSaturating(req.OpenedAt, windowSeconds(params.ChallengeWindow))
	if now(tx) > deadline {
		return nil, lerrors.Deadline(op, "challenge window for request %s closed at %d", requestID, deadline)
	}
	return req, nil
}

func markChallenged(tx *ledger.Tx, op, requestID, node, kind string) (*Challenge, error) {
	c := &Challenge{Kind: kind, Amount: big.NewInt(0), At: now(tx)}
	inserted, err := tx.State().KVInsert(challengeKey(requestID, node), c)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, lerrors.AlreadyDone(op, "%s already challenged for request %s", node, requestID)
	}
	return c, nil
}

// slash moves node's whole deposit for the request's lockbox to the reader. An
// empty or missing deposit moves nothing.
func (e *Engine) slash(tx *ledger.Tx, req *Request, node string, c *Challenge) (*ChallengeOutcome, error) {
	amount := big.NewInt(0)
	dep, ok, err := loadDeposit(tx, req.LockboxID, node)
	if err != nil {
		return nil, err
	}
	if ok {
		amount, err = e.coin.Balance(tx, dep.Account)
		if err != nil {
			return nil, err
		}
		if amount.Sign() > 0 {
			err = tx.WithCapability(bank.CapabilityDeposit, dep.Account, func() error {
				return e.payout(tx, e.coin, dep.Account, req.Reader, amount)
			})
			if err != nil {
				return nil, err
			}
		}
	}
	c.Slashed = true
	c.Amount = cloneBigInt(amount)
	if err := putRow(tx, challengeKey(req.ID, node), c); err != nil {
		return nil, err
	}
	tx.Emit(NewChallengeEvent(req, node, c))
	tx.Emit(NewSlashedEvent(req, node, amount))
	return &ChallengeOutcome{Slashed: true, Amount: cloneBigInt(amount)}, nil
}
