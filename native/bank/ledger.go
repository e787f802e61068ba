package bank

import (
	"math/big"
	"strings"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
	"lockboxchain/core/state"
	"lockboxchain/core/types"
)

const (
	// CoinNamespace is the fungible ledger readers pay from and deposits are
	// held in.
	CoinNamespace = "coin"
	// StakeNamespace is the separate staking-token ledger.
	StakeNamespace = "stake"

	// EventTypeTransfer is emitted for every balance movement.
	EventTypeTransfer = "bank.transfer"
	// EventTypeAccountCreated is emitted when an account row is inserted.
	EventTypeAccountCreated = "bank.account.created"

	// ModulePrefix marks account ids reserved for module-owned accounts.
	ModulePrefix = "lockbox:"
)

// Account is the persisted account row.
type Account struct {
	Guard   ledger.Guard
	Balance *big.Int
}

// Details is the public view of an account.
type Details struct {
	ID      string       `json:"id"`
	Guard   ledger.Guard `json:"guard"`
	Balance *big.Int     `json:"balance"`
}

// Ledger is one fungible balance namespace. All methods run inside a ledger
// transaction and abort it on failure.
type Ledger struct {
	namespace string
}

// NewLedger returns the ledger for namespace.
func NewLedger(namespace string) *Ledger {
	return &Ledger{namespace: namespace}
}

// Coin is the payment ledger.
func Coin() *Ledger { return NewLedger(CoinNamespace) }

// Stake is the staking-token ledger.
func Stake() *Ledger { return NewLedger(StakeNamespace) }

// Namespace returns the ledger namespace.
func (l *Ledger) Namespace() string { return l.namespace }

func (l *Ledger) op(name string) string { return l.namespace + "." + name }

func (l *Ledger) key(id string) []byte {
	return state.Key("bank/account", l.namespace, id)
}

func (l *Ledger) load(tx *ledger.Tx, op, id string) (*Account, error) {
	acct := new(Account)
	ok, err := tx.State().KVGet(l.key(id), acct)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "account %s not found", id)
	}
	if acct.Balance == nil {
		acct.Balance = big.NewInt(0)
	}
	return acct, nil
}

func (l *Ledger) store(tx *ledger.Tx, id string, acct *Account) error {
	return tx.State().KVPut(l.key(id), acct)
}

// CreateAccount inserts an empty account protected by guard.
func (l *Ledger) CreateAccount(tx *ledger.Tx, id string, guard ledger.Guard) error {
	op := l.op("createAccount")
	if strings.TrimSpace(id) == "" {
		return lerrors.Invariant(op, "account id required")
	}
	if err := guard.Validate(); err != nil {
		return lerrors.Invariant(op, "%v", err)
	}
	if err := authorizeNew(tx, op, id, guard); err != nil {
		return err
	}
	inserted, err := tx.State().KVInsert(l.key(id), &Account{Guard: guard, Balance: big.NewInt(0)})
	if err != nil {
		return err
	}
	if !inserted {
		return lerrors.AlreadyDone(op, "account %s already exists", id)
	}
	tx.Emit(&types.Event{Type: EventTypeAccountCreated, Attributes: map[string]string{
		"namespace": l.namespace,
		"account":   id,
		"guard":     guard.String(),
	}})
	return nil
}

// Exists reports whether id has an account row.
func (l *Ledger) Exists(tx *ledger.Tx, id string) (bool, error) {
	return tx.State().KVHas(l.key(id))
}

// Balance returns the balance of id.
func (l *Ledger) Balance(tx *ledger.Tx, id string) (*big.Int, error) {
	acct, err := l.load(tx, l.op("balance"), id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acct.Balance), nil
}

// Details returns the guard and balance of id.
func (l *Ledger) Details(tx *ledger.Tx, id string) (*Details, error) {
	acct, err := l.load(tx, l.op("details"), id)
	if err != nil {
		return nil, err
	}
	return &Details{ID: id, Guard: acct.Guard, Balance: new(big.Int).Set(acct.Balance)}, nil
}

// Transfer moves amount from one existing account to another. The sender's
// guard must be satisfied in tx.
func (l *Ledger) Transfer(tx *ledger.Tx, from, to string, amount *big.Int) error {
	op := l.op("transfer")
	if err := validateAmount(op, amount); err != nil {
		return err
	}
	if from == to {
		return lerrors.Invariant(op, "sender and receiver must differ")
	}
	sender, err := l.debit(tx, op, from, amount)
	if err != nil {
		return err
	}
	receiver, err := l.load(tx, op, to)
	if err != nil {
		return err
	}
	return l.settle(tx, from, sender, to, receiver, amount)
}

// TransferCreate is Transfer that creates the receiver with guard when it does
// not exist yet. An existing receiver must carry exactly guard.
func (l *Ledger) TransferCreate(tx *ledger.Tx, from, to string, guard ledger.Guard, amount *big.Int) error {
	op := l.op("transferCreate")
	if err := validateAmount(op, amount); err != nil {
		return err
	}
	if from == to {
		return lerrors.Invariant(op, "sender and receiver must differ")
	}
	if err := guard.Validate(); err != nil {
		return lerrors.Invariant(op, "%v", err)
	}
	sender, err := l.debit(tx, op, from, amount)
	if err != nil {
		return err
	}
	receiver := new(Account)
	ok, err := tx.State().KVGet(l.key(to), receiver)
	if err != nil {
		return err
	}
	if ok {
		if !receiver.Guard.Equal(guard) {
			return lerrors.Invariant(op, "account %s exists with a different guard", to)
		}
	} else {
		if err := authorizeNew(tx, op, to, guard); err != nil {
			return err
		}
		receiver = &Account{Guard: guard, Balance: big.NewInt(0)}
		tx.Emit(&types.Event{Type: EventTypeAccountCreated, Attributes: map[string]string{
			"namespace": l.namespace,
			"account":   to,
			"guard":     guard.String(),
		}})
	}
	if receiver.Balance == nil {
		receiver.Balance = big.NewInt(0)
	}
	return l.settle(tx, from, sender, to, receiver, amount)
}

// Mint credits amount to id, creating the account with guard if needed. It is
// only reachable from genesis.
func (l *Ledger) Mint(tx *ledger.Tx, id string, guard ledger.Guard, amount *big.Int) error {
	op := l.op("mint")
	if err := validateAmount(op, amount); err != nil {
		return err
	}
	acct := new(Account)
	ok, err := tx.State().KVGet(l.key(id), acct)
	if err != nil {
		return err
	}
	if !ok {
		if err := guard.Validate(); err != nil {
			return lerrors.Invariant(op, "%v", err)
		}
		if err := authorizeNew(tx, op, id, guard); err != nil {
			return err
		}
		acct = &Account{Guard: guard, Balance: big.NewInt(0)}
	}
	if acct.Balance == nil {
		acct.Balance = big.NewInt(0)
	}
	acct.Balance = new(big.Int).Add(acct.Balance, amount)
	if err := l.store(tx, id, acct); err != nil {
		return err
	}
	tx.Emit(&types.Event{Type: EventTypeTransfer, Attributes: map[string]string{
		"namespace": l.namespace,
		"to":        id,
		"amount":    amount.String(),
		"mint":      "true",
	}})
	return nil
}

// authorizeNew decides who may open an account under id. Module ids take only
// the capability guard of the grant currently held. Any other id is either
// guarded by its own key alone or must be opened by that key.
func authorizeNew(tx *ledger.Tx, op, id string, guard ledger.Guard) error {
	if strings.HasPrefix(id, ModulePrefix) {
		if guard.Kind != ledger.GuardCapability {
			return lerrors.Authorization(op, "module account %s requires a capability guard", id)
		}
		return tx.EnforceAuthorized(op, guard)
	}
	if guard.Kind == ledger.GuardCapability {
		return lerrors.Authorization(op, "capability guards are reserved for module accounts")
	}
	self := ledger.KeysetGuard(ledger.PredKeysAll, id)
	if guard.Equal(self) {
		return nil
	}
	if !tx.IsAuthorized(self) {
		return lerrors.Authorization(op, "account %s may only be opened with %s unless %s signs", id, self, id)
	}
	return nil
}

func (l *Ledger) debit(tx *ledger.Tx, op, from string, amount *big.Int) (*Account, error) {
	sender, err := l.load(tx, op, from)
	if err != nil {
		return nil, err
	}
	if err := tx.EnforceAuthorized(op, sender.Guard); err != nil {
		return nil, err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return nil, lerrors.Invariant(op, "insufficient balance in %s: have %s, need %s", from, sender.Balance, amount)
	}
	return sender, nil
}

func (l *Ledger) settle(tx *ledger.Tx, from string, sender *Account, to string, receiver *Account, amount *big.Int) error {
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	receiver.Balance = new(big.Int).Add(receiver.Balance, amount)
	if err := l.store(tx, from, sender); err != nil {
		return err
	}
	if err := l.store(tx, to, receiver); err != nil {
		return err
	}
	tx.Emit(&types.Event{Type: EventTypeTransfer, Attributes: map[string]string{
		"namespace": l.namespace,
		"from":      from,
		"to":        to,
		"amount":    amount.String(),
	}})
	return nil
}

func validateAmount(op string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return lerrors.Invariant(op, "amount must be positive")
	}
	return nil
}
