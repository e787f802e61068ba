package lockbox

import (
	"math"
	"math/big"

	"lockboxchain/core/ledger"
)

// ProtocolVersion is stamped on every version and request.
const ProtocolVersion uint64 = 1

// noLeavePending marks an activity row with no leave request in flight.
const noLeavePending uint64 = math.MaxUint64

// Lockbox is the mutable head of a lockbox. Only update and promotion move its
// version pointers.
type Lockbox struct {
	ID               string
	Writer           string
	Owner            ledger.Guard
	CurrentVersionID string
	PendingVersionID string
	PendingAddedAt   uint64
	CreatedAt        uint64
}

// HasCurrent reports whether the lockbox has an acknowledged version.
func (l *Lockbox) HasCurrent() bool { return l.CurrentVersionID != "" }

// HasPending reports whether a version awaits acknowledgement.
func (l *Lockbox) HasPending() bool { return l.PendingVersionID != "" }

// Version is write-once. Force-leave is the only path that rewrites a stored
// version, and it only ever empties SharingGroup.
type Version struct {
	ID              string
	LockboxID       string
	ProtocolVersion uint64
	Price           *big.Int
	DepositAmount   *big.Int
	ContentPointer  string
	SharingGroup    []string
	CreatedAt       uint64
}

// Contains reports whether node is in the version's sharing group.
func (v *Version) Contains(node string) bool { return containsNode(v.SharingGroup, node) }

// ShareHash is a member's share commitment for one version.
type ShareHash struct {
	Hash         string
	Acknowledged bool
}

// Request is the immutable snapshot taken when a read request opens.
type Request struct {
	ID              string
	ProtocolVersion uint64
	LockboxID       string
	VersionID       string
	Reader          string
	Writer          string
	PublicKey       []byte
	Price           *big.Int
	Escrowed        *big.Int
	ReaderIsOwner   bool
	ContentPointer  string
	SharingGroup    []string
	OpenedAt        uint64
}

// Contains reports whether node is in the request's sharing-group snapshot.
func (r *Request) Contains(node string) bool { return containsNode(r.SharingGroup, node) }

// Result is a sharing node's posted answer to a request.
type Result struct {
	Ciphertext []byte
	Nonce      []byte
	MAC        []byte
	PostedAt   uint64
}

// Challenge kinds.
const (
	ChallengeMissing = "missing"
	ChallengeInvalid = "invalid"
)

// Challenge records that a (request, node) pair has been challenged.
type Challenge struct {
	Kind    string
	Slashed bool
	Amount  *big.Int
	At      uint64
}

// ChallengeOutcome reports what a committed challenge did.
type ChallengeOutcome struct {
	Slashed bool     `json:"slashed"`
	Amount  *big.Int `json:"amount"`
}

// Activity drives the per-(lockbox, node) deadlines.
type Activity struct {
	LastRequestOpenedAt     uint64
	LeaveRequestInitiatedAt uint64
}

// LeavePending reports whether the node has initiated a leave.
func (a *Activity) LeavePending() bool { return a.LeaveRequestInitiatedAt != noLeavePending }

// Membership counts the current-version groups a node belongs to.
type Membership struct {
	LockboxCount uint64
}

// Stake links an owner to its stake account.
type Stake struct {
	Owner   string
	Account string
}

// Deposit links a (lockbox, node) pair to its deposit account.
type Deposit struct {
	LockboxID string
	NodeID    string
	Account   string
}

// AckOutcome reports whether an acknowledgement completed the quorum.
type AckOutcome struct {
	Promoted bool     `json:"promoted"`
	Waiting  []string `json:"waiting,omitempty"`
}

// Fees is the fee split of a price across a sharing group.
type Fees struct {
	Price          *big.Int `json:"price"`
	GroupSize      int      `json:"groupSize"`
	SharingNodeFee *big.Int `json:"sharingNodeFee"`
	WriterFee      *big.Int `json:"writerFee"`
	DepositAmount  *big.Int `json:"depositAmount"`
}

func containsNode(group []string, node string) bool {
	for _, member := range group {
		if member == node {
			return true
		}
	}
	return false
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
