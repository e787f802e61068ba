package lockbox

import "lockboxchain/core/state"

const (
	tableModule     = "lockbox/module"
	tableLockbox    = "lockbox/lockbox"
	tableVersion    = "lockbox/version"
	tableShareHash  = "lockbox/share-hash"
	tableReader     = "lockbox/reader"
	tableRequest    = "lockbox/request"
	tableResult     = "lockbox/result"
	tableChallenge  = "lockbox/challenge"
	tableActivity   = "lockbox/activity"
	tableMembership = "lockbox/membership"
	tableStake      = "lockbox/stake"
	tableDeposit    = "lockbox/deposit"
)

func moduleKey() []byte                          { return state.Key(tableModule) }
func lockboxKey(id string) []byte                { return state.Key(tableLockbox, id) }
func versionKey(id string) []byte                { return state.Key(tableVersion, id) }
func shareHashKey(versionID, node string) []byte { return state.Key(tableShareHash, versionID, node) }
func readerKey(lockboxID, reader string) []byte  { return state.Key(tableReader, lockboxID, reader) }
func requestKey(id string) []byte                { return state.Key(tableRequest, id) }
func resultKey(requestID, node string) []byte    { return state.Key(tableResult, requestID, node) }
func challengeKey(requestID, node string) []byte { return state.Key(tableChallenge, requestID, node) }
func activityKey(lockboxID, node string) []byte  { return state.Key(tableActivity, lockboxID, node) }
func membershipKey(node string) []byte           { return state.Key(tableMembership, node) }
func stakeKey(owner string) []byte               { return state.Key(tableStake, owner) }
func depositKey(lockboxID, node string) []byte   { return state.Key(tableDeposit, lockboxID, node) }
