package lockbox

import (
	"math/big"
	"strconv"
	"strings"

	"lockboxchain/core/types"
)

const (
	EventTypeLockboxCreated        = "lockbox.created"
	EventTypeVersionPending        = "lockbox.version.pending"
	EventTypeShareAcknowledged     = "lockbox.share.acknowledged"
	EventTypeVersionPromoted       = "lockbox.version.promoted"
	EventTypeVersionPendingCleared = "lockbox.version.pending_cleared"
	EventTypeReaderAdded           = "lockbox.reader.added"
	EventTypeReaderRemoved         = "lockbox.reader.removed"
	EventTypeRequestOpened         = "lockbox.request.opened"
	EventTypeResultPosted          = "lockbox.result.posted"
	EventTypeRequestSettled        = "lockbox.request.settled"
	EventTypeChallengeMissing      = "lockbox.challenge.missing"
	EventTypeChallengeInvalid      = "lockbox.challenge.invalid"
	EventTypeSlashed               = "lockbox.slashed"
	EventTypeStakeCreated          = "lockbox.stake.created"
	EventTypeStakeIncreased        = "lockbox.stake.increased"
	EventTypeStakeDecreased        = "lockbox.stake.decreased"
	EventTypeDepositCreated        = "lockbox.deposit.created"
	EventTypeDepositWithdrawn      = "lockbox.deposit.withdrawn"
	EventTypeLeaveInitiated        = "lockbox.leave.initiated"
	EventTypeLeaveForced           = "lockbox.leave.forced"
)

// NewLockboxCreatedEvent returns the payload for a newly created lockbox.
func NewLockboxCreatedEvent(lb *Lockbox) *types.Event {
	return &types.Event{Type: EventTypeLockboxCreated, Attributes: map[string]string{
		"lockboxId": lb.ID,
		"writer":    lb.Writer,
		"owner":     lb.Owner.String(),
	}}
}

// NewVersionPendingEvent returns the payload emitted when update-lockbox
// installs a pending version.
func NewVersionPendingEvent(v *Version) *types.Event {
	return &types.Event{Type: EventTypeVersionPending, Attributes: versionAttributes(v)}
}

// NewVersionPromotedEvent returns the payload emitted when the pending version
// becomes current.
func NewVersionPromotedEvent(lockboxID, previous string, v *Version) *types.Event {
	attrs := versionAttributes(v)
	attrs["lockboxId"] = lockboxID
	attrs["previousVersionId"] = previous
	return &types.Event{Type: EventTypeVersionPromoted, Attributes: attrs}
}

func NewShareAcknowledgedEvent(lockboxID, versionID, node string, promoted bool) *types.Event {
	return &types.Event{Type: EventTypeShareAcknowledged, Attributes: map[string]string{
		"lockboxId": lockboxID,
		"versionId": versionID,
		"node":      node,
		"promoted":  strconv.FormatBool(promoted),
	}}
}

func NewPendingClearedEvent(lockboxID, versionID string) *types.Event {
	return &types.Event{Type: EventTypeVersionPendingCleared, Attributes: map[string]string{
		"lockboxId": lockboxID,
		"versionId": versionID,
	}}
}

func NewReaderEvent(eventType, lockboxID, reader string) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"lockboxId": lockboxID,
		"reader":    reader,
	}}
}

func NewRequestOpenedEvent(req *Request) *types.Event {
	return &types.Event{Type: EventTypeRequestOpened, Attributes: map[string]string{
		"requestId":    req.ID,
		"lockboxId":    req.LockboxID,
		"versionId":    req.VersionID,
		"reader":       req.Reader,
		"price":        amountString(req.Price),
		"escrowed":     amountString(req.Escrowed),
		"ownerRequest": strconv.FormatBool(req.ReaderIsOwner),
		"sharingGroup": strings.Join(req.SharingGroup, ","),
		"openedAt":     strconv.FormatUint(req.OpenedAt, 10),
	}}
}

func NewResultPostedEvent(req *Request, node string, fee *big.Int) *types.Event {
	return &types.Event{Type: EventTypeResultPosted, Attributes: map[string]string{
		"requestId": req.ID,
		"lockboxId": req.LockboxID,
		"node":      node,
		"fee":       amountString(fee),
	}}
}

func NewRequestSettledEvent(req *Request, writerPaid *big.Int) *types.Event {
	return &types.Event{Type: EventTypeRequestSettled, Attributes: map[string]string{
		"requestId":  req.ID,
		"lockboxId":  req.LockboxID,
		"writer":     req.Writer,
		"writerPaid": amountString(writerPaid),
	}}
}

func NewChallengeEvent(req *Request, node string, c *Challenge) *types.Event {
	eventType := EventTypeChallengeMissing
	if c.Kind == ChallengeInvalid {
		eventType = EventTypeChallengeInvalid
	}
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"requestId": req.ID,
		"lockboxId": req.LockboxID,
		"reader":    req.Reader,
		"node":      node,
		"slashed":   strconv.FormatBool(c.Slashed),
	}}
}

func NewSlashedEvent(req *Request, node string, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeSlashed, Attributes: map[string]string{
		"requestId": req.ID,
		"lockboxId": req.LockboxID,
		"node":      node,
		"reader":    req.Reader,
		"amount":    amountString(amount),
	}}
}

func NewStakeEvent(eventType, owner string, amount, balance *big.Int) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"owner":   owner,
		"amount":  amountString(amount),
		"balance": amountString(balance),
	}}
}

func NewDepositEvent(eventType, lockboxID, node string, amount *big.Int) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"lockboxId": lockboxID,
		"node":      node,
		"amount":    amountString(amount),
	}}
}

func NewLeaveEvent(eventType, lockboxID, node string, group []string) *types.Event {
	attrs := map[string]string{
		"lockboxId": lockboxID,
		"node":      node,
	}
	if len(group) > 0 {
		attrs["sharingGroup"] = strings.Join(group, ",")
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func versionAttributes(v *Version) map[string]string {
	return map[string]string{
		"lockboxId":      v.LockboxID,
		"versionId":      v.ID,
		"price":          amountString(v.Price),
		"depositAmount":  amountString(v.DepositAmount),
		"contentPointer": v.ContentPointer,
		"sharingGroup":   strings.Join(v.SharingGroup, ","),
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
