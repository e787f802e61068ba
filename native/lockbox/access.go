package lockbox

import (
	"strings"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
)

type readerAuth struct {
	Authorized bool
}

// AddReader authorises reader to open requests. Owner only.
func (e *Engine) AddReader(tx *ledger.Tx, lockboxID, reader string) error {
	return e.setReader(tx, "add-reader", lockboxID, reader, true)
}

// RemoveReader revokes reader. Owner only.
func (e *Engine) RemoveReader(tx *ledger.Tx, lockboxID, reader string) error {
	return e.setReader(tx, "remove-reader", lockboxID, reader, false)
}

func (e *Engine) setReader(tx *ledger.Tx, op, lockboxID, reader string, authorized bool) error {
	if _, err := e.loadParams(tx, op); err != nil {
		return err
	}
	if strings.TrimSpace(reader) == "" {
		return lerrors.Invariant(op, "reader required")
	}
	lb, err := loadLockbox(tx, op, lockboxID)
	if err != nil {
		return err
	}
	if err := tx.EnforceAuthorized(op, lb.Owner); err != nil {
		return err
	}
	if err := putRow(tx, readerKey(lockboxID, reader), &readerAuth{Authorized: authorized}); err != nil {
		return err
	}
	eventType := EventTypeReaderRemoved
	if authorized {
		eventType = EventTypeReaderAdded
	}
	tx.Emit(NewReaderEvent(eventType, lockboxID, reader))
	return nil
}

func readerAuthorized(tx *ledger.Tx, lockboxID, reader string) (bool, error) {
	var auth readerAuth
	if _, err := getRow(tx, readerKey(lockboxID, reader), &auth); err != nil {
		return false, err
	}
	return auth.Authorized, nil
}
