package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	lerrors "lockboxchain/core/errors"
)

func TestKeysetPredicates(t *testing.T) {
	cases := []struct {
		name    string
		guard   Guard
		signers []string
		want    bool
	}{
		{"all satisfied", KeysetGuard(PredKeysAll, "a", "b"), []string{"a", "b"}, true},
		{"all missing one", KeysetGuard(PredKeysAll, "a", "b"), []string{"a"}, false},
		{"any one", KeysetGuard(PredKeysAny, "a", "b"), []string{"b"}, true},
		{"any none", KeysetGuard(PredKeysAny, "a", "b"), []string{"c"}, false},
		{"two of three", KeysetGuard(PredKeys2, "a", "b", "c"), []string{"a", "c"}, true},
		{"one of three", KeysetGuard(PredKeys2, "a", "b", "c"), []string{"c"}, false},
		{"default predicate", KeysetGuard("", "a"), []string{"a"}, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tx := newTx(nil, tc.signers, 0, 0)
			require.Equal(t, tc.want, tx.IsAuthorized(tc.guard))
		})
	}
}

func TestGuardValidate(t *testing.T) {
	require.NoError(t, KeysetGuard(PredKeysAll, "a").Validate())
	require.NoError(t, CapabilityGuard("lockbox.escrow", "r1").Validate())
	require.Error(t, KeysetGuard(PredKeysAll).Validate())
	require.Error(t, KeysetGuard(PredKeys2, "a").Validate())
	require.Error(t, KeysetGuard("keys-17", "a").Validate())
	require.Error(t, Guard{Kind: GuardKeyset, Keys: []string{"a", "a"}, Pred: PredKeysAny}.Validate())
	require.Error(t, CapabilityGuard("", "x").Validate())
	require.Error(t, Guard{}.Validate())
}

func TestGuardEqualIgnoresKeyOrder(t *testing.T) {
	require.True(t, KeysetGuard(PredKeysAny, "b", "a").Equal(KeysetGuard(PredKeysAny, "a", "b")))
	require.False(t, KeysetGuard(PredKeysAny, "a").Equal(KeysetGuard(PredKeysAll, "a")))
	require.False(t, CapabilityGuard("x", "1").Equal(CapabilityGuard("x", "2")))
}

func TestCapabilityScopedToCall(t *testing.T) {
	guard := CapabilityGuard("lockbox.escrow", "req-1")
	tx := newTx(nil, []string{"anyone"}, 0, 0)

	require.False(t, tx.IsAuthorized(guard))
	require.ErrorIs(t, tx.EnforceAuthorized("debit", guard), lerrors.ErrAuthorization)

	err := tx.WithCapability("lockbox.escrow", "req-1", func() error {
		require.True(t, tx.IsAuthorized(guard))
		require.False(t, tx.IsAuthorized(CapabilityGuard("lockbox.escrow", "req-2")))
		return tx.WithCapability("lockbox.escrow", "req-1", func() error {
			require.True(t, tx.IsAuthorized(guard))
			return nil
		})
	})
	require.NoError(t, err)
	require.False(t, tx.IsAuthorized(guard), "grant must be revoked after the call")
}

func TestConsumeNonce(t *testing.T) {
	x := newTestExecutor(t)
	ctx := context.Background()

	_, err := x.Execute(ctx, "n", []string{"alice"}, func(tx *Tx) error {
		return tx.ConsumeNonce("alice", 1)
	})
	require.NoError(t, err)

	_, err = x.Execute(ctx, "n", []string{"alice"}, func(tx *Tx) error {
		return tx.ConsumeNonce("alice", 1)
	})
	require.ErrorIs(t, err, lerrors.ErrAlreadyDone)

	_, err = x.Execute(ctx, "n", []string{"alice"}, func(tx *Tx) error {
		return tx.ConsumeNonce("alice", 0)
	})
	require.ErrorIs(t, err, lerrors.ErrInvariant)

	_, err = x.Execute(ctx, "n", []string{"alice"}, func(tx *Tx) error {
		return tx.ConsumeNonce("alice", 5)
	})
	require.NoError(t, err)

	require.NoError(t, x.View(ctx, func(tx *Tx) error {
		last, err := tx.LastNonce("alice")
		require.Equal(t, uint64(5), last)
		return err
	}))
}
