package passphrase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("LOCKBOX_TEST_PASS", "correct horse")
	src := NewSource("LOCKBOX_TEST_PASS", "")
	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "correct horse", value)

	// Cached after the first call.
	t.Setenv("LOCKBOX_TEST_PASS", "changed")
	value, err = src.Get()
	require.NoError(t, err)
	require.Equal(t, "correct horse", value)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("LOCKBOX_TEST_PASS", "   ")
	_, err := NewSource("LOCKBOX_TEST_PASS", "").Get()
	require.ErrorContains(t, err, "set but empty")
}
