package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateKeyPair(t *testing.T) {
	pair, err := GenerateProbeKeyPair()
	require.NoError(t, err)
	require.True(t, ValidateKeyPair(pair.Public, pair.Private))

	other, err := GenerateProbeKeyPair()
	require.NoError(t, err)
	require.False(t, ValidateKeyPair(pair.Public, other.Private))
	require.False(t, ValidateKeyPair(pair.Public[:31], pair.Private))
	require.False(t, ValidateKeyPair(nil, nil))
}

func TestSealOpenRoundTrip(t *testing.T) {
	pair, err := GenerateProbeKeyPair()
	require.NoError(t, err)
	share := []byte("share-3-of-5")

	sealed, err := SealProbe(pair.Public, share)
	require.NoError(t, err)
	require.Len(t, sealed.Nonce, ProbeNonceSize)
	require.Len(t, sealed.MAC, ProbeMACSize)
	require.Len(t, sealed.Ciphertext, ProbeKeySize+len(share))

	opened, err := OpenProbe(pair.Public, pair.Private, *sealed)
	require.NoError(t, err)
	require.Equal(t, share, opened)
	require.Equal(t, ShareHash(share), ProbeShareHash(pair.Public, pair.Private, *sealed))
}

func TestOpenProbeRejectsTampering(t *testing.T) {
	pair, err := GenerateProbeKeyPair()
	require.NoError(t, err)
	sealed, err := SealProbe(pair.Public, []byte("payload"))
	require.NoError(t, err)

	tampered := *sealed
	tampered.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	tampered.Ciphertext[len(tampered.Ciphertext)-1] ^= 0xff
	_, err = OpenProbe(pair.Public, pair.Private, tampered)
	require.Error(t, err)
	require.Equal(t, ShareHash(nil), ProbeShareHash(pair.Public, pair.Private, tampered))

	wrong, err := GenerateProbeKeyPair()
	require.NoError(t, err)
	_, err = OpenProbe(wrong.Public, wrong.Private, *sealed)
	require.Error(t, err)

	_, err = OpenProbe(pair.Public, pair.Private, SealedProbe{Ciphertext: []byte{1}})
	require.Error(t, err)
}

func TestShareHashIsStable(t *testing.T) {
	// BLAKE3 of the empty input.
	require.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", ShareHash(nil))
	require.Len(t, ShareHash([]byte("x")), 64)
}

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	addr := key.PubKey().Address()
	encoded := addr.String()
	require.Contains(t, encoded, AccountPrefix+"1")

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr.Bytes(), decoded.Bytes())
	require.True(t, IsAddress(encoded))
	require.False(t, IsAddress("not-an-address"))

	viaRaw, err := AddressString(addr.Bytes())
	require.NoError(t, err)
	require.Equal(t, encoded, viaRaw)
	_, err = AddressString([]byte{1, 2, 3})
	require.Error(t, err)
}
