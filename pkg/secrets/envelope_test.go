package secrets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealUnsealRoundTrips(t *testing.T) {
	kek, _, err := GenerateKEK()
	require.NoError(t, err)

	ciphertext, err := seal("super-secret-token", kek)
	require.NoError(t, err)
	require.Contains(t, ciphertext, envelopePrefix)

	plain, err := unseal(ciphertext, kek)
	require.NoError(t, err)
	require.Equal(t, "super-secret-token", plain)
}

func TestUnsealRejectsWrongKEK(t *testing.T) {
	kek1, _, err := GenerateKEK()
	require.NoError(t, err)
	kek2, _, err := GenerateKEK()
	require.NoError(t, err)

	ciphertext, err := seal("super-secret-token", kek1)
	require.NoError(t, err)

	_, err = unseal(ciphertext, kek2)
	require.Error(t, err)
}

func TestUnsealRejectsForeignPrefix(t *testing.T) {
	kek, _, err := GenerateKEK()
	require.NoError(t, err)

	_, err = unseal("not-an-envelope", kek)
	require.Error(t, err)
}

func TestLoadKEKRoundTripsGeneratedIdentity(t *testing.T) {
	_, raw, err := GenerateKEK()
	require.NoError(t, err)

	loaded, err := LoadKEK(raw)
	require.NoError(t, err)
	require.NotEmpty(t, loaded.Recipient())
}

func TestLoadKEKRejectsEmpty(t *testing.T) {
	_, err := LoadKEK("")
	require.Error(t, err)
}
