package svid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/ids"
)

func testMinter() *Minter {
	return NewMinter(ids.NewSecret("a-very-secret-signing-key-0123456789"))
}

func TestMintThenVerifyWeaverSVIDRoundTrips(t *testing.T) {
	m := testMinter()
	weaverID := ids.NewWeaverID()

	token, err := m.MintWeaverSVID(weaverID, ids.OrgID("org-1"), "T-abc", time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifyWeaverSVID(token)
	require.NoError(t, err)
	require.Equal(t, weaverID, claims.WeaverID)
	require.Equal(t, ids.OrgID("org-1"), claims.OrgID)
	require.Equal(t, "T-abc", claims.ThreadID)
}

func TestVerifyWeaverSVIDRejectsExpired(t *testing.T) {
	m := testMinter()
	token, err := m.MintWeaverSVID(ids.NewWeaverID(), ids.OrgID("org-1"), "", -time.Minute)
	require.NoError(t, err)

	_, err = m.VerifyWeaverSVID(token)
	require.Error(t, err)
}

func TestVerifyWeaverSVIDRejectsWrongKey(t *testing.T) {
	m1 := testMinter()
	m2 := NewMinter(ids.NewSecret("a-totally-different-signing-key"))

	token, err := m1.MintWeaverSVID(ids.NewWeaverID(), ids.OrgID("org-1"), "", time.Hour)
	require.NoError(t, err)

	_, err = m2.VerifyWeaverSVID(token)
	require.Error(t, err)
}

func TestVerifyWeaverSVIDRejectsSCIMToken(t *testing.T) {
	m := testMinter()
	scimToken, err := m.MintSCIMToken(ids.OrgID("org-1"), time.Hour)
	require.NoError(t, err)

	_, err = m.VerifyWeaverSVID(scimToken)
	require.Error(t, err)
}

func TestMintThenVerifySCIMTokenRoundTrips(t *testing.T) {
	m := testMinter()
	token, err := m.MintSCIMToken(ids.OrgID("org-42"), time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifySCIMToken(token)
	require.NoError(t, err)
	require.Equal(t, ids.OrgID("org-42"), claims.OrgID)
}

func TestVerifySCIMTokenRejectsWeaverToken(t *testing.T) {
	m := testMinter()
	weaverToken, err := m.MintWeaverSVID(ids.NewWeaverID(), ids.OrgID("org-1"), "", time.Hour)
	require.NoError(t, err)

	_, err = m.VerifySCIMToken(weaverToken)
	require.Error(t, err)
}
