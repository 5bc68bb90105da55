package cli

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-stake/pkg/keystore"
)

func TestResolveAccount(t *testing.T) {
	addr := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	got, err := resolveAccount(addr, "")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(addr), got)

	// Well-known development key for account 0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf.
	got, err = resolveAccount("", "0x0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"), got)

	_, err = resolveAccount(addr, "01")
	require.Error(t, err)
	_, err = resolveAccount("", "")
	require.Error(t, err)
	_, err = resolveAccount("nope", "")
	require.Error(t, err)
	_, err = resolveAccount("", "zz")
	require.Error(t, err)
}

func TestSaveToKeystore(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	key := "0x0000000000000000000000000000000000000000000000000000000000000001"

	path, err := saveToKeystore(dir, key, "issued-token", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, keystore.FileName), path)

	ks, err := keystore.NewKeystore(keystore.Config{DirPath: dir})
	require.NoError(t, err)
	token, savedAt, err := ks.LoadToken()
	require.NoError(t, err)
	require.Equal(t, "issued-token", token)
	require.True(t, now.Equal(savedAt))

	signer, err := ks.LoadPrivateKey()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"), crypto.PubkeyToAddress(signer.PublicKey))

	// A token issued by address alone keeps the stored key.
	_, err = saveToKeystore(dir, "", "second-token", now)
	require.NoError(t, err)
	_, err = ks.LoadPrivateKey()
	require.NoError(t, err)

	_, err = saveToKeystore(dir, "zz", "third-token", now)
	require.ErrorContains(t, err, "failed to save private key")
}
