package bridgeconfig_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgefleet/bridgefleet/pkg/services/bridgeconfig"
)

func newService(t *testing.T) *bridgeconfig.ConfigService {
	t.Helper()
	dir := t.TempDir()
	svc := bridgeconfig.NewConfigService(
		slog.Default(),
		filepath.Join(dir, "serialbridge.json"),
		filepath.Join(dir, "backups"),
	)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "backups"), 0o755))
	return svc
}

func TestValidate(t *testing.T) {
	assert.NoError(t, bridgeconfig.Validate([]byte(`{"deviceId": "bridge-01", "port": "/dev/ttyUSB0"}`)))

	assert.Error(t, bridgeconfig.Validate([]byte(`not json`)))
	assert.Error(t, bridgeconfig.Validate([]byte(`{"port": "/dev/ttyUSB0"}`)))
	assert.Error(t, bridgeconfig.Validate([]byte(`{"deviceId": ""}`)))
	assert.Error(t, bridgeconfig.Validate([]byte(`{"deviceId": 42}`)))
}

func TestReplaceAndRead(t *testing.T) {
	svc := newService(t)
	body := []byte(`{"deviceId": "bridge-01"}`)

	require.NoError(t, svc.Replace(body))

	got, err := svc.Read()
	require.NoError(t, err)
	assert.Equal(t, body, got)

	// First write has nothing to back up.
	backups, err := svc.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestReplace_RejectsInvalidDocument(t *testing.T) {
	svc := newService(t)

	require.Error(t, svc.Replace([]byte(`{"port": "/dev/ttyUSB0"}`)))

	_, err := svc.Read()
	assert.True(t, os.IsNotExist(err))
}

func TestReplace_BacksUpPreviousConfig(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.Replace([]byte(`{"deviceId": "bridge-01", "baud": 9600}`)))
	require.NoError(t, svc.Replace([]byte(`{"deviceId": "bridge-01", "baud": 115200}`)))

	backups, err := svc.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
}

func TestReplace_IdenticalContentIsNoop(t *testing.T) {
	svc := newService(t)
	body := []byte(`{"deviceId": "bridge-01"}`)

	require.NoError(t, svc.Replace(body))
	require.NoError(t, svc.Replace(body))

	backups, err := svc.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestRestore(t *testing.T) {
	svc := newService(t)
	old := []byte(`{"deviceId": "bridge-01", "baud": 9600}`)
	newer := []byte(`{"deviceId": "bridge-01", "baud": 115200}`)

	require.NoError(t, svc.Replace(old))
	require.NoError(t, svc.Replace(newer))
	require.NoError(t, svc.Restore())

	got, err := svc.Read()
	require.NoError(t, err)
	assert.Equal(t, old, got)

	// The displaced document was backed up, so restore can be undone.
	backups, err := svc.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestRestore_NoBackups(t *testing.T) {
	svc := newService(t)
	assert.Error(t, svc.Restore())
}
