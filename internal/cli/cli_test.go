package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/persistence"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
	"github.com/GriffinCanCode/HeadUnit/backend/tests/helpers/testutil"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var savedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedStore(t *testing.T, records ...*types.Record) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "resumption.json")
	store := persistence.NewFileStore(path, false)
	require.NoError(t, store.Save(t.Context(), records))
	return path
}

func run(t *testing.T, path string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--backend", "file", "--path", path}, args...))
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestRecordsList(t *testing.T) {
	nav := testutil.CreateTestRecord(t, "nav", "d1", 101, savedAt)
	nav.Content.Commands = []types.Command{{CmdID: 1}, {CmdID: 2}}
	music := testutil.CreateTestRecord(t, "music", "d2", 102, savedAt)
	music.IgnitionCycles = 2
	path := seedStore(t, nav, music)

	out, err := run(t, path, "records", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "APP")
	assert.Contains(t, out, "nav")
	assert.Contains(t, out, "music")
	assert.Less(t, bytes.Index([]byte(out), []byte("music")), bytes.Index([]byte(out), []byte("nav")))

	out, err = run(t, path, "records", "list", "--device", "d1")
	require.NoError(t, err)
	assert.Contains(t, out, "nav")
	assert.NotContains(t, out, "music")
}

func TestRecordsListDefaultsToList(t *testing.T) {
	path := seedStore(t, testutil.CreateTestRecord(t, "nav", "d1", 101, savedAt))

	out, err := run(t, path, "records")
	require.NoError(t, err)
	assert.Contains(t, out, "nav")
}

func TestRecordsListJSON(t *testing.T) {
	rec := testutil.CreateTestRecord(t, "nav", "d1", 101, savedAt)
	rec.Content.SubMenus = []types.SubMenu{{MenuID: 10, MenuName: "Favorites"}}
	path := seedStore(t, rec)

	out, err := run(t, path, "--json", "records", "list")
	require.NoError(t, err)

	var parsed struct {
		Records []recordSummary `json:"records"`
	}
	require.NoError(t, sonic.UnmarshalString(out, &parsed))
	require.Len(t, parsed.Records, 1)
	assert.Equal(t, "nav", parsed.Records[0].PolicyAppID)
	assert.Equal(t, uint32(101), parsed.Records[0].HMIAppID)
	assert.Equal(t, types.HMILevelFull, parsed.Records[0].HMILevel)
	assert.Equal(t, 1, parsed.Records[0].SubMenus)
}

func TestRecordsListEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	out, err := run(t, path, "records", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No records saved.")
}

func TestRecordsShow(t *testing.T) {
	path := seedStore(t, testutil.CreateTestRecord(t, "nav", "d1", 101, savedAt))

	out, err := run(t, path, "records", "show", "nav", "d1")
	require.NoError(t, err)

	var rec types.Record
	require.NoError(t, sonic.UnmarshalString(out, &rec))
	assert.Equal(t, "h1", rec.HashID)
	assert.True(t, savedAt.Equal(rec.TimeStamp))

	_, err = run(t, path, "records", "show", "nav", "d2")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRecordsRemove(t *testing.T) {
	path := seedStore(t,
		testutil.CreateTestRecord(t, "nav", "d1", 101, savedAt),
		testutil.CreateTestRecord(t, "music", "d1", 102, savedAt),
	)

	out, err := run(t, path, "records", "remove", "nav", "d1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed record nav@d1")

	records, err := persistence.NewFileStore(path, false).Load(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "music", records[0].PolicyAppID)

	_, err = run(t, path, "records", "remove", "nav", "d1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	_, err = run(t, path, "records", "remove", "nav")
	assert.Error(t, err)
}

func TestIgnOffShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resumption.json")

	out, err := run(t, path, "ign-off", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "never recorded")

	store := persistence.NewFileStore(path, false)
	require.NoError(t, store.SetLastIgnOffTime(t.Context(), savedAt))

	out, err = run(t, path, "ign-off", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-05-01T12:00:00Z")

	out, err = run(t, path, "--json", "ign-off", "show")
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_ign_off":"2024-05-01T12:00:00Z"}`, out)
}

func TestUnknownBackend(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--backend", "etcd", "records", "list"})
	err := cmd.ExecuteContext(t.Context())
	assert.ErrorContains(t, err, "unknown storage backend")
}
