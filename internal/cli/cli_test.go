package cli

import (
	"bytes"
	"context"
	"flag"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FiskLee/stattracker"
	"github.com/FiskLee/stattracker/internal/rle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("stattracker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return ParseConfig(fs, args)
}

func run(t *testing.T, cmd string, st stattracker.Config, in string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := Run(context.Background(), Config{Command: cmd, Timeout: time.Minute}, st, strings.NewReader(in), &out, &errOut)
	return out.String(), err
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parse(t, "compress")
	require.NoError(t, err)
	assert.Equal(t, CmdCompress, cfg.Command)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.False(t, cfg.Verbose)
}

func TestParseConfigOverride(t *testing.T) {
	cfg, err := parse(t, "-timeout", "10s", "-v", "-status", "migrate")
	require.NoError(t, err)
	assert.Equal(t, CmdMigrate, cfg.Command)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.Status)
}

func TestParseConfigRejects(t *testing.T) {
	_, err := parse(t)
	assert.ErrorIs(t, err, ErrUsage)
	_, err = parse(t, "explode")
	assert.ErrorIs(t, err, ErrUsage)
	_, err = parse(t, "compress", "extra")
	assert.ErrorIs(t, err, ErrUsage)
	_, err = parse(t, "-nope", "compress")
	assert.Error(t, err)
}

func TestRunNilOutput(t *testing.T) {
	err := Run(context.Background(), Config{Command: CmdVersion}, stattracker.Config{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestRunVersion(t *testing.T) {
	out, err := run(t, CmdVersion, stattracker.Config{}, "")
	require.NoError(t, err)
	assert.Contains(t, out, stattracker.Version())
}

func TestRunRLE(t *testing.T) {
	out, err := run(t, CmdRLEEncode, stattracker.Config{}, "aaab\n")
	require.NoError(t, err)
	assert.Equal(t, "RLE1:3,97,1,98\n", out)

	out, err = run(t, CmdRLEDecode, stattracker.Config{}, "RLE1:3,97,1,98\n")
	require.NoError(t, err)
	assert.Equal(t, "aaab", out)

	_, err = run(t, CmdRLEDecode, stattracker.Config{}, "RLE1:3")
	assert.ErrorIs(t, err, rle.ErrMalformedStream)
}

func TestRunCompressDecompress(t *testing.T) {
	in := `{"playerId":"p1","name":"Ana","kills":12,"playtimeSeconds":3600}`
	payload, err := run(t, CmdCompress, stattracker.Config{}, in)
	require.NoError(t, err)
	assert.Contains(t, payload, `"~v~":1`)
	assert.NotContains(t, payload, "playtimeSeconds")

	out, err := run(t, CmdDecompress, stattracker.Config{}, payload+"\n")
	require.NoError(t, err)
	assert.Contains(t, out, `"playerId":"p1"`)
	assert.Contains(t, out, `"kills":12`)
	assert.Contains(t, out, `"playtimeSeconds":3600`)
}

func TestRunCompressRejectsGarbage(t *testing.T) {
	_, err := run(t, CmdCompress, stattracker.Config{}, "not json")
	assert.ErrorIs(t, err, stattracker.ErrDeserialization)
}

func TestRunMigrate(t *testing.T) {
	st := stattracker.Config{SQLitePath: filepath.Join(t.TempDir(), "stats.db")}

	out, err := run(t, CmdMigrate, st, "")
	require.NoError(t, err)
	assert.Equal(t, "applied 001_create_player_stats\napplied 002_index_player_stats_leaderboards\n", out)

	out, err = run(t, CmdMigrate, st, "")
	require.NoError(t, err)
	assert.Equal(t, "schema up to date\n", out)

	var buf, errOut bytes.Buffer
	err = Run(context.Background(), Config{Command: CmdMigrate, Status: true}, st, nil, &buf, &errOut)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "001_create_player_stats\t"))
}

func TestRunNeedsPersistence(t *testing.T) {
	for _, cmd := range []string{CmdMigrate, CmdExport, CmdImport} {
		_, err := run(t, cmd, stattracker.Config{}, "")
		assert.Error(t, err, cmd)
	}
}

func TestRunExportImport(t *testing.T) {
	ctx := context.Background()
	srcPath := filepath.Join(t.TempDir(), "src.db")
	src, err := stattracker.NewStore(stattracker.Config{SQLitePath: srcPath, AutoMigrate: true})
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		p := stattracker.NewPlayerStats(id, "Player "+id)
		p.RecordKill("pistol", true)
		require.NoError(t, src.Save(ctx, p))
	}
	require.NoError(t, src.Close())

	archive, err := run(t, CmdExport, stattracker.Config{SQLitePath: srcPath}, "")
	require.NoError(t, err)
	require.NotEmpty(t, archive)

	dstPath := filepath.Join(t.TempDir(), "dst.db")
	_, err = run(t, CmdImport, stattracker.Config{SQLitePath: dstPath}, archive)
	require.NoError(t, err)

	dst, err := stattracker.NewStore(stattracker.Config{SQLitePath: dstPath})
	require.NoError(t, err)
	defer dst.Close()
	n, err := dst.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	got, err := dst.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Headshots)
}
