package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/perftest/internal/config"
	"github.com/roach88/perftest/internal/export"
	"github.com/roach88/perftest/internal/report"
	"github.com/roach88/perftest/internal/runid"
	"github.com/roach88/perftest/internal/store"
	"github.com/roach88/perftest/internal/testutil"
	"github.com/roach88/perftest/internal/uci"
	"github.com/roach88/perftest/internal/uci/ucitest"
)

const startpos = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const smokeCorpus = "# perft smoke\n" +
	startpos + " 1 20\n" +
	startpos + " 2 400\n"

func correctCounts() map[string]uint64 {
	return map[string]uint64{
		ucitest.Key(startpos, 1): 20,
		ucitest.Key(startpos, 2): 400,
	}
}

// harnessEnv is one CLI invocation wired to a scripted engine.
type harnessEnv struct {
	t      *testing.T
	engine *ucitest.Engine
	opts   *RootOptions

	mu       sync.Mutex
	launched []uci.ProcessConfig
}

func newHarnessEnv(t *testing.T, script ucitest.Script) *harnessEnv {
	t.Helper()
	env := &harnessEnv{t: t, engine: ucitest.New(script)}
	env.opts = &RootOptions{
		Launch: func(cfg uci.ProcessConfig) uci.Launcher {
			env.mu.Lock()
			defer env.mu.Unlock()
			env.launched = append(env.launched, cfg)
			return env.engine
		},
		BaseDir:   t.TempDir(),
		ConfigDir: t.TempDir(),
		Clock:     testutil.NewDeterministicClock(),
		RunIDs:    runid.NewFixedGenerator("run-cli"),
	}
	return env
}

func (e *harnessEnv) processConfig() uci.ProcessConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	require.Len(e.t, e.launched, 1)
	return e.launched[0]
}

func (e *harnessEnv) execute(args ...string) (stdout, stderr string, err error) {
	return e.executeContext(context.Background(), args...)
}

func (e *harnessEnv) executeContext(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := newRootCommand(e.opts)
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(ctx)
	return outBuf.String(), errBuf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

type jsonResponse struct {
	Status string         `json:"status"`
	Data   report.Summary `json:"data"`
	Error  *CLIError      `json:"error"`
	RunID  string         `json:"run_id"`
}

func decodeResponse(t *testing.T, stdout string) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "stdout: %s", stdout)
	return resp
}

func TestPerft_AllPass(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, _, err := env.execute(path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "EPD line 2 -> fen: "+startpos+" depth: 1 nodes: 20")
	assert.Contains(t, stdout, "PASS line 2 depth 1 nodes 20")
	assert.Contains(t, stdout, "PASS line 3 depth 2 nodes 400")
	assert.Contains(t, stdout, "2 passed, 0 failed, 0 skipped, 2 total")
	assert.NotContains(t, stdout, "Failed records")

	assert.Equal(t, []string{
		"uci",
		"position fen " + startpos,
		"perft 1 tt",
		"position fen " + startpos,
		"perft 2 tt",
	}, env.engine.Sent())
	assert.True(t, env.engine.Closed())
}

func TestPerft_MismatchExitsOne(t *testing.T) {
	counts := correctCounts()
	counts[ucitest.Key(startpos, 2)] = 401
	env := newHarnessEnv(t, ucitest.Script{Counts: counts})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, _, err := env.execute(path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 passed, 1 failed")

	assert.Contains(t, stdout, "FAIL line 3 depth 2 expected 400 got 401 (node_count_mismatch)")
	assert.Contains(t, stdout, "Failed records (1):")
	assert.Contains(t, stdout, "EPD line 3")
}

func TestPerft_TimeoutSkipsRemaining(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{
		Counts: correctCounts(),
		Hang:   map[string]bool{ucitest.Key(startpos, 1): true},
	})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, _, err := env.execute(path, "--timeout", "50ms")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "FAIL line 2 depth 1 expected 20 (timeout)")
	assert.Contains(t, stdout, "SKIP line 3 depth 2 (engine_faulted)")
	assert.Contains(t, stdout, "0 passed, 1 failed, 1 skipped, 2 total")
}

func TestPerft_QuietKeepsReportOnly(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, _, err := env.execute("-q", path)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "EPD line")
	assert.NotContains(t, stdout, "PASS line")
	assert.Contains(t, stdout, "2 passed, 0 failed, 0 skipped, 2 total")
}

func TestPerft_JSON(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, _, err := env.execute("--format", "json", path)
	require.NoError(t, err)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-cli", resp.RunID)
	assert.Nil(t, resp.Error)
	assert.True(t, resp.Data.OK)
	assert.Equal(t, 2, resp.Data.Passed)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Empty(t, resp.Data.Failures)
}

func TestPerft_JSONFailure(t *testing.T) {
	counts := correctCounts()
	counts[ucitest.Key(startpos, 1)] = 19
	env := newHarnessEnv(t, ucitest.Script{Counts: counts})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, _, err := env.execute("--format", "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRunFailed, resp.Error.Code)
	require.Len(t, resp.Data.Failures, 1)
	failure := resp.Data.Failures[0]
	assert.Equal(t, 2, failure.Line)
	assert.Equal(t, uint64(20), failure.Expected)
	require.NotNil(t, failure.Actual)
	assert.Equal(t, uint64(19), *failure.Actual)
}

func TestPerft_MissingCorpusNeverLaunches(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})

	_, _, err := env.execute(filepath.Join(t.TempDir(), "missing.epd"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "corpus not found")
	assert.Zero(t, env.engine.Launches())
}

func TestPerft_DefaultCorpusFromBaseDir(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})

	_, _, err := env.execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), filepath.Join(env.opts.BaseDir, config.DefaultCorpus))

	writeFile(t, env.opts.BaseDir, config.DefaultCorpus, smokeCorpus)
	_, _, err = env.execute()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.opts.BaseDir, config.DefaultEngine), env.processConfig().Path)
}

func TestPerft_MalformedCorpusNeverLaunches(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus+"not a record\n")

	stdout, _, err := env.execute("--format", "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Zero(t, env.engine.Launches())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeCorpusParse, resp.Error.Code)
}

func TestPerft_SpawnFailure(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{LaunchErr: &uci.SpawnError{Path: "build/byak", Err: os.ErrNotExist}})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	_, _, err := env.execute(path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to start engine")
}

func TestPerft_HandshakeFailure(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{
		SkipHandshake: true,
		Banner:        []string{"Byak by Alcides Schulz"},
	})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, _, err := env.execute("--format", "json", "--handshake-timeout", "50ms", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "engine handshake failed")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeHandshake, resp.Error.Code)
	assert.Contains(t, stdout, "Byak by Alcides Schulz")
}

func TestPerft_InterruptedExitsOne(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := env.executeContext(ctx, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPerft_ConfigFile(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	corpusDir := t.TempDir()
	writeFile(t, corpusDir, "perft.epd", smokeCorpus)
	writeFile(t, env.opts.ConfigDir, "perftest.yaml", strings.Join([]string{
		"engine: engines/byak",
		"engine_args: [\"-threads\", \"1\"]",
		"corpus: " + filepath.Join(corpusDir, "perft.epd"),
		"perft_timeout: 5s",
		"quiet: true",
	}, "\n")+"\n")

	stdout, _, err := env.execute()
	require.NoError(t, err)
	assert.NotContains(t, stdout, "PASS line", "quiet from the config file")

	launched := env.processConfig()
	assert.Equal(t, filepath.Join(env.opts.ConfigDir, "engines/byak"), launched.Path)
	assert.Equal(t, []string{"-threads", "1"}, launched.Args)
}

func TestPerft_FlagsOverrideConfigFile(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)
	cfgPath := writeFile(t, t.TempDir(), "custom.toml", "engine = \"engines/from-config\"\nquiet = true\n")

	stdout, _, err := env.execute("--config", cfgPath, "--engine", "/opt/byak", "--engine-arg", "-x", "--quiet=false", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "PASS line 2")

	launched := env.processConfig()
	assert.Equal(t, "/opt/byak", launched.Path)
	assert.Equal(t, []string{"-x"}, launched.Args)
}

func TestPerft_InvalidConfigFile(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)
	writeFile(t, env.opts.ConfigDir, "perftest.yaml", "engine: x\nthreads: 4\n")

	_, _, err := env.execute(path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Zero(t, env.engine.Launches())
}

func TestPerft_RecordsHistoryAndParquet(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	dir := t.TempDir()
	path := writeFile(t, dir, "perft.epd", smokeCorpus)
	dbPath := filepath.Join(dir, "history.db")
	parquetPath := filepath.Join(dir, "run.parquet")

	_, _, err := env.execute("--db", dbPath, "--parquet", parquetPath, path)
	require.NoError(t, err)

	s, err := store.Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.ReadRun(context.Background(), "run-cli")
	require.NoError(t, err)
	assert.Equal(t, path, run.Corpus)
	assert.Equal(t, 2, run.Passed)
	assert.True(t, testutil.Epoch.Equal(run.Started), "started is the first clock reading")

	rows, err := export.ReadParquet(parquetPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run-cli", rows[0].RunID)
}

func TestPerft_JSONStoreFailure(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	dir := t.TempDir()
	path := writeFile(t, dir, "perft.epd", smokeCorpus)
	dbPath := filepath.Join(dir, "missing", "history.db")

	stdout, _, err := env.execute("--format", "json", "--db", dbPath, path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "recording run in "+dbPath)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStore, resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Passed, "summary is still reported")
	assert.Equal(t, "run-cli", resp.RunID)
}

func TestPerft_ExportFailureTakesPrecedenceOverVerdict(t *testing.T) {
	counts := correctCounts()
	counts[ucitest.Key(startpos, 1)] = 19
	env := newHarnessEnv(t, ucitest.Script{Counts: counts})
	dir := t.TempDir()
	path := writeFile(t, dir, "perft.epd", smokeCorpus)
	parquetPath := filepath.Join(dir, "missing", "run.parquet")

	stdout, _, err := env.execute("--format", "json", "--parquet", parquetPath, path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, stdout)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeExport, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
}

func TestPerft_TextStoreFailureKeepsReport(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	dir := t.TempDir()
	path := writeFile(t, dir, "perft.epd", smokeCorpus)

	stdout, _, err := env.execute("-q", "--db", filepath.Join(dir, "missing", "history.db"), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "2 passed, 0 failed, 0 skipped, 2 total")
}

func TestPerft_JSONStepLinesGoToStderr(t *testing.T) {
	counts := correctCounts()
	counts[ucitest.Key(startpos, 2)] = 401
	env := newHarnessEnv(t, ucitest.Script{Counts: counts})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, stderr, err := env.execute("--format", "json", path)
	require.Error(t, err)

	assert.Contains(t, stderr, "EPD line 2 -> fen: "+startpos+" depth: 1 nodes: 20")
	assert.Contains(t, stderr, "PASS line 2 depth 1 nodes 20")
	assert.Contains(t, stderr, "FAIL line 3 depth 2 expected 400 got 401 (node_count_mismatch)")
	assert.NotContains(t, stdout, "PASS line")
	assert.Equal(t, ErrCodeRunFailed, decodeResponse(t, stdout).Error.Code)
}

func TestPerft_JSONQuietSilencesStderr(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, stderr, err := env.execute("--format", "json", "-q", path)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "PASS line")
	assert.Equal(t, "ok", decodeResponse(t, stdout).Status)
}

func TestPerft_VerboseLogsToStderr(t *testing.T) {
	env := newHarnessEnv(t, ucitest.Script{Counts: correctCounts()})
	path := writeFile(t, t.TempDir(), "perft.epd", smokeCorpus)

	stdout, stderr, err := env.execute("-v", "--format", "json", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Loaded 2 records")
	assert.Contains(t, stderr, "run started")
	assert.NotContains(t, stdout, "Loaded 2 records")
}

func TestSyncWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &syncWriter{w: buf}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, strings.Count(buf.String(), "line\n"))
}
