// Command xqtsrun is a demonstration CLI for the XQTS test-case runner
// core: it loads a directory of YAML fixture test cases, seeds their
// dependency files into a resource cache, drives them through a Runner,
// and prints the resulting verdicts. It is not a conformant XQTS harness
// (catalog parsing is out of scope, per spec.md §1); it exists to
// exercise the dispatcher/assertcheck/engine stack end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shibukawa/xqtsrunner"
	"github.com/shibukawa/xqtsrunner/dispatcher"
	"github.com/shibukawa/xqtsrunner/engine"
	"github.com/shibukawa/xqtsrunner/engine/refengine"
	"github.com/shibukawa/xqtsrunner/resourcecache"
)

// loadEnvFiles loads a .env file from the current directory if present,
// the way the teacher's cmd/snapsql CLI does for database credentials.
func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	return nil
}

// Context carries global CLI flags through to each command's Run method.
type Context struct {
	Verbose bool
	logger  *zap.Logger
}

// RunCmd executes every fixture test case under Dir and reports verdicts.
type RunCmd struct {
	Dir         string `arg:"" help:"Directory of *.yaml fixture test cases."`
	CacheDSN    string `help:"SQLite DSN backing the resource cache." default:":memory:"`
	MailboxSize int    `help:"Runner mailbox buffer size." default:"64"`
}

func (cmd *RunCmd) Run(appCtx *Context) error {
	logger := appCtx.logger

	cases, err := loadCatalog(cmd.Dir)
	if err != nil {
		return err
	}

	logger.Info("loaded fixture catalog", zap.Int("cases", len(cases)), zap.String("dir", cmd.Dir))

	cache, err := resourcecache.OpenSQLiteCache(cmd.CacheDSN)
	if err != nil {
		return fmt.Errorf("opening resource cache: %w", err)
	}
	defer cache.Close()

	if err := seedDependencies(cache, cmd.Dir, cases); err != nil {
		return err
	}

	cfg := xqtsrunner.RunnerConfig{MailboxSize: cmd.MailboxSize}.Normalize()

	runner := dispatcher.New(cfg, cache, func() engine.Engine { return refengine.New() }, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runner.Run(ctx)

	for _, c := range cases {
		runner.Submit(c.ID, c.ID.TestSet, c.TestCase, nil)
	}

	return collectResults(logger, runner, len(cases))
}

// seedDependencies fetches each referenced environment file relative to
// dir and puts it into cache under the same path the test case declares,
// since this demo has no catalog-level resource fetcher of its own.
func seedDependencies(cache *resourcecache.SQLiteCache, dir string, cases []catalogTestCase) error {
	ctx := context.Background()
	seen := make(map[string]bool)

	for _, c := range cases {
		for _, path := range dependencyPaths(c.TestCase) {
			if seen[path] {
				continue
			}

			seen[path] = true

			b, err := os.ReadFile(filepath.Join(dir, path))
			if err != nil {
				return fmt.Errorf("reading dependency %q for %s: %w", path, c.ID, err)
			}

			if err := cache.Put(ctx, path, b); err != nil {
				return err
			}
		}
	}

	return nil
}

func dependencyPaths(tc xqtsrunner.TestCase) []string {
	var paths []string

	if tc.Test.IsPath() {
		paths = append(paths, tc.Test.Path)
	}

	if tc.Environment == nil {
		return paths
	}

	for _, s := range tc.Environment.Schemas {
		paths = append(paths, s.File)
	}

	for _, s := range tc.Environment.Sources {
		paths = append(paths, s.File)
	}

	for _, col := range tc.Environment.Collections {
		for _, s := range col.Sources {
			paths = append(paths, s.File)
		}
	}

	for _, s := range tc.Environment.Resources {
		paths = append(paths, s.File)
	}

	return paths
}

func collectResults(logger *zap.Logger, runner *dispatcher.Runner, want int) error {
	var (
		got     int
		pass    int
		failure int
	)

	timeout := time.After(30 * time.Second)

	for got < want {
		select {
		case running := <-runner.Running():
			logger.Debug("running test case", zap.String("id", running.ID.String()))
		case ran := <-runner.Ran():
			got++

			switch ran.Result.Verdict {
			case xqtsrunner.VerdictPass:
				pass++
				logger.Info("pass", zap.String("testSet", string(ran.Result.TestSet)), zap.String("testCase", string(ran.Result.TestCase)))
			case xqtsrunner.VerdictFailure:
				failure++
				logger.Warn("failure", zap.String("testSet", string(ran.Result.TestSet)), zap.String("testCase", string(ran.Result.TestCase)), zap.String("reason", ran.Result.Reason))
			case xqtsrunner.VerdictError:
				logger.Error("error", zap.String("testSet", string(ran.Result.TestSet)), zap.String("testCase", string(ran.Result.TestCase)), zap.Error(ran.Result.Cause))
			default:
				logger.Warn("assumption failed", zap.String("testSet", string(ran.Result.TestSet)), zap.String("testCase", string(ran.Result.TestCase)))
			}
		case <-timeout:
			return fmt.Errorf("timed out waiting for %d results, got %d", want, got)
		}
	}

	logger.Info("run complete", zap.Int("total", got), zap.Int("pass", pass), zap.Int("failure", failure))

	return nil
}

// CLI is the kong command tree, in the teacher's cmd/snapsql idiom.
var CLI struct {
	Verbose bool   `help:"Enable verbose logging." short:"v"`
	Run     RunCmd `cmd:"" help:"Run every fixture test case under a directory."`
}

func main() {
	if err := loadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	kctx := kong.Parse(&CLI)

	zapCfg := zap.NewProductionConfig()
	if CLI.Verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appCtx := &Context{Verbose: CLI.Verbose, logger: logger}

	if err := kctx.Run(appCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
