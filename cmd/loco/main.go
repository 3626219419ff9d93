// LocoBasic CLI - compiles and runs line-numbered BASIC programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/locobasic/compiler"
	"github.com/chazu/locobasic/config"
	"github.com/chazu/locobasic/server"
	"github.com/chazu/locobasic/store"
	"github.com/chazu/locobasic/syntaxcheck"

	_ "github.com/tliron/commonlog/simple"
)

const appName = "loco"

const version = "0.1.0"

var log = commonlog.GetLogger("locobasic.cli")

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "compile":
		os.Exit(cmdCompile(args, os.Stdout, os.Stderr))
	case "run":
		os.Exit(cmdRun(args, os.Stdin, os.Stdout, os.Stderr))
	case "check":
		os.Exit(cmdCheck(args, os.Stdout, os.Stderr))
	case "lsp":
		os.Exit(cmdLsp(args, os.Stderr))
	case "cache":
		os.Exit(cmdCache(args, os.Stdout, os.Stderr))
	case "version":
		fmt.Println(version)
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `LocoBasic %s

Usage:
  %s compile [options] <file.bas>     Print the generated script
  %s run [options] <file.bas>         Compile and run a program in the terminal
  %s check [options] <file.bas>...    Report compile and script syntax errors
  %s lsp [options]                    Start the language server on stdio
  %s cache stats|clear [options]      Inspect or empty the compile cache
  %s version                          Print the version

Common options: -config DIR, -strict, -v N, -log FILE
`, version, appName, appName, appName, appName, appName, appName)
}

// ---------------------------------------------------------------------------
// Common options
// ---------------------------------------------------------------------------

type commonFlags struct {
	configDir string
	strict    bool
	verbosity int
	logFile   string
	useCache  bool
}

func (c *commonFlags) register(fs *flag.FlagSet, withCache bool) {
	fs.StringVar(&c.configDir, "config", "", "Directory containing "+config.FileName+" (default: search upwards)")
	fs.BoolVar(&c.strict, "strict", false, "Accept upper-case keywords only")
	fs.IntVar(&c.verbosity, "v", 0, "Log verbosity (0 = errors only)")
	fs.StringVar(&c.logFile, "log", "", "Write logs to this file instead of stderr")
	if withCache {
		fs.BoolVar(&c.useCache, "cache", false, "Use the compile cache")
	}
}

// setup loads the configuration, lets explicitly set flags override it and
// configures logging.
func (c *commonFlags) setup(fs *flag.FlagSet, startDir string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if c.configDir != "" {
		cfg, err = config.Load(c.configDir)
	} else {
		cfg, err = config.FindAndLoad(startDir)
	}
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "strict":
			cfg.Compiler.Strict = c.strict
		case "v":
			cfg.Log.Verbosity = c.verbosity
		case "log":
			cfg.Log.File = c.logFile
		case "cache":
			cfg.Cache.Enabled = c.useCache
		}
	})

	var path *string
	if cfg.Log.File != "" {
		path = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, path)
	return cfg, nil
}

// compileFile compiles one source file, through the cache when enabled.
// Compile failures come back as the "ERROR: ..." text.
func compileFile(cfg *config.Config, file string) (string, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", file, err)
	}
	c := compiler.New(cfg.CompilerOptions())
	compile := func(src string) (string, error) {
		script, err := c.CompileScript(src)
		if err != nil {
			return "", errors.New(compiler.FormatError(err))
		}
		return script, nil
	}
	if !cfg.Cache.Enabled {
		return compile(string(src))
	}

	cache, err := store.Open(cfg.CachePath())
	if err != nil {
		return "", err
	}
	defer cache.Close()
	script, hit, err := cache.Compile(string(src), store.Variant(cfg.Compiler.Strict), compile)
	if err != nil {
		return "", err
	}
	log.Debugf("%s: cache hit %t", file, hit)
	return script, nil
}

func sourceDir(file string) string {
	if file == "" {
		return "."
	}
	return filepath.Dir(file)
}

// ---------------------------------------------------------------------------
// compile
// ---------------------------------------------------------------------------

func cmdCompile(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs, true)
	output := fs.String("o", "", "Write the script to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "usage: %s compile [options] <file.bas>\n", appName)
		return 2
	}
	file := fs.Arg(0)

	cfg, err := common.setup(fs, sourceDir(file))
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}
	script, err := compileFile(cfg, file)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s: %v\n", appName, file, err)
		return 1
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(script+"\n"), 0644); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", appName, err)
			return 1
		}
		return 0
	}
	fmt.Fprintln(stdout, script)
	return 0
}

// ---------------------------------------------------------------------------
// lsp
// ---------------------------------------------------------------------------

func cmdLsp(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("lsp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := common.setup(fs, ".")
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}

	checker := syntaxcheck.NewQueueChecker()
	defer checker.Close()
	srv := server.NewLSP(cfg.CompilerOptions(), checker)
	defer srv.Stop()
	if err := srv.Run(); err != nil {
		fmt.Fprintf(stderr, "%s: language server: %v\n", appName, err)
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// cache
// ---------------------------------------------------------------------------

func cmdCache(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || (fs.Arg(0) != "stats" && fs.Arg(0) != "clear") {
		fmt.Fprintf(stderr, "usage: %s cache stats|clear [options]\n", appName)
		return 2
	}
	cfg, err := common.setup(fs, ".")
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}

	cache, err := store.Open(cfg.CachePath())
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}
	defer cache.Close()

	if fs.Arg(0) == "clear" {
		if err := cache.Clear(); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", appName, err)
			return 1
		}
		return 0
	}
	entries, hits, err := cache.Stats()
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s: %d scripts, %d hits\n", cache.Path(), entries, hits)
	return 0
}
