// includecheck finds violations of include-what-you-use policy in C/C++
// sources.
//
// It scans a translation unit, finding referenced symbols and the headers
// providing them:
//   - if a #include directive satisfies no reference, removal is suggested
//     (don't include what you don't use!)
//   - if a reference is satisfied only by indirect #include dependencies,
//     that is reported too.
//
// This tool doesn't fix broken code where missing #includes prevent parsing.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/phobologic/includecheck/internal/analyze"
	"github.com/phobologic/includecheck/internal/config"
	"github.com/phobologic/includecheck/internal/diagnose"
	"github.com/phobologic/includecheck/internal/discover"
	"github.com/phobologic/includecheck/internal/parse"
	"github.com/phobologic/includecheck/internal/record"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(os.Args[2:], os.Stdout, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	code, err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

// stringList collects a repeatable flag value.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func run(args []string, stdout, stderr io.Writer) (int, error) {
	fs := flag.NewFlagSet("includecheck", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		satisfied    bool
		recoverMode  bool
		analyzeStd   bool
		members      bool
		operators    bool
		construction bool
		includeDirs  stringList
		configPath   string
		verbose      bool
		showVersion  bool
	)

	fs.BoolVar(&satisfied, "satisfied", false, "show references whose header is included, and used includes")
	fs.BoolVar(&recoverMode, "recover", true, "suppress further errors for the same missing header")
	fs.BoolVar(&analyzeStd, "stdlib", false, "standard-library analysis setting (unmatched angle-bracket includes are reported with or without it)")
	fs.BoolVar(&members, "members", false, "count member accesses as references")
	fs.BoolVar(&operators, "operators", false, "count overloaded operator calls as references")
	fs.BoolVar(&construction, "construction", false, "count unnamed constructions as references to the type")
	fs.Var(&includeDirs, "I", "directory to search for included files (repeatable)")
	fs.StringVar(&configPath, "config", "", "configuration file path (default: .includecheck.toml next to the target)")
	fs.BoolVar(&verbose, "v", false, "verbose logging")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return 0, err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "includecheck %s\n", version)
		return 0, nil
	}

	logger := log.New(stderr)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}

	target := "."
	var files []string
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}
	info, err := os.Stat(target)
	if err != nil {
		return 0, fmt.Errorf("target path: %w", err)
	}
	if info.IsDir() {
		rels, err := discover.Sources(target)
		if err != nil {
			return 0, fmt.Errorf("discovering sources: %w", err)
		}
		if len(rels) == 0 {
			return 0, fmt.Errorf("no C/C++ sources found under %s", target)
		}
		for _, rel := range rels {
			files = append(files, filepath.Join(target, rel))
		}
	} else {
		files = append(files, target)
		for _, extra := range fs.Args()[1:] {
			files = append(files, extra)
		}
	}

	if configPath == "" {
		configPath = config.FindFor(target)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, err
	}

	policy := record.Policy{
		Construction: construction || cfg.Policy.Construction,
		Members:      members || cfg.Policy.Members,
		Operators:    operators || cfg.Policy.Operators,
	}
	opts := diagnose.Options{
		ShowSatisfied: satisfied,
		Recover:       recoverMode,
		AnalyzeStdlib: analyzeStd || cfg.AnalyzeStdlib,
	}
	dirs := append([]string{}, includeDirs...)
	dirs = append(dirs, cfg.IncludeDirs...)

	errors := 0
	for _, file := range files {
		logger.Debug("analyzing", "file", file)
		n, err := analyzeFile(file, dirs, policy, opts, logger, stdout)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", file, err)
		}
		errors += n
	}
	if errors > 0 {
		return 1, nil
	}
	return 0, nil
}

// analyzeFile runs the record and analyze phases over one translation unit
// and prints its diagnostics. It returns the number of errors reported.
func analyzeFile(path string, includeDirs []string, policy record.Policy, opts diagnose.Options, logger *log.Logger, out io.Writer) (int, error) {
	pp := parse.New(parse.Options{IncludeDirs: includeDirs, Logger: logger})
	ctx := record.NewContext(policy, pp)

	var recordedPP record.RecordedPP
	var recordedAST record.RecordedAST
	pp.SetObservers(recordedPP.Record(ctx), recordedAST.Record(ctx))

	if err := pp.Process(path); err != nil {
		return 0, err
	}

	// Parsing is done; recorded state is frozen and the analysis is a pure
	// function of it.
	reporter := diagnose.NewReporter(ctx, &recordedPP.Includes, opts, out)
	analyze.WalkUsed(ctx, recordedAST.TopLevelDecls, recordedPP.MacroReferences, reporter.Reference)
	reporter.Finish()
	return reporter.ErrorCount(), nil
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-I": true, "--I": true,
	"-config": true, "--config": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
