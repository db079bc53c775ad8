package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/raymyers/ralph-cpp/pkg/cpp"
	"github.com/raymyers/ralph-cpp/pkg/preproc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "0.1.0"

// ErrPreprocessing indicates that errors were reported while preprocessing.
var ErrPreprocessing = errors.New("preprocessing failed")

// cliFlags holds the values of the command line flags.
type cliFlags struct {
	defines        []string
	undefines      []string
	includePaths   []string
	quotePaths     []string
	systemPaths    []string
	frameworkPaths []string
	forceIncludes  []string
	warnings       []string
	noWarnings     bool
	keepComments   bool
	noLineMarkers  bool
	trigraphs      bool
	noDigraphs     bool
	pragmaOnce     bool
	debug          bool
	useExternalPP  bool
	output         string
	configFile     string
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Normalize cpp-style single-dash flags to double-dash for pflag compatibility
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// singleDashFlags lists long flags that cpp spells with a single dash.
var singleDashFlags = []string{"iquote", "isystem", "include", "trigraphs"}

// normalizeFlags converts cpp-style single-dash flags like -isystem to --isystem
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, flagName := range singleDashFlags {
			if arg == "-"+flagName || strings.HasPrefix(arg, "-"+flagName+"=") {
				result[i] = "-" + arg
				break
			}
		}
	}
	return result
}

// wordSepNormalizeFunc accepts include_dir as a spelling of include-dir.
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	f := &cliFlags{}
	rootCmd := &cobra.Command{
		Use:   "ralph-cpp [file|glob...]",
		Short: "ralph-cpp is a standalone C preprocessor",
		Long: `ralph-cpp preprocesses C source files: it expands macros, evaluates
conditional compilation, resolves #include directives and writes the
resulting token stream. Inputs may be glob patterns such as src/**/*.c;
without inputs it reads standard input.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPreprocess(cmd, f, args, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.Flags()
	flags.SetNormalizeFunc(wordSepNormalizeFunc)
	flags.StringArrayVarP(&f.defines, "define", "D", nil, "Define macro (NAME or NAME=VALUE)")
	flags.StringArrayVarP(&f.undefines, "undefine", "U", nil, "Undefine macro")
	flags.StringArrayVarP(&f.includePaths, "include-dir", "I", nil, "Add directory to include search path")
	flags.StringArrayVar(&f.quotePaths, "iquote", nil, "Add directory to the search path for #include \"file\"")
	flags.StringArrayVar(&f.systemPaths, "isystem", nil, "Add directory to system include search path")
	flags.StringArrayVarP(&f.frameworkPaths, "framework", "F", nil, "Add framework directory")
	flags.StringArrayVar(&f.forceIncludes, "include", nil, "Process file before the inputs")
	flags.StringArrayVarP(&f.warnings, "warning", "W", nil, "Enable warning (trigraphs, import, undef, endif-labels, error, all, no-<name>)")
	flags.BoolVarP(&f.noWarnings, "no-warnings", "w", false, "Suppress all warnings")
	flags.BoolVarP(&f.keepComments, "keep-comments", "C", false, "Keep comments in the output")
	flags.BoolVarP(&f.noLineMarkers, "no-line-markers", "P", false, "Do not generate # N \"file\" line markers")
	flags.BoolVar(&f.trigraphs, "trigraphs", false, "Translate trigraph sequences")
	flags.BoolVar(&f.noDigraphs, "no-digraphs", false, "Do not recognise digraphs")
	flags.BoolVar(&f.pragmaOnce, "pragma-once", false, "Honour #pragma once and include guards")
	flags.BoolVar(&f.debug, "debug", false, "Trace preprocessor operation on stderr")
	flags.BoolVar(&f.useExternalPP, "external-cpp", false, "Use external C preprocessor instead of internal")
	flags.StringVarP(&f.output, "output", "o", "", "Write output to file instead of stdout")
	flags.StringVar(&f.configFile, "config", "", "Load options from a YAML file")

	return rootCmd
}

// newLogger creates the logger for tracing, on errOut.
func newLogger(errOut io.Writer, debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(errOut)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// buildPreprocessorOptions creates preproc.Options from the config file,
// if any, with the CLI flags layered on top.
func buildPreprocessorOptions(f *cliFlags) (*preproc.Options, error) {
	opts := &preproc.Options{}
	if f.configFile != "" {
		loaded, err := preproc.LoadConfig(f.configFile)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	flagOpts := &preproc.Options{
		Defines:        f.defines,
		Undefines:      f.undefines,
		IncludePaths:   f.includePaths,
		QuotePaths:     f.quotePaths,
		SystemPaths:    f.systemPaths,
		FrameworkPaths: f.frameworkPaths,
		ForceIncludes:  f.forceIncludes,
		Warnings:       f.warnings,
		KeepComments:   f.keepComments,
		LineMarkers:    true, // Include line markers like traditional cpp
		NoDigraphs:     f.noDigraphs,
		UseExternal:    f.useExternalPP,
	}
	if f.trigraphs {
		flagOpts.Features = append(flagOpts.Features, cpp.FeatureTrigraphs.String())
	}
	if f.pragmaOnce {
		flagOpts.Features = append(flagOpts.Features, cpp.FeaturePragmaOnce.String())
	}
	if f.debug {
		flagOpts.Features = append(flagOpts.Features, cpp.FeatureDebug.String())
	}
	opts.Merge(flagOpts)
	if f.noLineMarkers {
		opts.LineMarkers = false
	}
	return opts, nil
}

// hasMeta reports whether pattern contains glob metacharacters.
func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// expandInputs expands glob patterns among args. Plain names are kept as
// they are so that a missing file is reported by the preprocessor.
func expandInputs(args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		if !hasMeta(arg) {
			inputs = append(inputs, arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no input files match %s", arg)
		}
		sort.Strings(matches)
		inputs = append(inputs, matches...)
	}
	return inputs, nil
}

// doPreprocess preprocesses the inputs to stdout or the -o file.
func doPreprocess(cmd *cobra.Command, f *cliFlags, args []string, out, errOut io.Writer) (err error) {
	opts, err := buildPreprocessorOptions(f)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-cpp: %v\n", err)
		return err
	}
	inputs, err := expandInputs(args)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-cpp: %v\n", err)
		return err
	}

	log := newLogger(errOut, f.debug)
	diags := newDiagPrinter(errOut, log, f.noWarnings)
	opts.Logger = log
	opts.Listener = diags

	w := out
	if f.output != "" {
		outFile, createErr := os.Create(f.output)
		if createErr != nil {
			fmt.Fprintf(errOut, "ralph-cpp: error creating %s: %v\n", f.output, createErr)
			return createErr
		}
		defer func() {
			if cerr := outFile.Close(); cerr != nil && err == nil {
				fmt.Fprintf(errOut, "ralph-cpp: error writing %s: %v\n", f.output, cerr)
				err = cerr
			}
		}()
		w = outFile
	}

	if len(inputs) == 0 {
		err = preproc.PreprocessReader(w, cmd.InOrStdin(), "<stdin>", opts)
	} else {
		log.WithField("inputs", inputs).Debug("preprocessing")
		err = preproc.PreprocessTo(w, inputs, opts)
	}
	if err != nil {
		fmt.Fprintf(errOut, "ralph-cpp: preprocessing error: %v\n", err)
		return err
	}
	if n := diags.Errors(); n > 0 {
		fmt.Fprintf(errOut, "ralph-cpp: %d error(s) generated\n", n)
		return ErrPreprocessing
	}
	return nil
}

// diagPrinter prints diagnostics as they are reported and counts them.
type diagPrinter struct {
	*cpp.DiagnosticCollector
	errOut io.Writer
	log    logrus.FieldLogger
	quiet  bool
}

func newDiagPrinter(errOut io.Writer, log logrus.FieldLogger, quiet bool) *diagPrinter {
	return &diagPrinter{
		DiagnosticCollector: cpp.NewDiagnosticCollector(nil),
		errOut:              errOut,
		log:                 log,
		quiet:               quiet,
	}
}

func (d *diagPrinter) printLast() {
	fmt.Fprintf(d.errOut, "ralph-cpp: %v\n", d.Diagnostics[len(d.Diagnostics)-1])
}

func (d *diagPrinter) HandleWarning(src cpp.Source, line, column int, msg string) error {
	if d.quiet {
		return nil
	}
	if err := d.DiagnosticCollector.HandleWarning(src, line, column, msg); err != nil {
		return err
	}
	d.printLast()
	return nil
}

func (d *diagPrinter) HandleError(src cpp.Source, line, column int, msg string) error {
	if err := d.DiagnosticCollector.HandleError(src, line, column, msg); err != nil {
		return err
	}
	d.printLast()
	return nil
}

func (d *diagPrinter) HandleSourceChange(src cpp.Source, event cpp.SourceChangeEvent) {
	if src == nil {
		return
	}
	d.log.WithFields(logrus.Fields{"event": string(event), "path": src.Path()}).Debugf("source %s", src.Name())
}
