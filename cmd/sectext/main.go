// sectext - schema-driven sectioned text tool
//
// Usage:
//
//	sectext check  [flags] file...           Parse files and report diagnostics
//	sectext fmt    [flags] file...           Normalize layout in place
//	sectext dump   [flags] file              Print records as JSON, YAML or CBOR
//	sectext pack   [flags] --out dir file... Store single-record files in packed windows
//	sectext unpack [flags] --out dir file... Split packed files into one file per record
//	sectext get    [flags] --dir dir index...  Print records from a packed store
//	sectext version                          Print version info
//
// Every command takes --config, --schema and --log-level. The schema is a
// YAML or JSONC description (see package schemafile).
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/Neumenon/sectext/internal/config"
	"github.com/Neumenon/sectext/schemafile"
)

const version = "0.3.0"

// exitError carries a process exit code without an error message of its
// own; the command has already reported.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e exitError) ExitCode() int { return e.code }

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name    string
	summary string
	run     func(c *cli, args []string) error
}

var commands = []command{
	{"check", "Parse files and report diagnostics", runCheck},
	{"fmt", "Normalize layout in place", runFmt},
	{"dump", "Print records as JSON, YAML or CBOR", runDump},
	{"pack", "Store single-record files in packed windows", runPack},
	{"unpack", "Split packed files into one file per record", runUnpack},
	{"get", "Print records from a packed store", runGet},
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return exitError{code: 2}
	}

	name := args[0]
	switch name {
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "sectext %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == name {
			c := &cli{name: name, stdout: stdout, stderr: stderr}
			return cmd.run(c, args[1:])
		}
	}
	fmt.Fprintf(stderr, "unknown command: %s\n", name)
	printUsage(stderr)
	return exitError{code: 2}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, "sectext - schema-driven sectioned text tool\n\nUsage:\n  sectext <command> [flags] [args]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(w, "  %-8s %s\n", "version", "Print version info")
	fmt.Fprint(w, `
Common flags:
  --config path     YAML config file (default $SECTEXT_CONFIG)
  --schema path     schema description (default from config or $SECTEXT_SCHEMA)
  --log-level lvl   debug, info, warn or error

Run "sectext <command> --help" for command flags.
`)
}

// cli is the state shared by one command invocation.
type cli struct {
	name   string
	stdout io.Writer
	stderr io.Writer

	flags      *pflag.FlagSet
	configPath string
	schemaPath string
	logLevel   string

	cfg    *config.Config
	log    *slog.Logger
	schema *schemafile.Schema
}

// flagSet returns the command's flag set with the common flags defined.
func (c *cli) flagSet(usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("sectext "+c.name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.schemaPath, "schema", "", "schema description (YAML or JSONC)")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage:\n  sectext %s %s\n\nFlags:\n", c.name, usage)
		fs.PrintDefaults()
	}
	c.flags = fs
	return fs
}

// parse parses args and loads configuration and the schema. It returns
// the positional arguments, of which there must be at least minArgs.
func (c *cli) parse(args []string, minArgs int) ([]string, error) {
	if err := c.flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, exitError{code: 0}
		}
		return nil, exitError{code: 2}
	}
	rest := c.flags.Args()
	if len(rest) < minArgs {
		c.flags.Usage()
		return nil, exitError{code: 2}
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if c.schemaPath != "" {
		cfg.Schema = c.schemaPath
	}
	c.cfg = cfg
	c.log = cfg.Logger(c.stderr).With("cmd", c.name)

	if cfg.Schema == "" {
		return nil, errors.New("no schema: pass --schema or set schema in the config")
	}
	c.schema, err = schemafile.Load(cfg.Schema, c.log)
	if err != nil {
		return nil, err
	}
	c.log.Debug("schema loaded", "schema", c.schema.Name(), "path", cfg.Schema)
	return rest, nil
}
