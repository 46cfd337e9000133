// Command localrmsd compares two protein structures residue by residue:
// after one global superposition it reports the RMSD of every window of
// consecutive alpha carbons.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/tikz/localrmsd/align"
	"github.com/tikz/localrmsd/compat"
	"github.com/tikz/localrmsd/config"
	bhttp "github.com/tikz/localrmsd/http"
	"github.com/tikz/localrmsd/pdb"
	"github.com/tikz/localrmsd/uniprot"
)

const usage = `usage: localrmsd <command> [flags] [args]

commands:
  rmsd <pdbA> <pdbB>   local RMSD between a chain of each structure
  align <pdbA> <pdbB>  superpose B onto A and write the moved B as PDB
  pdbs <accession>     PDB structures of a UniProt entry
  search <query>       search UniProt
  history              list stored analyses
  show <run-id>        print a stored analysis
  serve                run the HTTP API

Structures are PDB IDs or paths to .pdb/.ent files (optionally gzipped).
Run "localrmsd <command> -h" for the flags of a command.
`

var errUsage = errors.New("usage")

var commands = map[string]func(*app, []string) error{
	"rmsd":    cmdRMSD,
	"align":   cmdAlign,
	"pdbs":    cmdPDBs,
	"search":  cmdSearch,
	"history": cmdHistory,
	"show":    cmdShow,
	"serve":   cmdServe,
}

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg *config.Config
	log *slog.Logger
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code: 0 on success
// or a cancelled analysis, 1 on errors, 2 on usage errors.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(stdout, usage)
		return 0
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	err := cmd(a, args[1:])
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	fmt.Fprintf(stderr, "localrmsd %s: %v\n", args[0], err)
	if a.log != nil {
		a.log.Debug("command failed", "command", args[0], "kind", align.Classify(err))
	}
	return 1
}

// newFlagSet returns a flag set carrying the flags every command accepts.
func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false
	fs.String("config", "", "config file (YAML, JSON or TOML)")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.Duration("http-timeout", bhttp.DefaultTimeout, "timeout of each request to the public databases")
	return fs
}

// load parses args, merges the configuration and sets up logging. It
// returns the positional arguments.
func (a *app) load(fs *pflag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := config.New()
	if err := config.BindFlags(v, fs); err != nil {
		return nil, err
	}
	file, _ := fs.GetString("config")
	cfg, err := config.Load(v, file)
	if err != nil {
		return nil, err
	}

	a.cfg = cfg
	a.log = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(a.log)

	return fs.Args(), nil
}

func (a *app) client() *bhttp.Client {
	return bhttp.NewClient(a.cfg.HTTPTimeout)
}

func (a *app) source() align.Source {
	return newFileSource(pdb.NewFetcher(a.client(), a.cfg.RCSBURL))
}

// engine returns an engine configured from the loaded settings. With the
// ask policy, confirmations are read from stdin.
func (a *app) engine() *align.Engine {
	eng := align.New(a.source(), pdb.NewSIFTSOracle(a.client(), a.cfg.SIFTSURL, a.log))
	eng.Policy = a.cfg.Policy()
	eng.Workers = a.cfg.Workers
	eng.Logger = a.log
	if eng.Policy == align.AskCaller {
		eng.Confirm = prompt(a.stdin, a.stdout)
	}
	return eng
}

func (a *app) uniprot() *uniprot.Client {
	return uniprot.NewClient(a.client(), a.cfg.UniProtURL, "")
}

// prompt asks on out whether to go on with chains that share no accession
// and reads the answer from in. y, yes, s, si and sí accept.
func prompt(in io.Reader, out io.Writer) align.ConfirmFunc {
	r := bufio.NewReader(in)
	return func(ctx context.Context, res compat.Result) (bool, error) {
		fmt.Fprintf(out, "%s:%s %v and %s:%s %v share no UniProt accession, they may be different proteins.\n",
			res.A.StructureID, res.A.ChainID, res.AccessionsA,
			res.B.StructureID, res.B.ChainID, res.AccessionsB)
		fmt.Fprint(out, "Continue anyway? [y/N] ")

		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "s", "si", "sí":
			return true, nil
		}
		return false, nil
	}
}
