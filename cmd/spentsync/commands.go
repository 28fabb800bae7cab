package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/rumor-ml/commons.systems/spentsync/internal/output"
	"github.com/rumor-ml/commons.systems/spentsync/internal/pipeline"
	"github.com/rumor-ml/commons.systems/spentsync/internal/registry"
	"github.com/rumor-ml/commons.systems/spentsync/internal/store"
	"github.com/rumor-ml/commons.systems/spentsync/internal/ui"
	"github.com/rumor-ml/commons.systems/spentsync/internal/validate"
)

type importCmd struct {
	dryRun bool
	keep   bool
}

func (*importCmd) Name() string { return "import" }
func (*importCmd) Synopsis() string {
	return "merge downloaded statements, CSV exports and alert emails into the ledger"
}
func (*importCmd) Usage() string {
	return `spentsync [-config file] import [-dry-run] [-keep]

  Extracts every statement (*.ofx, *.qfx), CSV export (*.csv) and raw alert
  email (email_raw_<id>.txt) in the downloads directory, adds the ones not
  already in the ledger, saves the ledger if it changed and deletes the
  processed files.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "Report what would be added without saving or deleting anything")
	f.BoolVar(&c.keep, "keep", false, "Keep input files after a successful import")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, cfg, err := setup(ctx)
	if err != nil {
		ui.Error(err.Error())
		return subcommands.ExitFailure
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		ui.Error(err.Error())
		return subcommands.ExitFailure
	}
	defer st.Close()

	ui.Header("Importing Transactions")
	ui.Info("Downloads: " + cfg.DownloadsDir)
	ui.Info("Ledger: " + cfg.Store.Describe())

	reg := registry.New(registry.Options{StrictCSVHeader: cfg.CSV.StrictHeader})
	p := pipeline.New(reg, st, pipeline.Options{
		DownloadsDir: cfg.DownloadsDir,
		DryRun:       c.dryRun,
		DeleteInputs: cfg.ShouldDeleteInputs() && !c.keep,
	})

	if _, err := p.Run(ctx); err != nil {
		ui.Error(err.Error())
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type checkCmd struct{}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "validate the stored ledger without changing it" }
func (*checkCmd) Usage() string {
	return `spentsync [-config file] check

  Loads the ledger and reports ordering, identity and date problems.
  Exits non-zero when an error is found; warnings do not fail the check.
`
}

func (*checkCmd) SetFlags(*flag.FlagSet) {}

func (*checkCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, cfg, err := setup(ctx)
	if err != nil {
		ui.Error(err.Error())
		return subcommands.ExitFailure
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		ui.Error(err.Error())
		return subcommands.ExitFailure
	}
	defer st.Close()

	ledger, err := st.Load(ctx)
	if err != nil {
		ui.Error(err.Error())
		return subcommands.ExitFailure
	}

	ui.Header("Checking Ledger")
	ui.Info(fmt.Sprintf("%d entries in %s", len(ledger), cfg.Store.Describe()))
	if db, ok := st.(*store.SQLite); ok {
		n, err := db.Revisions(ctx)
		if err != nil {
			ui.Error(err.Error())
			return subcommands.ExitFailure
		}
		ui.Info(fmt.Sprintf("%d saved revision(s)", n))
	}

	result := validate.ValidateLedger(ledger)
	for _, w := range result.Warnings {
		ui.Warning(fmt.Sprintf("%s %s: %s", w.Field, w.ID, w.Message))
	}
	for _, e := range result.Errors {
		ui.Error(fmt.Sprintf("%s %s %s: %s", e.Entity, e.Field, e.ID, e.Message))
	}

	if result.HasErrors() {
		return subcommands.ExitFailure
	}
	ui.Success(fmt.Sprintf("Ledger OK (%d warning(s))", len(result.Warnings)))
	return subcommands.ExitSuccess
}

type exportCmd struct {
	out string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write the stored ledger as canonical JSON" }
func (*exportCmd) Usage() string {
	return `spentsync [-config file] export [-o file]

  Loads the ledger from the configured store and writes it to a file,
  or to stdout when -o is not given.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "o", "", "Output JSON file (default: stdout)")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, cfg, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	ledger, err := st.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := output.WriteLedgerToFile(ledger, output.WriteOptions{FilePath: c.out}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type configCmd struct{}

func (*configCmd) Name() string     { return "config" }
func (*configCmd) Synopsis() string { return "print the effective configuration with secrets masked" }
func (*configCmd) Usage() string {
	return `spentsync [-config file] config

  Prints the configuration after defaults and ${VAR} expansion, then lists
  every validation problem.
`
}

func (*configCmd) SetFlags(*flag.FlagSet) {}

func (*configCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	text, err := cfg.YAML()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Print(text)

	errs := cfg.Validate()
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", e)
	}
	if len(errs) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
