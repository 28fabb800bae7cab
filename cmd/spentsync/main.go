package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

const (
	version = "0.1.0"
)

// as a CLI application with a short lifecycle, global flags are plain package variables
var (
	versionFlag = flag.Bool("version", false, "Show version")
	configPath  = flag.String("config", "", "Config file (default: "+defaultConfigHint+")")
	verbose     = flag.Bool("verbose", false, "Show debug logs")
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	register(commander)

	flag.Parse()

	if *versionFlag {
		fmt.Printf("spentsync version %s\n", version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

// register adds the spentsync subcommands
func register(c *subcommands.Commander) {
	c.Register(&importCmd{}, "ledger")
	c.Register(&checkCmd{}, "ledger")
	c.Register(&exportCmd{}, "ledger")
	c.Register(&configCmd{}, "setup")
}
