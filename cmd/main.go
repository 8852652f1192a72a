package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&workerCmd{}, "")
	commander.Register(&trialBalanceCmd{}, "reports")
	commander.Register(&historyCmd{}, "reports")
	commander.Register(&tokenCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
