package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/openrelay/gateway/config"
	"github.com/openrelay/gateway/internal/migration"
)

func runMigrate(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: gateway migrate <up|down|status|version|goto|force|reset> [args]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args[1:])

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	migrator, err := migration.NewMigratorFromDatabaseConfig(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	ctx := context.Background()

	subcommand := args[0]
	var runErr error

	switch subcommand {
	case "up":
		runErr = cli.RunUp(ctx)
	case "down":
		runErr = cli.RunDown(ctx)
	case "reset":
		runErr = cli.RunDownAll(ctx)
	case "status":
		runErr = cli.RunStatus(ctx)
	case "version":
		runErr = cli.RunVersion(ctx)
	case "info":
		runErr = cli.RunInfo(ctx)
	case "goto":
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "usage: gateway migrate goto <version>")
			os.Exit(1)
		}
		version, parseErr := strconv.ParseUint(fs.Arg(0), 10, 32)
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "invalid version: %v\n", parseErr)
			os.Exit(1)
		}
		runErr = cli.RunGoto(ctx, uint(version))
	case "force":
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "usage: gateway migrate force <version>")
			os.Exit(1)
		}
		version, parseErr := strconv.Atoi(fs.Arg(0))
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "invalid version: %v\n", parseErr)
			os.Exit(1)
		}
		runErr = cli.RunForce(ctx, version)
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate subcommand: %s\n", subcommand)
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", runErr)
		os.Exit(1)
	}
}
