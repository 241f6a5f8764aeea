package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bowerhall/vpload/internal/logger"
)

func init() {
	godotenv.Load()
}

const usageText = `usage:
  vpload run <input-path> <output-database> [--stats <path>] [--property-table-jar <path>] [--overwrite] [--parallelism N] [--config file]
  vpload schedule <input-path> <output-database> --cron "<expr>" [run flags]
  vpload stats <path> [--config file]
  vpload runs [--limit N] [--config file]
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runCommand(ctx, args)
	case "schedule":
		err = scheduleCommand(ctx, args)
	case "stats":
		err = statsCommand(ctx, args, os.Stdout)
	case "runs":
		err = runsCommand(ctx, args, os.Stdout)
	case "help", "-h", "--help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		stop()
		logger.Fatal("vpload failed", "command", cmd, "error", err)
	}
}
