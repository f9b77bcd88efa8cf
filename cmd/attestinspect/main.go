package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/fr0stylo/ciattest/internal/app"
	"github.com/fr0stylo/ciattest/internal/config"
	"github.com/fr0stylo/ciattest/internal/observability"
	"github.com/fr0stylo/ciattest/internal/registry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file loaded:", err)
	}

	jobNumber := flag.Int("job", 0, "CircleCI job number to attest")
	emit := flag.Bool("emit", false, "Hand the attestation to the registry sinks")
	statement := flag.Bool("statement", false, "Print the in-toto statement instead of the attestation")
	timeout := flag.Duration("timeout", 0, "Override ATTEST_REQUEST_TIMEOUT")
	flag.Parse()

	if *jobNumber <= 0 {
		exitErr("-job must be a positive CircleCI job number")
	}

	cfg, err := config.LoadForTool()
	if err != nil {
		exitErr(err.Error())
	}
	if *timeout > 0 {
		cfg.Attest.RequestTimeout = *timeout
	}

	log := observability.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	a, err := app.New(cfg, log)
	if err != nil {
		exitErr(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Attest.RequestTimeout+5*time.Second)
	defer cancel()

	attestation, err := a.Pipeline.Inspect(ctx, *jobNumber)
	if err != nil {
		exitErr(err.Error())
	}
	if *emit {
		if err := a.Sinks.Emit(ctx, attestation); err != nil {
			exitErr(err.Error())
		}
		fmt.Fprintln(os.Stderr, "Wrote", a.Spool.PathFor(attestation))
	}

	var out any = attestation
	if *statement {
		out = registry.NewStatement(attestation)
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		exitErr(err.Error())
	}
}

func exitErr(message string) {
	fmt.Fprintln(os.Stderr, message)
	os.Exit(1)
}
