package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Mindburn-Labs/leadgrid/pkg/api"
	"github.com/Mindburn-Labs/leadgrid/pkg/audit"
	"github.com/Mindburn-Labs/leadgrid/pkg/config"
)

// runDistributeCmd sweeps undistributed leads once against the configured
// store and prints per-lead outcomes.
func runDistributeCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("distribute", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 100, "maximum leads to process")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	svc, err := buildServices(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer svc.close()

	results, err := svc.dist.DistributeBatch(ctx, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "batch distribution failed: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)
	fmt.Fprintf(stdout, "processed %d leads\n", len(results))
	return 0
}

// runTokenCmd mints an agency session token from JWT_SECRET.
func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: leadgrid token [-ttl 720h] <agency_id>")
		return 2
	}

	cfg := config.Load()
	validator := api.NewJWTValidator(cfg.JWTSecret)
	if validator == nil {
		fmt.Fprintln(stderr, "JWT_SECRET is not set")
		return 1
	}
	token, err := validator.IssueToken(fs.Arg(0), *ttl)
	if err != nil {
		fmt.Fprintf(stderr, "token minting failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

// runVerifyAuditCmd re-hashes the persisted audit chain and reports breaks.
func runVerifyAuditCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify-audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 100000, "maximum entries to verify")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	svc, err := buildServices(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer svc.close()

	entries, err := svc.store.ListAudit(ctx, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "audit read failed: %v\n", err)
		return 1
	}
	if err := audit.VerifyChain(entries); err != nil {
		fmt.Fprintf(stderr, "audit chain INVALID: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "audit chain OK (%d entries)\n", len(entries))
	return 0
}
