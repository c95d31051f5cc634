package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"minibank/internal/domain/account"
	"minibank/internal/domain/history"
	"minibank/internal/domain/ledger"
	"minibank/internal/domain/transaction"
	"minibank/internal/infrastructure/csvstore"
	"minibank/internal/infrastructure/memory"
	"minibank/internal/infrastructure/postgres"
	"minibank/internal/maintenance"
	"minibank/internal/shared/config"
	"minibank/internal/shared/telemetry"
)

const usage = `bankctl - management commands for the minibank ledger

Usage:
  bankctl <command> [options]

Commands:
  open             Open a new account
  close            Close an account and purge its ledger entries
  close-owner      Close every account of an owner
  deposit          Deposit into an account
  withdraw         Withdraw from an account
  transfer         Transfer between two accounts
  buy              Buy a security on an investment account
  accounts         List an owner's accounts
  history          Show an account's ledger entries
  running-balance  Replay an account's running balance
  summary          Sum an account's entries per transaction type
  maintenance      Run a monthly or quarterly maintenance pass
  migrate          Create the postgres schema

The store backend is picked via STORE_DRIVER (memory, csv or postgres);
see internal/shared/config for the full list of environment variables.

Examples:
  bankctl open --owner=u1 --type=Checking --balance=100
  bankctl transfer --from=<id> --to=<id> --amount=25
  bankctl history --account=<id> --type=DEPOSIT
  bankctl maintenance --period=monthly
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		})
		if err != nil {
			log.Fatalf("Failed to initialize telemetry: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Printf("Telemetry shutdown: %v", err)
			}
		}()
	}

	repo, cleanup, err := openRepository(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer cleanup()

	svc := ledger.NewService(repo, nil)
	hist := history.NewService(repo)

	switch command := os.Args[1]; command {
	case "open":
		runOpen(ctx, svc, os.Args[2:])
	case "close":
		runClose(ctx, svc, os.Args[2:])
	case "close-owner":
		runCloseOwner(ctx, svc, os.Args[2:])
	case "deposit":
		runMove(ctx, svc.Deposit, "deposit", os.Args[2:])
	case "withdraw":
		runMove(ctx, svc.Withdraw, "withdraw", os.Args[2:])
	case "transfer":
		runTransfer(ctx, svc, os.Args[2:])
	case "buy":
		runBuy(ctx, svc, os.Args[2:])
	case "accounts":
		runAccounts(ctx, svc, os.Args[2:])
	case "history":
		runHistory(ctx, hist, os.Args[2:])
	case "running-balance":
		runRunningBalance(ctx, svc, hist, os.Args[2:])
	case "summary":
		runSummary(ctx, hist, os.Args[2:])
	case "maintenance":
		runMaintenance(ctx, svc, repo, cfg, os.Args[2:])
	case "migrate":
		runMigrate(ctx, repo, cfg)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}
}

func openRepository(cfg *config.Config) (ledger.Repository, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.NewRepository(), func() {}, nil
	case "csv":
		repo, err := csvstore.Open(cfg.Store.AccountsPath, cfg.Store.TransactionsPath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	case "postgres":
		db, err := postgres.New(cfg.Database.ConnectionString())
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewRepository(db), func() { db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func runOpen(ctx context.Context, svc *ledger.Service, args []string) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner ID")
	typ := fs.String("type", string(account.TypeBasic), "Account type (Basic, Checking, Savings, Investment)")
	balance := fs.Float64("balance", 0, "Initial balance")
	parseFlags(fs, args)

	acc, err := svc.OpenAccount(ctx, *owner, account.Type(*typ), *balance)
	if err != nil {
		log.Fatalf("Failed to open account: %v", err)
	}
	fmt.Printf("Opened %s account %s for owner %s (balance %.2f)\n", acc.Type, acc.ID, acc.OwnerID, acc.Balance)
}

func runClose(ctx context.Context, svc *ledger.Service, args []string) {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	id := fs.String("account", "", "Account ID")
	parseFlags(fs, args)

	if err := svc.CloseAccount(ctx, *id); err != nil {
		log.Fatalf("Failed to close account: %v", err)
	}
	fmt.Printf("Closed account %s\n", *id)
}

func runCloseOwner(ctx context.Context, svc *ledger.Service, args []string) {
	fs := flag.NewFlagSet("close-owner", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner ID")
	parseFlags(fs, args)

	n, err := svc.CloseAccountsByOwner(ctx, *owner)
	if err != nil {
		log.Fatalf("Failed to close accounts (%d removed): %v", n, err)
	}
	fmt.Printf("Closed %d accounts for owner %s\n", n, *owner)
}

func runMove(ctx context.Context, op func(context.Context, string, float64) error, name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	id := fs.String("account", "", "Account ID")
	amount := fs.Float64("amount", 0, "Amount")
	parseFlags(fs, args)

	if err := op(ctx, *id, *amount); err != nil {
		log.Fatalf("Failed to %s: %v", name, err)
	}
	fmt.Printf("OK: %s %.2f on account %s\n", name, *amount, *id)
}

func runTransfer(ctx context.Context, svc *ledger.Service, args []string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	from := fs.String("from", "", "Sender account ID")
	to := fs.String("to", "", "Recipient account ID")
	amount := fs.Float64("amount", 0, "Amount")
	parseFlags(fs, args)

	if err := svc.Transfer(ctx, *from, *to, *amount); err != nil {
		log.Fatalf("Failed to transfer: %v", err)
	}
	fmt.Printf("OK: transferred %.2f from %s to %s\n", *amount, *from, *to)
}

func runBuy(ctx context.Context, svc *ledger.Service, args []string) {
	fs := flag.NewFlagSet("buy", flag.ExitOnError)
	id := fs.String("account", "", "Investment account ID")
	symbol := fs.String("symbol", "", "Security symbol")
	shares := fs.Int("shares", 0, "Number of shares")
	price := fs.Float64("price", 0, "Price per share")
	parseFlags(fs, args)

	if err := svc.BuySecurity(ctx, *id, *symbol, *shares, *price); err != nil {
		log.Fatalf("Failed to buy security: %v", err)
	}
	fmt.Printf("OK: bought %d %s at %.2f on account %s\n", *shares, *symbol, *price, *id)
}

func runAccounts(ctx context.Context, svc *ledger.Service, args []string) {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner ID")
	parseFlags(fs, args)

	accounts, err := svc.AccountsByOwner(ctx, *owner)
	if err != nil {
		log.Fatalf("Failed to list accounts: %v", err)
	}
	for _, acc := range accounts {
		fmt.Printf("%s  %-10s  %10.2f\n", acc.ID, acc.Type, acc.Balance)
	}
}

func runHistory(ctx context.Context, hist *history.Service, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	id := fs.String("account", "", "Account ID")
	typStr := fs.String("type", "", "Filter by transaction type")
	startStr := fs.String("start", "", "Window start (RFC 3339, exclusive)")
	endStr := fs.String("end", "", "Window end (RFC 3339, exclusive)")
	parseFlags(fs, args)

	start := time.Time{}
	end := time.Now().Add(time.Hour)
	var err error
	if *startStr != "" {
		if start, err = time.Parse(time.RFC3339, *startStr); err != nil {
			log.Fatalf("Invalid --start: %v", err)
		}
	}
	if *endStr != "" {
		if end, err = time.Parse(time.RFC3339, *endStr); err != nil {
			log.Fatalf("Invalid --end: %v", err)
		}
	}
	var typ *transaction.Type
	if *typStr != "" {
		parsed, err := transaction.ParseType(*typStr)
		if err != nil {
			log.Fatalf("Invalid --type: %v", err)
		}
		typ = &parsed
	}

	entries, err := hist.FilteredHistory(ctx, *id, start, end, typ)
	if err != nil {
		log.Fatalf("Failed to load history: %v", err)
	}
	for _, entry := range entries {
		target := entry.TargetAccountID
		if target == "" {
			target = "-"
		}
		fmt.Printf("%s  %-17s  %-6s  %10.2f  target=%s\n",
			entry.Timestamp.Format(time.RFC3339), entry.Type, entry.Direction, entry.Amount, target)
	}
}

func runRunningBalance(ctx context.Context, svc *ledger.Service, hist *history.Service, args []string) {
	fs := flag.NewFlagSet("running-balance", flag.ExitOnError)
	id := fs.String("account", "", "Account ID")
	initial := fs.Float64("initial", 0, "Balance before the first recorded entry")
	parseFlags(fs, args)

	if _, err := svc.Account(ctx, *id); err != nil {
		log.Fatalf("Failed to load account: %v", err)
	}
	snapshots, err := hist.RunningBalance(ctx, *id, *initial)
	if err != nil {
		log.Fatalf("Failed to compute running balance: %v", err)
	}
	for _, snap := range snapshots {
		fmt.Printf("%s  %12.2f\n", snap.Timestamp.Format(time.RFC3339), snap.Balance)
	}
}

func runSummary(ctx context.Context, hist *history.Service, args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	id := fs.String("account", "", "Account ID")
	parseFlags(fs, args)

	summary, err := hist.SummaryByType(ctx, *id)
	if err != nil {
		log.Fatalf("Failed to compute summary: %v", err)
	}
	for typ, total := range summary {
		fmt.Printf("%-17s  %12.2f\n", typ, total)
	}
}

func runMaintenance(ctx context.Context, svc *ledger.Service, repo ledger.Repository, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("maintenance", flag.ExitOnError)
	period := fs.String("period", "", "Maintenance period (monthly or quarterly)")
	parseFlags(fs, args)

	runner := maintenance.NewRunner(svc, repo, cfg.Maintenance.WorkerCount)
	n, err := runner.Run(ctx, maintenance.Period(*period))
	if err != nil {
		log.Fatalf("Maintenance pass failed: %v", err)
	}
	fmt.Printf("Maintenance %s pass processed %d accounts\n", *period, n)
}

func runMigrate(ctx context.Context, repo ledger.Repository, cfg *config.Config) {
	pg, ok := repo.(*postgres.Repository)
	if !ok {
		log.Fatalf("migrate requires STORE_DRIVER=postgres (got %s)", cfg.Store.Driver)
	}
	if err := pg.Migrate(ctx); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	fmt.Println("Schema is up to date")
}

func parseFlags(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
}
