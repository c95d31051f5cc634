// Package maintenance runs the periodic ledger upkeep the calendar
// demands: monthly savings interest (which also resets withdrawal
// counters) and quarterly investment management fees. Scheduling the runs
// on actual period boundaries is the operator's job; this package only
// executes one pass over the store.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"minibank/internal/domain/account"
)

var (
	maintMeter   = otel.Meter("minibank/maintenance")
	jobsTotal, _ = maintMeter.Int64Counter("maintenance.jobs.total", metric.WithDescription("Maintenance jobs executed by status"))
)

// Period selects which maintenance pass to run.
type Period string

const (
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
)

// Ledger is the slice of the ledger service the runner needs. Both calls
// use the service's per-account serialization, so a pass is safe to run
// concurrently with ordinary deposits and withdrawals.
type Ledger interface {
	ApplyMonthlyInterest(ctx context.Context, accountID string) error
	ApplyQuarterlyFee(ctx context.Context, accountID string) error
}

// AccountSource enumerates the accounts to maintain.
type AccountSource interface {
	AllAccounts(ctx context.Context) ([]*account.Account, error)
}

// Runner fans maintenance jobs out over a fixed pool of workers.
type Runner struct {
	ledger      Ledger
	accounts    AccountSource
	workerCount int
}

// NewRunner creates a maintenance runner. workerCount values below 1 are
// raised to 1.
func NewRunner(ledger Ledger, accounts AccountSource, workerCount int) *Runner {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Runner{
		ledger:      ledger,
		accounts:    accounts,
		workerCount: workerCount,
	}
}

// Run executes one maintenance pass and returns how many accounts were
// processed. Per-account failures are logged and counted but do not stop
// the pass; only failing to enumerate accounts aborts it.
func (r *Runner) Run(ctx context.Context, period Period) (int, error) {
	accounts, err := r.accounts.AllAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	var targetType account.Type
	switch period {
	case PeriodMonthly:
		targetType = account.TypeSavings
	case PeriodQuarterly:
		targetType = account.TypeInvestment
	default:
		return 0, fmt.Errorf("unknown maintenance period %q", period)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0

	for i := 0; i < r.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				status := "ok"
				if err := r.apply(ctx, period, id); err != nil {
					status = "error"
					log.Printf("Maintenance %s failed for account %s: %v", period, id, err)
				} else {
					mu.Lock()
					processed++
					mu.Unlock()
				}
				jobsTotal.Add(ctx, 1, metric.WithAttributes(
					attribute.String("period", string(period)),
					attribute.String("status", status),
				))
			}
		}()
	}

	for _, acc := range accounts {
		if acc.Type != targetType {
			continue
		}
		select {
		case jobs <- acc.ID:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return processed, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	log.Printf("Maintenance pass %s processed %d accounts", period, processed)
	return processed, nil
}

func (r *Runner) apply(ctx context.Context, period Period, accountID string) error {
	if period == PeriodMonthly {
		return r.ledger.ApplyMonthlyInterest(ctx, accountID)
	}
	return r.ledger.ApplyQuarterlyFee(ctx, accountID)
}
