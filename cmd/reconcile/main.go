// Command reconcile cross-checks completed orders against the payment
// gateway's settlement dumps. The gateway exports gzipped files with one
// settled transaction reference per line; any completed order whose payment
// reference never shows up in a dump is flagged for manual review.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/mueblesmartek/martek-sub001/internal/repository"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 5_000_000
)

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing settlement-*.gz dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("settlement reconciliation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("settlement reconciliation completed")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "settlement-*.gz"))
	if err != nil {
		return errors.Wrap(err, "glob settlement dumps")
	}
	if len(files) == 0 {
		return errors.Errorf("no settlement-*.gz files in %s", dataDir)
	}

	slog.Info("loading completed orders")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	refs, err := repository.NewOrderRepository(pool).ListSettledReferences(ctx)
	if err != nil {
		return errors.Wrap(err, "load settled references")
	}
	if len(refs) == 0 {
		slog.Info("no completed orders to reconcile")
		return nil
	}

	slog.Info("reconciling", slog.Int("orders", len(refs)), slog.Int("dumps", len(files)))

	// Pass 1: build one bloom filter per dump, concurrently.
	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Orders whose reference misses every filter are definitely unsettled.
	// The rest are candidates that pass 2 confirms, since bloom hits can be
	// false positives.
	byRef := make(map[string]repository.SettledRef, len(refs))
	var missing []repository.SettledRef
	for _, ref := range refs {
		if anyFilterHas(filters, ref.PaymentReference) {
			byRef[ref.PaymentReference] = ref
		} else {
			missing = append(missing, ref)
		}
	}

	// Pass 2: re-stream the dumps and confirm candidate references.
	confirmed, err := confirmReferences(ctx, files, byRef)
	if err != nil {
		return errors.Wrap(err, "confirm references")
	}

	for ref, order := range byRef {
		if !confirmed[ref] {
			missing = append(missing, order)
		}
	}

	for _, m := range missing {
		slog.Warn("completed order without settlement record",
			slog.String("order_number", m.OrderNumber),
			slog.String("payment_reference", m.PaymentReference),
		)
	}

	slog.Info("reconciliation summary",
		slog.Int("orders", len(refs)),
		slog.Int("settled", len(refs)-len(missing)),
		slog.Int("unsettled", len(missing)),
	)
	return nil
}

func anyFilterHas(filters []*bloom.BloomFilter, ref string) bool {
	for _, f := range filters {
		if f.TestString(ref) {
			return true
		}
	}
	return false
}

// buildBloomFilters creates one bloom filter per dump file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(ref string) {
			filter.AddString(ref)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("references", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for %s", path)
		}

		slog.Info("pass 1 complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("total_references", count),
		)

		filters[idx] = filter
		return nil
	}
}

// confirmReferences re-streams each dump and records which candidate
// references actually appear, eliminating bloom false positives.
func confirmReferences(ctx context.Context, files []string, byRef map[string]repository.SettledRef) (map[string]bool, error) {
	results := make([]map[string]bool, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(confirmInFile(ctx, i, f, byRef, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	confirmed := make(map[string]bool)
	for _, r := range results {
		for ref := range r {
			confirmed[ref] = true
		}
	}
	return confirmed, nil
}

func confirmInFile(
	ctx context.Context,
	idx int,
	path string,
	byRef map[string]repository.SettledRef,
	results []map[string]bool,
) func() error {
	return func() error {
		seen := make(map[string]bool)
		var count uint64

		if err := streamGzFile(ctx, path, func(ref string) {
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("references", count),
				)
			}
			if _, ok := byRef[ref]; ok {
				seen[ref] = true
			}
		}); err != nil {
			return errors.Wrapf(err, "scan %s for candidates", path)
		}

		slog.Info("pass 2 complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("total_references", count),
			slog.Int("matched", len(seen)),
		)

		results[idx] = seen
		return nil
	}
}

// streamGzFile opens a gzip-compressed dump and calls fn for each non-empty
// line's first comma-separated field, which carries the transaction reference.
func streamGzFile(ctx context.Context, path string, fn func(ref string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if i := strings.IndexByte(line, ','); i >= 0 {
			line = line[:i]
		}
		fn(line)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
