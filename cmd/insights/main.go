package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/castlemilk/pfinance/insights/internal/anomaly"
	"github.com/castlemilk/pfinance/insights/internal/config"
	"github.com/castlemilk/pfinance/insights/internal/database"
	"github.com/castlemilk/pfinance/insights/internal/forecast"
	"github.com/castlemilk/pfinance/insights/internal/i18n"
	"github.com/castlemilk/pfinance/insights/internal/logging"
	"github.com/castlemilk/pfinance/insights/internal/service"
	"github.com/castlemilk/pfinance/insights/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	modeDetect   = "detect"
	modeForecast = "forecast"
	modeBoth     = "both"
)

type options struct {
	userID     int64
	from       string
	to         string
	threshold  float64
	mode       string
	seedFile   string
	demoMonths int
	envFile    string
}

// seedRecord is one row of a -seed file for the memory backend.
type seedRecord struct {
	ID           int64               `json:"id"`
	UserID       int64               `json:"user_id"`
	Amount       decimal.NullDecimal `json:"amount"`
	CategoryID   int64               `json:"category_id"`
	CategoryName *string             `json:"category_name"`
	Date         string              `json:"date"`
	Type         string              `json:"type"`
}

type output struct {
	Anomalies *anomaly.Result  `json:"anomalies,omitempty"`
	Forecast  *forecast.Result `json:"forecast,omitempty"`
}

func main() {
	var opts options
	flag.Int64Var(&opts.userID, "user", 0, "user id to analyse")
	flag.StringVar(&opts.from, "from", "", "window start date (YYYY-MM-DD), defaults to one year before -to")
	flag.StringVar(&opts.to, "to", "", "window end date (YYYY-MM-DD), defaults to today")
	flag.Float64Var(&opts.threshold, "threshold", -1, "anomaly strictness in [0,1], defaults to INSIGHTS_ANOMALY_DEFAULT_THRESHOLD")
	flag.StringVar(&opts.mode, "mode", modeBoth, "detect, forecast or both")
	flag.StringVar(&opts.seedFile, "seed", "", "JSON file of transactions to load into the memory backend")
	flag.IntVar(&opts.demoMonths, "demo-months", 0, "generate this many months of demo history for -user in the memory backend")
	flag.StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before the environment")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "insights:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, w io.Writer) error {
	detect := opts.mode == modeDetect || opts.mode == modeBoth
	predict := opts.mode == modeForecast || opts.mode == modeBoth
	if !detect && !predict {
		return fmt.Errorf("unknown mode %q", opts.mode)
	}

	cfg, err := config.Load(zap.NewNop(), opts.envFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	start, end, err := window(opts.from, opts.to, time.Now())
	if err != nil {
		return err
	}

	source, closeSource, err := openSource(ctx, cfg, opts, end, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	svc := service.NewInsightsService(store.NewLoader(source, cfg.StoreBackend, logger), serviceConfig(cfg), logger)
	defer svc.Close()

	var out output
	if detect {
		req := service.AnomalyRequest{UserID: opts.userID, StartDate: start, EndDate: end}
		if opts.threshold >= 0 {
			req.Threshold = &opts.threshold
		}
		result, err := svc.DetectAnomalies(ctx, req)
		if err != nil {
			return err
		}
		out.Anomalies = result
	}
	if predict {
		out.Forecast = svc.ForecastExpenses(ctx, service.ForecastRequest{UserID: opts.userID, StartDate: start, EndDate: end})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func serviceConfig(cfg *config.Config) service.Config {
	locale := i18n.Parse(cfg.Locale)

	sc := service.DefaultConfig()
	sc.DefaultThreshold = cfg.AnomalyDefaultThreshold
	sc.Anomaly.NEstimators = cfg.AnomalyEstimators
	sc.Anomaly.Locale = locale
	sc.Forecast.NEstimators = cfg.ForecastEstimators
	sc.Forecast.Locale = locale
	sc.Forecast.CacheMaxUsers = cfg.ModelCacheMaxUsers
	sc.Forecast.CacheTTL = cfg.ModelCacheTTL
	return sc
}

func openSource(ctx context.Context, cfg *config.Config, opts options, end time.Time, logger *zap.Logger) (store.Source, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, closer, err := database.New(ctx, logger, database.Config{
			DSN:      cfg.PostgresDSN,
			MaxConns: cfg.PostgresMaxConns,
			MinConns: cfg.PostgresMinConns,
			Retry:    database.DefaultConnectRetryConfig,
		})
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgresStore(pool), closer, nil

	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		logger.Info("firestore_store_selected", zap.String("project_id", cfg.FirestoreProjectID))
		return store.NewFirestoreStore(client), func() { client.Close() }, nil

	default:
		mem := store.NewMemoryStore()
		if opts.seedFile != "" {
			n, err := seedMemoryStore(ctx, mem, opts.seedFile)
			if err != nil {
				return nil, nil, err
			}
			logger.Info("memory_store_seeded", zap.String("file", opts.seedFile), zap.Int("n_transactions", n))
		}
		if opts.demoMonths > 0 {
			n := mem.SeedDemo(ctx, store.DemoConfig{UserID: opts.userID, Months: opts.demoMonths, Seed: 42, End: end})
			logger.Info("memory_store_seeded", zap.String("file", "demo"), zap.Int("n_transactions", n))
		}
		return mem, func() {}, nil
	}
}

func seedMemoryStore(ctx context.Context, mem *store.MemoryStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}
	var rows []seedRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, row := range rows {
		date, err := time.Parse(time.DateOnly, row.Date)
		if err != nil {
			return 0, fmt.Errorf("seed row %d: %w", i, err)
		}
		mem.AddTransaction(ctx, store.Record{
			ID:           row.ID,
			UserID:       row.UserID,
			Amount:       row.Amount,
			CategoryID:   row.CategoryID,
			CategoryName: row.CategoryName,
			Date:         date,
			Type:         row.Type,
		})
	}
	return len(rows), nil
}

// window resolves the -from/-to flags against now.
func window(from, to string, now time.Time) (time.Time, time.Time, error) {
	end := store.DateOf(now)
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
		end = t
	}
	start := end.AddDate(-1, 0, 0)
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
		}
		start = t
	}
	return start, end, nil
}
