package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tableguard/tableguard/examples/scanners"
	"github.com/tableguard/tableguard/internal/config"
	"github.com/tableguard/tableguard/internal/retry"
	"github.com/tableguard/tableguard/internal/scan"
	"github.com/tableguard/tableguard/internal/schedule"
	"github.com/tableguard/tableguard/internal/scheduler"
	"github.com/tableguard/tableguard/pkg/types"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "tableguard",
	Short: "tableguard manages scheduled data-quality scans",
	Long: `Operations CLI for the tableguard scan scheduler.
Talks directly to the Redis schedule repository.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func init() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	redisOpts := scheduler.RedisOptions{
		URL:            cfg.Redis.URL,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		ConnectTimeout: cfg.Redis.Timeout,
		CommandTimeout: cfg.Redis.Timeout,
	}

	setupCommands(redisOpts, logger)
}

func setupCommands(redisOpts scheduler.RedisOptions, logger *zap.Logger) {
	var listCmd = &cobra.Command{
		Use:   "schedules",
		Short: "List schedules",
		Run: func(cmd *cobra.Command, args []string) {
			listSchedules(redisOpts, logger)
		},
	}

	var database, schemaName, table, scanType, recurrence, timeOfDay string
	var createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a scan schedule",
		Run: func(cmd *cobra.Command, args []string) {
			createSchedule(redisOpts, logger, database, schemaName, table, scanType, recurrence, timeOfDay)
		},
	}
	createCmd.Flags().StringVarP(&database, "database", "d", "", "Target database (required)")
	createCmd.Flags().StringVarP(&schemaName, "schema", "s", "", "Target schema (required)")
	createCmd.Flags().StringVarP(&table, "table", "t", "", "Target table (required)")
	createCmd.Flags().StringVar(&scanType, "scan", "checks", "Scan type (profiling, checks, full, anomalies)")
	createCmd.Flags().StringVarP(&recurrence, "recurrence", "r", "daily", "Recurrence (hourly, daily, weekly, monthly)")
	createCmd.Flags().StringVar(&timeOfDay, "at", "02:00", "Time of day, HH:MM")
	createCmd.MarkFlagRequired("database")
	createCmd.MarkFlagRequired("schema")
	createCmd.MarkFlagRequired("table")

	var scheduleID string
	var runNowCmd = &cobra.Command{
		Use:   "run-now",
		Short: "Force a schedule to run on the next tick",
		Run: func(cmd *cobra.Command, args []string) {
			runNow(redisOpts, logger, scheduleID)
		},
	}
	runNowCmd.Flags().StringVarP(&scheduleID, "id", "i", "", "Schedule ID (required)")
	runNowCmd.MarkFlagRequired("id")

	var tickCmd = &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass against the repository",
		Run: func(cmd *cobra.Command, args []string) {
			runTick(redisOpts, logger)
		},
	}

	var statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show lifetime schedule counters",
		Run: func(cmd *cobra.Command, args []string) {
			showStats(redisOpts, logger)
		},
	}

	var healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check repository health",
		Run: func(cmd *cobra.Command, args []string) {
			checkHealth(redisOpts, logger)
		},
	}

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(runNowCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}

func openRepo(redisOpts scheduler.RedisOptions, logger *zap.Logger) *scheduler.RedisRepository {
	repo, err := scheduler.NewRedisRepository(redisOpts)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	return repo
}

func listSchedules(redisOpts scheduler.RedisOptions, logger *zap.Logger) {
	repo := openRepo(redisOpts, logger)
	defer repo.Close()

	schedules, err := repo.List(context.Background())
	if err != nil {
		logger.Error("Failed to list schedules", zap.Error(err))
		return
	}

	fmt.Printf("Schedules (%d):\n", len(schedules))
	fmt.Printf("---------------\n")
	for _, s := range schedules {
		desc := string(s.RecurrenceType)
		if expr, err := schedule.ToIntervalExpression(s.RecurrenceType, s.TimeOfDay, s.DaysOfWeek); err == nil {
			desc = schedule.Describe(expr)
		}
		fmt.Printf("  %s  %-8s %-10s %s  next=%s failures=%d\n",
			s.ID, s.Status, s.ScanType, desc,
			s.NextRunAt.Format(time.RFC3339), s.FailureCount)
	}
}

func createSchedule(redisOpts scheduler.RedisOptions, logger *zap.Logger, database, schemaName, table, scanType, recurrence, timeOfDay string) {
	repo := openRepo(redisOpts, logger)
	defer repo.Close()

	s := types.NewSchedule(types.Target{
		Database: database,
		Schema:   schemaName,
		Table:    table,
	}, types.ScanType(scanType), types.RecurrenceType(recurrence))
	s.TimeOfDay = timeOfDay

	resolver := schedule.NewResolver()
	next, err := resolver.NextRunForSchedule(s)
	if err != nil {
		logger.Error("Invalid recurrence configuration", zap.Error(err))
		return
	}
	s.NextRunAt = next

	if err := repo.Create(context.Background(), s); err != nil {
		logger.Error("Failed to create schedule", zap.Error(err))
		return
	}

	fmt.Printf("Schedule created:\n")
	fmt.Printf("  ID: %s\n", s.ID)
	fmt.Printf("  Target: %s\n", s.Target)
	fmt.Printf("  Next run: %s\n", s.NextRunAt.Format(time.RFC3339))
}

func runNow(redisOpts scheduler.RedisOptions, logger *zap.Logger, scheduleID string) {
	repo := openRepo(redisOpts, logger)
	defer repo.Close()

	if err := repo.SetNextRun(context.Background(), scheduleID, time.Now().UTC()); err != nil {
		logger.Error("Failed to force next run", zap.Error(err))
		return
	}

	fmt.Printf("Schedule %s will run on the next tick\n", scheduleID)
}

// runTick executes one inline driver pass with the simulated scanners. Real
// deployments trigger the long-running scheduler binary over HTTP instead.
func runTick(redisOpts scheduler.RedisOptions, logger *zap.Logger) {
	repo := openRepo(redisOpts, logger)
	defer repo.Close()

	registry := scan.NewRegistry(logger)
	registry.Register(scanners.NewProfilingScanner(logger))
	registry.Register(scanners.NewChecksScanner(logger))
	registry.Register(scanners.NewAnomaliesScanner(logger))

	driver := scheduler.NewDriver(scheduler.Config{
		BatchSize:   10,
		UseQueue:    false,
		RetryPolicy: retry.DefaultPolicy(),
	}, repo, registry, schedule.NewResolver(), logger)

	result, err := driver.Tick(context.Background())
	if err != nil {
		logger.Error("Tick failed", zap.Error(err))
		return
	}

	fmt.Printf("Tick complete: due=%d succeeded=%d failed=%d skipped=%d\n",
		result.Due, result.Succeeded, result.Failed, result.Skipped)
}

func showStats(redisOpts scheduler.RedisOptions, logger *zap.Logger) {
	repo := openRepo(redisOpts, logger)
	defer repo.Close()

	stats, err := repo.Stats(context.Background())
	if err != nil {
		logger.Error("Failed to read schedule stats", zap.Error(err))
		return
	}

	fmt.Printf("Schedule stats:\n")
	for _, field := range []string{"created", "executed", "failed"} {
		fmt.Printf("  %-8s %d\n", field, stats[field])
	}
}

func checkHealth(redisOpts scheduler.RedisOptions, logger *zap.Logger) {
	repo, err := scheduler.NewRedisRepository(redisOpts)
	if err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		fmt.Println("Health check failed: Redis connection error")
		return
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := repo.Health(ctx); err != nil {
		logger.Error("Redis health check failed", zap.Error(err))
		fmt.Println("Health check failed: Redis unhealthy")
		return
	}

	fmt.Println("Health check passed")
	fmt.Println("  Redis: connected and healthy")
}
