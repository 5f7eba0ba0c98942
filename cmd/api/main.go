package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	"github.com/mohammadpnp/bulk-import/internal/bootstrap"
	"github.com/mohammadpnp/bulk-import/internal/config"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
	infrafile "github.com/mohammadpnp/bulk-import/internal/infrastructure/file"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "bulk-import",
		Short: "Asynchronous CSV and XLSX bulk import service",
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("BULKIMPORT_CONFIG"), "path to a TOML config file")

	root.AddCommand(serveCommand(&configPath), migrateCommand(&configPath), importCommand(&configPath))
	return root
}

// setup loads config, builds the logger and opens the database.
func setup(ctx context.Context, configPath string) (config.Config, *zap.Logger, *bootstrap.Database, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, err := bootstrap.NewLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	db, err := bootstrap.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		_ = logger.Sync()
		return config.Config{}, nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, cfg.Archive.Enabled); err != nil {
			db.Close()
			return config.Config{}, nil, nil, err
		}
	}
	return cfg, logger, db, nil
}

func serveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and import workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, logger, db, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer db.Close()

			a, err := bootstrap.NewApp(cfg, db, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Run(cmd.Context())
		},
	}
}

func migrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create target, staging and archive tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := bootstrap.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := bootstrap.OpenDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context(), cfg.Archive.Enabled); err != nil {
				return err
			}
			logger.Info("schema migrated", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}

func importCommand(configPath *string) *cobra.Command {
	var (
		tableType      string
		idempotencyKey string
		baseDir        string
		additional     map[string]string
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a local file and print the finished job as JSON",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := domain.ParseTableType(tableType); err != nil {
				return fmt.Errorf("--table: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			cfg, logger, db, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer db.Close()

			data, name, err := infrafile.NewLocalSource(baseDir, cfg.Import.MaxFileSize).Read(ctx, args[0])
			if err != nil {
				return err
			}

			a, err := bootstrap.NewApp(cfg, db, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			workerCtx, stopWorkers := context.WithCancel(ctx)
			wait := a.StartWorkers(workerCtx)
			defer func() {
				stopWorkers()
				_ = wait()
			}()

			job, err := a.ImportAndWait(ctx, app.SubmitImportInput{
				TableType:      tableType,
				FileName:       name,
				Data:           data,
				IdempotencyKey: idempotencyKey,
				AdditionalData: additional,
			}, func(v domain.JobView) {
				logger.Info("import progress",
					zap.String("stage", v.Progress.Stage),
					zap.Int64("current", v.Progress.Current),
					zap.Int64("total", v.Progress.Total),
				)
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(job); err != nil {
				return err
			}
			if job.Status != domain.StatusCompleted {
				return fmt.Errorf("import %s: %s", job.Status, job.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&tableType, "table", "t", "", "table type, one of items, stores, staff, pricelists, transfer_items")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "idempotency key, derived from the file when empty")
	cmd.Flags().StringVar(&baseDir, "base-dir", ".", "directory relative paths are resolved against")
	cmd.Flags().StringToStringVar(&additional, "data", nil, "additional data, e.g. --data transferOrderNumber=TO-001")
	return cmd
}
