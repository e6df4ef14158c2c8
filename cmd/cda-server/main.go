package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/clinicaldocs/internal/config"
	"github.com/ehr/clinicaldocs/internal/platform/db"
	"github.com/ehr/clinicaldocs/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cda-server",
		Short:         "Clinical document engine maintenance CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(revalidateCmd())
	rootCmd.AddCommand(healthCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// migrationsFS returns the embedded migrations unless dir overrides them.
func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

// env bundles what every database-backed command needs.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	tenant string
}

// connect loads configuration and opens a pool. With tenantScoped the pool
// resolves tables in the schema of the --tenant flag, else DEFAULT_TENANT.
func connect(cmd *cobra.Command, tenantScoped bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: newLogger(cfg, os.Stderr), tenant: cfg.DefaultTenant}
	if cmd.Flags().Lookup("tenant") != nil {
		if t, _ := cmd.Flags().GetString("tenant"); t != "" {
			e.tenant = t
		}
	}

	ctx := cmd.Context()
	if tenantScoped {
		e.pool, err = db.NewTenantPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, e.tenant)
	} else {
		e.pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	}
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Str("tenant", e.tenant).Msg("connected to database")
	return e, nil
}

func (e *env) Close() { e.pool.Close() }

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if !db.ValidTenantID(e.tenant) {
				return fmt.Errorf("invalid tenant identifier: %s", e.tenant)
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = e.cfg.MigrationsDir
			}
			schema := db.SchemaName(e.tenant)

			migrator := db.NewMigrator(e.pool, migrationsFS(dir))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, e.tenant)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("tenant", "", "Tenant whose schema is migrated (default DEFAULT_TENANT)")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = e.cfg.MigrationsDir
			}
			schema := db.SchemaName(e.tenant)

			migrator := db.NewMigrator(e.pool, migrationsFS(dir))
			statuses, err := migrator.Status(ctx, e.tenant)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied() {
					status = "applied"
					if s.Changed {
						status = "changed"
					}
					appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("tenant", "", "Tenant whose schema is inspected (default DEFAULT_TENANT)")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return errors.New("--name is required")
			}

			ctx := cmd.Context()
			e, err := connect(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, e.pool, name, migrationsFS(e.cfg.MigrationsDir)); err != nil {
				return err
			}
			e.logger.Info().Str("tenant", name).Msg("tenant created")
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database and cache connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			stats, err := db.CheckHealth(ctx, e.pool)
			if err != nil {
				return err
			}
			fmt.Printf("database: ok (%d/%d connections)\n", stats.TotalConns, stats.MaxConns)

			client, err := openCache(ctx, e.cfg)
			if err != nil {
				return err
			}
			if client == nil {
				fmt.Println("cache: not configured")
				return nil
			}
			defer client.Close()
			if err := client.Health(ctx); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
			fmt.Println("cache: ok")
			return nil
		},
	}
}
