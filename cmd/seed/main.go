// cmd/seed loads development fixtures into the configured store and mints
// tokens for the seeded accounts.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"volunteer-coordination/internal/bootstrap"
	"volunteer-coordination/internal/config"
	"volunteer-coordination/internal/logger"
	"volunteer-coordination/internal/models"
	"volunteer-coordination/internal/storage/mongostore"
	"volunteer-coordination/pkg/auth"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:          "seed",
		Short:        "Development data for the volunteer coordination server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
			return nil
		},
	}

	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load users and events from a YAML file",
		Long: `Load users and events from a YAML file into the store selected by
STORAGE_DRIVER.

Examples:
  seed load -f fixtures/dev.yaml
  STORAGE_DRIVER=bolt seed load -f fixtures/dev.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open fixtures: %w", err)
			}
			defer f.Close()

			fixtures, err := ParseFixtures(f)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			store, err := bootstrap.OpenStore(ctx, cfg, logger.WithComponent("storage"))
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := Load(ctx, fixtures, store, store, time.Now())
			if err != nil {
				return err
			}

			for _, u := range result.Users {
				fmt.Fprintf(cmd.OutOrStdout(), "user   %s  %-9s %s\n", u.ID.Hex(), u.Role, u.Email)
			}
			for _, e := range result.Events {
				fmt.Fprintf(cmd.OutOrStdout(), "event  %s  %s (%s)\n", e.ID.Hex(), e.Title, e.Date.Format("2006-01-02"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixtures file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a JWT for a user id, signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := primitive.ObjectIDFromHex(userID)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			r, ok := models.FromString(role)
			if !ok {
				return fmt.Errorf("invalid --role %q", role)
			}
			token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration).GenerateToken(id, email, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id (required)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", string(models.RoleVolunteer), "volunteer or admin")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Backfill roles, event versions and assignment arrays in MongoDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.StorageDriver != config.DriverMongo {
				return fmt.Errorf("migrate only applies to the %s driver", config.DriverMongo)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.DatabaseName, cfg.MongoTimeout)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.Migrate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "roles: %d, versions: %d, assignment arrays: %d\n",
				result.Roles, result.Versions, result.Assignments)
			return nil
		},
	}
}
