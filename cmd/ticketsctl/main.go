package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/database"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
	"github.com/noah-isme/activity-ticket-api/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	_ = godotenv.Load()

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TICKETS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	logger := zerolog.New(stderr).With().Timestamp().Str("service", "ticketsctl").Logger()

	root := &cobra.Command{
		Use:           "ticketsctl",
		Short:         "Administrative tasks for the activity ticket API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("database-url", "", "database DSN (env TICKETS_DATABASE_URL); prefix sqlite:// for sqlite")
	_ = v.BindPFlag("database.url", root.PersistentFlags().Lookup("database-url"))

	open := func() (*gorm.DB, error) {
		dsn := v.GetString("database.url")
		if dsn == "" {
			return nil, fmt.Errorf("database url must be provided")
		}
		return database.Connect(dsn)
	}

	root.AddCommand(
		newMigrateCmd(open, stdout),
		newCreateAdminCmd(open, logger, stdout),
		newImportAdminsCmd(open, logger, stdout),
	)
	return root
}

type openFunc func() (*gorm.DB, error)

func newMigrateCmd(open openFunc, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer closeDB(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "schema migrated")
			return nil
		},
	}
}

func newCreateAdminCmd(open openFunc, logger zerolog.Logger, stdout io.Writer) *cobra.Command {
	var (
		payload  dto.AdminCreateRequest
		typeName string
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, or reset an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userType, ok := models.ParseUserType(typeName)
			if !ok || !userType.IsAdmin() {
				return fmt.Errorf("unknown admin type %q", typeName)
			}
			payload.Type = userType

			db, err := open()
			if err != nil {
				return err
			}
			defer closeDB(db)

			admins := adminService(db, logger)
			admin, created, err := admins.EnsureAdmin(cmd.Context(), payload)
			if err != nil {
				return err
			}

			verb := "updated"
			if created {
				verb = "created"
			}
			fmt.Fprintf(stdout, "admin %s %s (%s)\n", admin.ID, verb, admin.Type)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&payload.ID, "id", "", "account id")
	flags.StringVar(&payload.Name, "name", "", "sign-in name")
	flags.StringVar(&typeName, "type", models.UserSU.Role(), "account type (su, instructor, local_org, local_committee, org, committee)")
	flags.StringVar(&payload.Password, "password", "", "password, at least 8 characters")
	flags.StringVar(&payload.Description, "description", "", "free text description")
	flags.StringVar(&payload.Instructor, "instructor", "", "reviewing instructor for organisation accounts")
	flags.StringVar(&payload.Committee, "committee", "", "reviewing committee for organisation accounts")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newImportAdminsCmd(open openFunc, logger zerolog.Logger, stdout io.Writer) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import-admins",
		Short: "Import admins exported from the previous system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			var legacy []dto.LegacyAdmin
			if err := json.Unmarshal(data, &legacy); err != nil {
				return fmt.Errorf("decode %s: %w", file, err)
			}

			db, err := open()
			if err != nil {
				return err
			}
			defer closeDB(db)

			imported, err := adminService(db, logger).ImportLegacy(cmd.Context(), legacy)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "imported %d of %d admins\n", imported, len(legacy))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of legacy admin records")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func adminService(db *gorm.DB, logger zerolog.Logger) service.AdminService {
	repos := repository.NewRepositories(db)
	audit := service.NewAuditService(repos.AuditLogs, logger)
	return service.NewAdminService(repository.NewUnitOfWork(db), repos.Admins, repos.Students, audit, service.NewValidator(), logger)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
