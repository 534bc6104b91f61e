package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/portagedev/portage/pkg/config"
	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/observability"
	"github.com/portagedev/portage/pkg/storage"
	"github.com/portagedev/portage/pkg/storage/factory"
	"github.com/portagedev/portage/pkg/transfer"
)

func newMigrateCommand() *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Move a user's data graph between backends",
		Flags:       flag.NewFlagSet("migrate", flag.ExitOnError),
		Run:         runMigrate,
	}

	cmd.Flags.String("user", "", "User ID to migrate")
	cmd.Flags.String("from", "", "Source backend (sqlite or postgres)")
	cmd.Flags.String("to", "", "Target backend (sqlite or postgres)")
	cmd.Flags.String("backup", "", "Backup destination (local path or s3://bucket/key)")
	cmd.Flags.Bool("validate", false, "Compare source and target after the migration")

	return cmd
}

func runMigrate(args []string) error {
	cmd := newMigrateCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	userID := cmd.Flags.Lookup("user").Value.String()
	fromName := cmd.Flags.Lookup("from").Value.String()
	toName := cmd.Flags.Lookup("to").Value.String()
	backupPath := cmd.Flags.Lookup("backup").Value.String()
	validate := cmd.Flags.Lookup("validate").Value.String() == "true"

	if userID == "" || fromName == "" || toName == "" {
		return fmt.Errorf("user, from and to are required")
	}
	from, err := model.ParseBackendKind(fromName)
	if err != nil {
		return err
	}
	to, err := model.ParseBackendKind(toName)
	if err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("source and target backend are both %s", from)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log := cliLogger()
	migrator := transfer.NewMigrator(factory.New(log), log, observability.NewNopMetrics()).
		WithS3Config(cfg.Archive)

	ctx := context.Background()
	opts := transfer.MigrateOptions{BackupPath: backupPath, ValidateAfter: validate}
	result := migrator.Migrate(ctx, userID, storage.ForKind(from), storage.ForKind(to), opts)

	for _, w := range result.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	if result.BackupPath != "" {
		fmt.Printf("Backup: %s\n", result.BackupPath)
	}

	if !result.Success {
		fmt.Printf("Migration failed after %s:\n", result.Duration.Round(0))
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("migration of user %s from %s to %s failed", userID, from, to)
	}

	fmt.Printf("Migrated %d records from %s to %s in %s\n",
		result.RecordsMigrated, from, to, result.Duration.Round(0))

	// The user now lives on the target; remember that choice.
	store, err := loadPreferences()
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	store.Set(userID, to)
	if err := savePreferences(store); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	return nil
}
