package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/portagedev/portage/pkg/storage/factory"
	"github.com/portagedev/portage/pkg/transfer"
)

func newImportCommand() *Command {
	cmd := &Command{
		Name:        "import",
		Description: "Import a snapshot file into a backend",
		Flags:       flag.NewFlagSet("import", flag.ExitOnError),
		Run:         runImport,
	}

	cmd.Flags.String("file", "", "Snapshot file to import")
	cmd.Flags.String("backend", "sqlite", "Backend to import into (sqlite or postgres)")
	cmd.Flags.Bool("overwrite", false, "Replace the user's existing data graph")
	cmd.Flags.Bool("skip-validation", false, "Skip snapshot validation (recorded as a warning)")

	return cmd
}

func runImport(args []string) error {
	cmd := newImportCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	file := cmd.Flags.Lookup("file").Value.String()
	backend := cmd.Flags.Lookup("backend").Value.String()
	overwrite := cmd.Flags.Lookup("overwrite").Value.String() == "true"
	skipValidation := cmd.Flags.Lookup("skip-validation").Value.String() == "true"

	if file == "" {
		return fmt.Errorf("file is required")
	}

	log := cliLogger()
	ctx := context.Background()

	adapter, err := resolveBackend(ctx, factory.New(log), backend)
	if err != nil {
		return err
	}

	opts := transfer.ImportOptions{
		OverwriteExisting: overwrite,
		SkipValidation:    skipValidation,
	}
	result := transfer.NewImporter(adapter, log).ImportFromFile(ctx, file, opts)

	for _, w := range result.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	if !result.Success {
		fmt.Printf("Import failed:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("import of %s into %s failed", file, backend)
	}

	fmt.Printf("Imported %d records into %s\n", result.RecordsImported, backend)
	for _, e := range result.Errors {
		fmt.Printf("Skipped: %s\n", e)
	}
	return nil
}
