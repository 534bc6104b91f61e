package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/portagedev/portage/pkg/storage/factory"
	"github.com/portagedev/portage/pkg/transfer"
)

func newExportCommand() *Command {
	cmd := &Command{
		Name:        "export",
		Description: "Export a user's data graph to a snapshot file",
		Flags:       flag.NewFlagSet("export", flag.ExitOnError),
		Run:         runExport,
	}

	cmd.Flags.String("user", "", "User ID to export")
	cmd.Flags.String("backend", "sqlite", "Backend to export from (sqlite or postgres)")
	cmd.Flags.String("out", "", "Output file path")

	return cmd
}

func runExport(args []string) error {
	cmd := newExportCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	userID := cmd.Flags.Lookup("user").Value.String()
	backend := cmd.Flags.Lookup("backend").Value.String()
	out := cmd.Flags.Lookup("out").Value.String()

	if userID == "" {
		return fmt.Errorf("user is required")
	}
	if out == "" {
		out = fmt.Sprintf("portage-export-%s.json", userID)
	}

	log := cliLogger()
	ctx := context.Background()

	adapter, err := resolveBackend(ctx, factory.New(log), backend)
	if err != nil {
		return err
	}

	snap, err := transfer.NewExporter(adapter, log).ExportToFile(ctx, userID, out)
	if err != nil {
		return err
	}

	fmt.Printf("Exported %d records for user %s to %s\n",
		snap.Metadata.TotalRecords, userID, out)
	fmt.Printf("Checksum: %s\n", snap.Metadata.Checksum)
	return nil
}
