package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/portagedev/portage/pkg/model"
	"github.com/portagedev/portage/pkg/storage"
	"github.com/portagedev/portage/pkg/storage/factory"
)

func newBackendsCommand() *Command {
	cmd := &Command{
		Name:        "backends",
		Description: "List supported backends and their reachability",
		Flags:       flag.NewFlagSet("backends", flag.ExitOnError),
		Run:         runBackends,
	}

	cmd.Flags.Duration("timeout", 5*time.Second, "Health check timeout per backend")

	return cmd
}

func runBackends(args []string) error {
	cmd := newBackendsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	timeout, err := time.ParseDuration(cmd.Flags.Lookup("timeout").Value.String())
	if err != nil {
		return err
	}

	f := factory.New(cliLogger())
	for _, kind := range model.Kinds() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		status := backendStatus(ctx, f, kind)
		cancel()
		fmt.Printf("  %-10s %s\n", kind, status)
	}
	return nil
}

func backendStatus(ctx context.Context, f *factory.Factory, kind model.BackendKind) string {
	cfg := storage.ForKind(kind)
	if err := cfg.Validate(); err != nil {
		return fmt.Sprintf("not configured (%v)", err)
	}
	adapter, err := f.Resolve(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("unreachable (%v)", err)
	}
	if err := adapter.HealthCheck(ctx); err != nil {
		return fmt.Sprintf("unhealthy (%v)", err)
	}
	return "ok"
}
