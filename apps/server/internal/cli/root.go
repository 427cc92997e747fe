// Package cli implements mirrorctl, which runs one reconciliation from the
// command line with the same wiring as the server.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tilsley/s3mirror/apps/server/internal/bootstrap"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/handler"
	"github.com/tilsley/s3mirror/apps/server/internal/platform/config"
	"github.com/tilsley/s3mirror/pkg/logging"
)

// ErrPartial is returned when a run completed with at least one failed path.
var ErrPartial = errors.New("run completed with failures")

// Exit codes.
const (
	ExitOK      = 0
	ExitFailed  = 1
	ExitPartial = 2
)

// ServiceFactory builds the service a command runs against. The returned
// func releases its resources.
type ServiceFactory func(ctx context.Context, configPath string, stderr io.Writer) (*mirror.Service, func(), error)

type options struct {
	configPath string
	output     string
}

// NewRootCmd builds the mirrorctl command tree.
func NewRootCmd(factory ServiceFactory) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "mirrorctl",
		Short:         "Mirror GitHub commits into an object store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("MIRROR_CONFIG"), "Path to a YAML config file")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "json", "Output format: json or yaml")

	cmd.AddCommand(newReconcileCmd(opts, factory), newEventCmd(opts, factory))
	return cmd
}

// DefaultFactory loads configuration from configPath and the environment and
// wires the service with bootstrap.New. Logs go to stderr.
func DefaultFactory(ctx context.Context, configPath string, stderr io.Writer) (*mirror.Service, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logging.NewWithWriter(stderr, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return app.Service, app.Close, nil
}

// ExitCode maps the error returned by Execute to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPartial):
		return ExitPartial
	default:
		return ExitFailed
	}
}

func run(cmd *cobra.Command, opts *options, factory ServiceFactory, fn func(context.Context, *mirror.Service) (*mirror.Run, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := factory(ctx, opts.configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	if err := render(cmd.OutOrStdout(), opts.output, handler.NewRunResponse(result)); err != nil {
		return err
	}
	if result.Status == mirror.StatusPartial {
		return ErrPartial
	}
	return nil
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
