package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sitecontent/internal/blob"
	"sitecontent/internal/config"
	"sitecontent/internal/core"
)

type rootOptions struct {
	configFile string
	cfg        config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sitecontent",
		Short:         "Content API for the marketing site",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = cfg.Logger(cmd.ErrOrStderr())
			slog.SetDefault(opts.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./sitecontent.yaml when present)")
	root.AddCommand(newServeCmd(opts), newExportCmd(opts), newUsersCmd(opts))
	return root
}

// runtime is the storage stack shared by every subcommand.
type runtime struct {
	store core.PersistentStore
	blobs blob.Store
}

func (o *rootOptions) open(ctx context.Context) (*runtime, error) {
	store, err := core.OpenPersistentStore(ctx, o.cfg.StorageOptions(), o.logger)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	blobs, err := blob.Open(ctx, o.cfg.BlobOptions())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	o.logger.Info("storage ready",
		"driver", store.Driver(),
		"blob_driver", blobs.Driver(),
	)
	return &runtime{store: store, blobs: blobs}, nil
}

func (r *runtime) Close() error { return r.store.Close() }
