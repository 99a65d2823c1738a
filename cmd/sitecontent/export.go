package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sitecontent/internal/syncjob"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var mirrors []string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of the content document to the blob store and mirrors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if len(mirrors) == 0 {
				mirrors = opts.cfg.Storage.Mirrors
			}
			return export(ctx, rt, opts, mirrors, cmd)
		},
	}
	cmd.Flags().StringSliceVar(&mirrors, "mirror", nil, "additional file path to write the snapshot to (repeatable)")
	return cmd
}

func export(ctx context.Context, rt *runtime, opts *rootOptions, mirrors []string, cmd *cobra.Command) error {
	worker := syncjob.NewWorker(rt.store, rt.blobs,
		syncjob.WithMirrors(mirrors...),
		syncjob.WithLogger(opts.logger),
	)
	job, err := worker.RunOnce(ctx, "cli")
	if err != nil {
		return err
	}
	if job.Status != syncjob.StatusSucceeded {
		return fmt.Errorf("export %s failed: %s", job.ID, job.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported revision %d to %s\n", job.Revision, job.Artifact.Key)
	for _, m := range job.Mirrors {
		fmt.Fprintf(cmd.OutOrStdout(), "  mirror %s\n", m.Path)
	}
	return nil
}
