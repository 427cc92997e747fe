package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

func newReconcileCmd(opts *options, factory ServiceFactory) *cobra.Command {
	var (
		commit mirror.CommitContext
		paths  []string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Mirror the files changed by one commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if commit.Owner == "" || commit.Repo == "" || commit.CommitSHA == "" {
				return errors.New("--owner, --repo and --sha are required")
			}
			return run(cmd, opts, factory, func(ctx context.Context, svc *mirror.Service) (*mirror.Run, error) {
				if len(paths) > 0 {
					return svc.Replay(ctx, commit, paths, "")
				}
				return svc.ReconcileCommit(ctx, commit)
			})
		},
	}
	cmd.Flags().StringVar(&commit.Owner, "owner", "", "Repository owner")
	cmd.Flags().StringVar(&commit.Repo, "repo", "", "Repository name")
	cmd.Flags().StringVar(&commit.CommitSHA, "sha", "", "Commit to mirror")
	cmd.Flags().StringVar(&commit.BaseSHA, "base", "", "Diff against this commit instead of the commit's parent")
	cmd.Flags().StringSliceVar(&paths, "path", nil, "Only mirror these paths (repeatable)")
	return cmd
}
