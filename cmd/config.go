package cmd

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// repoFlags are the repository context flags shared by the config commands.
type repoFlags struct {
	repo        schemas.RepositoryContext
	size        string
	criticality string
}

func (r *repoFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&r.repo.RepoType, "repo-type", "", "Repository type (e.g. web, api, library)")
	f.StringVar(&r.repo.Language, "language", "", "Primary language of the repository")
	f.StringVar(&r.repo.Complexity, "complexity", "", "Repository complexity")
	f.StringSliceVar(&r.repo.Frameworks, "framework", nil, "Frameworks used by the repository (repeatable)")
	f.StringVar(&r.size, "size", "", "Repository size: small, medium, large or enterprise")
	f.StringVar(&r.criticality, "criticality", "", "Repository criticality: low, medium, high or critical")
	_ = cmd.MarkFlagRequired("repo-type")
}

func (r *repoFlags) context() schemas.RepositoryContext {
	repo := r.repo
	repo.Size = schemas.RepoSize(r.size)
	repo.Criticality = schemas.Criticality(r.criticality)
	return repo
}

// newConfigCmd groups the analysis config maintenance commands.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and maintain stored analysis configs",
	}
	configCmd.AddCommand(newConfigResolveCmd())
	configCmd.AddCommand(newConfigRefreshCmd())
	return configCmd
}

func newConfigResolveCmd() *cobra.Command {
	var user string
	flags := &repoFlags{}
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the analysis config for a user and repository, creating it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			components, err := createComponents(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			res, err := components.Resolver.Resolve(ctx, user, flags.context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"source":   res.Source,
				"stale":    res.Stale,
				"age_days": res.AgeDays,
				"config":   res.Config,
			})
		},
	}
	resolveCmd.Flags().StringVar(&user, "user", "", "User the config belongs to")
	_ = resolveCmd.MarkFlagRequired("user")
	flags.register(resolveCmd)
	return resolveCmd
}

func newConfigRefreshCmd() *cobra.Command {
	var user string
	flags := &repoFlags{}
	refreshCmd := &cobra.Command{
		Use:   "refresh <config-id>",
		Short: "Re-run model research for a stored config and update it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			components, err := createComponents(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer components.Shutdown()

			update, err := components.Resolver.Refresh(ctx, user, args[0], flags.context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), update)
		},
	}
	refreshCmd.Flags().StringVar(&user, "user", "", "User whose cached resolution is evicted")
	_ = refreshCmd.MarkFlagRequired("user")
	flags.register(refreshCmd)
	return refreshCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
