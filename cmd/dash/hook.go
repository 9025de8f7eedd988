package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dash/internal/githook"
)

var (
	hookRepo      string
	hookPublicURL string
	hookAPIURL    string
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the GitHub push webhook",
}

var hookCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register the push webhook on the bot's repository",
	Long: `Register a push webhook pointing at this server's /hooks/github route.

The repository, public URL and webhook secret come from the configuration;
the GitHub token is read from webhook.github_token or GITHUB_TOKEN.`,
	Args: cobra.NoArgs,
	RunE: runHookCreate,
}

func init() {
	hookCreateCmd.Flags().StringVar(&hookRepo, "repo", "", "GitHub owner/repo (overrides webhook.repository)")
	hookCreateCmd.Flags().StringVar(&hookPublicURL, "public-url", "", "Public base URL of this server (overrides webhook.public_url)")
	hookCreateCmd.Flags().StringVar(&hookAPIURL, "api-url", "", "GitHub API base URL for GitHub Enterprise")

	hookCmd.AddCommand(hookCreateCmd)
}

func runHookCreate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	repo := cfg.Webhook.Repository
	if hookRepo != "" {
		repo = hookRepo
	}
	publicURL := cfg.Webhook.PublicURL
	if hookPublicURL != "" {
		publicURL = hookPublicURL
	}
	if repo == "" || publicURL == "" {
		return fmt.Errorf("webhook.repository and webhook.public_url are required (or pass --repo and --public-url)")
	}

	registrar, err := githook.NewRegistrar(cmd.Context(), cfg.Webhook.GitHubToken, hookAPIURL)
	if err != nil {
		return err
	}

	hookURL := githook.HookURL(publicURL)
	created, err := registrar.EnsureWebhook(cmd.Context(), repo, hookURL, cfg.Webhook.Secret)
	if err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook created on %s -> %s\n", repo, hookURL)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook already present on %s -> %s\n", repo, hookURL)
	}
	return nil
}
