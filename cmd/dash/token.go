package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dash/internal/security"
	"dash/internal/store"
)

var (
	tokenDBPath string
	tokenLabel  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage admin API tokens",
	Long: `Manage the bearer tokens accepted by the admin API routes.

Tokens are stored as SHA-256 hashes; a token is only shown once, when it is
generated.`,
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print a random token or webhook secret without storing it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := security.GenerateToken()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenAddCmd = &cobra.Command{
	Use:   "add [token]",
	Short: "Store an admin token, generating one when none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTokenAdd,
}

var tokenRemoveCmd = &cobra.Command{
	Use:   "remove <token>",
	Short: "Revoke an admin token",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenRemove,
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored admin tokens",
	Args:  cobra.NoArgs,
	RunE:  runTokenList,
}

func init() {
	tokenCmd.PersistentFlags().StringVar(&tokenDBPath, "db", "", "Path to SQLite database (defaults to database.path)")
	tokenAddCmd.Flags().StringVar(&tokenLabel, "label", "", "Free-form note stored with the token")

	tokenCmd.AddCommand(tokenGenerateCmd)
	tokenCmd.AddCommand(tokenAddCmd)
	tokenCmd.AddCommand(tokenRemoveCmd)
	tokenCmd.AddCommand(tokenListCmd)
}

// openTokenStore opens the database named by --db or by the configuration.
func openTokenStore() (*store.Store, error) {
	path := tokenDBPath
	if path == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return nil, fmt.Errorf("%w\n(pass --db to skip loading the configuration)", err)
		}
		path = cfg.Database.Path
	}
	return store.Open(path)
}

func runTokenAdd(cmd *cobra.Command, args []string) error {
	db, err := openTokenStore()
	if err != nil {
		return err
	}
	defer db.Close()

	token := ""
	generated := len(args) == 0
	if generated {
		if token, err = security.GenerateToken(); err != nil {
			return err
		}
	} else {
		token = args[0]
		if err := security.ValidateSecret(token); err != nil {
			return fmt.Errorf("refusing weak token: %w", err)
		}
	}

	if err := db.AddAdminToken(cmd.Context(), token, tokenLabel); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if generated {
		fmt.Fprintln(out, token)
		fmt.Fprintln(cmd.ErrOrStderr(), "Token stored. It will not be shown again.")
	} else {
		fmt.Fprintln(out, "Token stored.")
	}
	return nil
}

func runTokenRemove(cmd *cobra.Command, args []string) error {
	db, err := openTokenStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RemoveAdminToken(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("token not found")
		}
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Token removed.")
	return nil
}

func runTokenList(cmd *cobra.Command, args []string) error {
	db, err := openTokenStore()
	if err != nil {
		return err
	}
	defer db.Close()

	tokens, err := db.ListAdminTokens(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tLABEL\tCREATED")
	for _, t := range tokens {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Hash[:12], t.Label, t.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
