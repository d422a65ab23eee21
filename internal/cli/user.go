package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/bloodlens/internal/auth"
	"github.com/me/bloodlens/internal/config"
	"github.com/me/bloodlens/internal/store"
	"github.com/me/bloodlens/internal/validate"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the local database",
	}
	cmd.AddCommand(newUserAddCmd(), newUserCountCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			form := validate.SignupForm{Name: name, Email: email, Password: password, ConfirmPassword: password}
			if err := validate.Signup(form); err != nil {
				return err
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			provider := auth.NewLocalProvider(st, auth.Options{
				Secret:   cfg.Auth.JWTSecret,
				Issuer:   cfg.Auth.Issuer,
				TokenTTL: cfg.Auth.TokenTTL.Std(),
			}, logger)

			u, err := provider.SignUp(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func newUserCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.CountUsers(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

// openStore opens and migrates the database named by --db.
func openStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	path, err := config.ResolveDBPath(flagDB)
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return st, nil
}
