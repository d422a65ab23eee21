package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/bloodlens/pkg/model"
)

const credentialsFileName = "credentials.json"

type credentials struct {
	Server string `json:"server"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

type loginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a BloodLens server",
		Long:  "Exchange email and password for an API token and store it for later commands.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email == "" {
				if email, err = prompt(cmd.OutOrStdout(), in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(cmd.OutOrStdout(), in, "Password: "); err != nil {
					return err
				}
			}
			if email == "" || password == "" {
				return fmt.Errorf("email and password are required")
			}

			resp, err := client.Post("/api/v1/auth/login", map[string]string{
				"email":    email,
				"password": password,
			})
			if err != nil {
				return err
			}
			var res loginResult
			if err := json.Unmarshal(resp.Data, &res); err != nil {
				return fmt.Errorf("parse login response: %w", err)
			}

			credPath, err := saveCredentials(credentials{Server: client.BaseURL, Email: email, Token: res.Token})
			if err != nil {
				return err
			}

			name := email
			if res.User != nil {
				name = res.User.DisplayName()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", name)
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials saved to %s\n", credPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	return cmd
}

func prompt(w io.Writer, r *bufio.Reader, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func saveCredentials(creds credentials) (string, error) {
	credPath, err := credentialsPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(credPath), 0700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(credPath, data, 0600); err != nil {
		return "", fmt.Errorf("write credentials: %w", err)
	}
	return credPath, nil
}

// credentialsPath returns the path to the credentials file (~/.bloodlens/credentials.json).
func credentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".bloodlens", credentialsFileName), nil
}

// LoadToken reads the stored API token, returning empty string if not found.
func LoadToken() string {
	p, err := credentialsPath()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return ""
	}
	return creds.Token
}
