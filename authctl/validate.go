package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rjw57/componentsdb/internal/auth/oidc"
)

func newValidateTokenCommand(opts *globalOptions) *cobra.Command {
	var (
		provider  string
		audiences []string
		issuers   []string
	)

	cmd := &cobra.Command{
		Use:   "validate-token [TOKEN]",
		Short: "Verify a federated identity token",
		Long: `Verify a federated identity token and print its claims as JSON.

The token is read from the argument, or from stdin when the argument is
omitted or "-". Either name a configured provider or give the accepted
audiences and issuers explicitly.

Examples:
  authctl validate-token --provider google "$ID_TOKEN"
  authctl validate-token --audience my-client --issuer https://accounts.google.com - < token.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			resolver, cache := newResolver(cfg)
			defer cache.Stop()

			ctx, cancel := commandContext()
			defer cancel()

			var claims *oidc.Claims
			switch {
			case provider != "":
				providers, err := cfg.Auth.Providers()
				if err != nil {
					return err
				}
				registry, err := oidc.NewRegistry(resolver, providers)
				if err != nil {
					return err
				}
				_, validator, ok := registry.Get(provider)
				if !ok {
					return fmt.Errorf("no such provider %q (have %s)", provider, strings.Join(registry.List(), ", "))
				}
				claims, err = validator.Validate(ctx, token)
				if err != nil {
					return err
				}
			case len(audiences) > 0 && len(issuers) > 0:
				claims, err = oidc.ValidateToken(ctx, resolver, token, audiences, issuers)
				if err != nil {
					return err
				}
			default:
				return errors.New("either --provider or both --audience and --issuer are required")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims.Map())
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Configured provider to validate against")
	cmd.Flags().StringSliceVar(&audiences, "audience", nil, "Accepted audience (repeatable)")
	cmd.Flags().StringSliceVar(&issuers, "issuer", nil, "Accepted issuer (repeatable)")
	return cmd
}

func readToken(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errors.New("no token given")
	}
	return token, nil
}
