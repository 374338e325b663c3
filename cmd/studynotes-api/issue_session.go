package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type issueSessionOptions struct {
	userID      string
	email       string
	displayName string
	roles       []string
	ttl         time.Duration
}

// newIssueSessionCommand mints a session token signed with the configured TAuth secret,
// for local development and smoke tests against a running server.
func newIssueSessionCommand() *cobra.Command {
	options := issueSessionOptions{}
	cmd := &cobra.Command{
		Use:   "issue-session",
		Short: "Print a signed session token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := strings.TrimSpace(viper.GetString("tauth.signing_secret"))
			if secret == "" {
				return errors.New("tauth.signing_secret is required")
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(secret),
				Issuer:        viper.GetString("tauth.issuer"),
				TokenTTL:      options.ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(auth.SessionIdentity{
				UserID:      options.userID,
				Email:       options.email,
				DisplayName: options.displayName,
				Roles:       options.roles,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s=%s\n", viper.GetString("tauth.cookie_name"), token)
			fmt.Fprintf(out, "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&options.userID, "user-id", "", "User identifier placed in the token")
	flags.StringVar(&options.email, "email", "", "User email")
	flags.StringVar(&options.displayName, "name", "", "User display name")
	flags.StringSliceVar(&options.roles, "role", []string{"student"}, "Roles granted to the user")
	flags.DurationVar(&options.ttl, "ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
