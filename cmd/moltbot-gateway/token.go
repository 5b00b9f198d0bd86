// ABOUTME: token commands: issue JWTs for new principals, revoke and list principals
// ABOUTME: Every change is written to the audit log with actor "cli"

package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/moltbot-gateway/internal/auth"
	"github.com/2389/moltbot-gateway/internal/config"
	"github.com/2389/moltbot-gateway/internal/store"
)

const (
	cliActor           = "cli"
	defaultTokenTTL    = 30 * 24 * time.Hour
	maxDisplayNameSize = 100
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage principal tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	cmd.AddCommand(newTokenRevokeCmd())
	cmd.AddCommand(newTokenListCmd())
	return cmd
}

// openStore loads config and opens the principal store.
func openStore(cmd *cobra.Command) (*config.Config, *store.SQLiteStore, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, s, nil
}

func newTokenIssueCmd() *cobra.Command {
	var (
		name   string
		role   string
		scopes []string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Create a principal and print a signed token for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return errors.New("--name is required")
			}
			if len(name) > maxDisplayNameSize {
				return fmt.Errorf("display name exceeds maximum length of %d characters", maxDisplayNameSize)
			}
			if role != auth.RoleOperator && role != auth.RoleNode {
				return fmt.Errorf("--role must be %s or %s", auth.RoleOperator, auth.RoleNode)
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			cfg, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured (required to issue tokens)")
			}
			verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return fmt.Errorf("creating JWT verifier: %w", err)
			}

			ctx := runContext(cmd)
			principal := &store.Principal{
				ID:          uuid.New().String(),
				DisplayName: name,
				Role:        role,
				Scopes:      scopes,
				Status:      store.PrincipalStatusActive,
				CreatedAt:   time.Now().UTC(),
			}
			if err := s.CreatePrincipal(ctx, principal); err != nil {
				return fmt.Errorf("creating principal: %w", err)
			}
			if err := s.AppendAuditLog(ctx, &store.AuditEntry{
				Actor:    cliActor,
				Action:   store.AuditCreatePrincipal,
				TargetID: principal.ID,
				Detail:   map[string]any{"display_name": name, "role": role, "scopes": scopes},
			}); err != nil {
				return fmt.Errorf("writing audit log: %w", err)
			}

			token, err := verifier.Generate(principal.ID, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			expiresAt := time.Now().Add(ttl).UTC()
			if err := s.AppendAuditLog(ctx, &store.AuditEntry{
				Actor:    cliActor,
				Action:   store.AuditIssueToken,
				TargetID: principal.ID,
				Detail:   map[string]any{"expires_at": expiresAt.Format(time.RFC3339)},
			}); err != nil {
				return fmt.Errorf("writing audit log: %w", err)
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			green := color.New(color.FgGreen)
			green.Fprintf(errOut, "  ✓ Created principal %s (%s)\n", name, principal.ID)
			fmt.Fprintf(errOut, "    Role:    %s\n", role)
			fmt.Fprintf(errOut, "    Scopes:  %s\n", strings.Join(scopes, ", "))
			fmt.Fprintf(errOut, "    Expires: %s\n", expiresAt.Format("Jan 02, 2006"))
			fmt.Fprintln(out, token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "display name for the principal")
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "role granted to the principal (operator or node)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scope granted to the principal (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime")
	return cmd
}

func newTokenRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <principal-id>",
		Short: "Revoke a principal; its tokens stop working immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := runContext(cmd)
			id := args[0]
			if err := s.RevokePrincipal(ctx, id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("principal %s not found", id)
				}
				return err
			}
			if err := s.AppendAuditLog(ctx, &store.AuditEntry{
				Actor:    cliActor,
				Action:   store.AuditRevokePrincipal,
				TargetID: id,
			}); err != nil {
				return fmt.Errorf("writing audit log: %w", err)
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "  ✓ Revoked principal %s\n", id)
			return nil
		},
	}
}

func newTokenListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List principals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			principals, err := s.ListPrincipals(runContext(cmd))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tROLE\tSCOPES\tSTATUS\tLAST SEEN")
			for _, p := range principals {
				lastSeen := "never"
				if p.LastSeen != nil {
					lastSeen = p.LastSeen.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.DisplayName, p.Role, strings.Join(p.Scopes, ","), p.Status, lastSeen)
			}
			return tw.Flush()
		},
	}
}
