package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/encounters/internal/storage/postgres"
)

func createAccountCommand(e *env) *cobra.Command {
	var (
		username string
		password string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "Create an account that can authenticate against the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if role != "" && !postgres.ValidRole(role) {
				return fmt.Errorf("invalid role %q: must be one of player, editor, admin", role)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), e.timeout)
			defer cancel()

			pool, err := e.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewAccountRepository(pool.DB())
			acct, err := repo.Create(ctx, username, password)
			if err != nil {
				return fmt.Errorf("creating account: %w", err)
			}
			if role != "" && role != acct.Role {
				if err := repo.SetRole(ctx, acct.ID, role); err != nil {
					return fmt.Errorf("setting role: %w", err)
				}
				acct.Role = role
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) role=%s\n", acct.Username, acct.ID, acct.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username (required)")
	cmd.Flags().StringVar(&password, "password", "", "account password (required)")
	cmd.Flags().StringVar(&role, "role", "", "initial role: player, editor, or admin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func setRoleCommand(e *env) *cobra.Command {
	var (
		username string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of an existing account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			if !postgres.ValidRole(role) {
				return fmt.Errorf("invalid role %q: must be one of player, editor, admin", role)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), e.timeout)
			defer cancel()

			pool, err := e.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewAccountRepository(pool.DB())
			acct, err := repo.GetByUsername(ctx, username)
			if err != nil {
				return fmt.Errorf("looking up account %q: %w", username, err)
			}
			if err := repo.SetRole(ctx, acct.ID, role); err != nil {
				return fmt.Errorf("setting role: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set role for %s (%s): %s -> %s [%s]\n",
				acct.Username, acct.ID, acct.Role, role, time.Since(start))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "target account username (required)")
	cmd.Flags().StringVar(&role, "role", "", "role to assign: player, editor, or admin (required)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
