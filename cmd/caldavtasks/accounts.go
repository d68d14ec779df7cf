package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"caldavtasks/connectors"
	"caldavtasks/internal/cli"
	"caldavtasks/internal/credentials"
	"caldavtasks/internal/utils"
)

func (a *App) newAccountsCmd() *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage CalDAV accounts",
		Long: `Show configured accounts and manage their stored passwords.
Accounts themselves are declared in the config file; passwords live in
the OS keyring.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ShowAccounts(cmd.OutOrStdout(), a.store.Accounts())
			return nil
		},
	}

	accountsCmd.AddCommand(&cobra.Command{
		Use:   "set-password <account>",
		Short: "Store an account password in the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, ok := a.store.Account(args[0])
			if !ok {
				return utils.ErrAccountNotFound(args[0])
			}
			if account.Username == "" {
				return utils.ErrInvalidConfig("username", "account has no username configured")
			}
			if !credentials.IsAvailable() {
				return fmt.Errorf("no OS keyring available; set the CALDAVTASKS_{ACCOUNT}_PASSWORD environment variable instead")
			}

			password, err := cli.ReadPassword(fmt.Sprintf("Password for %s@%s: ", account.Username, account.ServerURL))
			if err != nil {
				return err
			}
			if err := credentials.Set(account.Name, account.Username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password stored for account %q\n", account.Name)
			return nil
		},
	})

	accountsCmd.AddCommand(&cobra.Command{
		Use:   "remove-password <account>",
		Short: "Remove an account password from the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, ok := a.store.Account(args[0])
			if !ok {
				return utils.ErrAccountNotFound(args[0])
			}
			if err := credentials.Delete(account.Name, account.Username); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password removed for account %q\n", account.Name)
			return nil
		},
	})

	accountsCmd.AddCommand(&cobra.Command{
		Use:   "test <account>",
		Short: "Check that an account can connect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, ok := a.store.Account(args[0])
			if !ok {
				return utils.ErrAccountNotFound(args[0])
			}
			resolved, err := credentials.Apply(account)
			if err != nil {
				return utils.ErrCredentialsNotFound(account.Name)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := a.client.Reconnect(ctx, resolved); err != nil {
				var terr *connectors.TransportError
				if errors.As(err, &terr) && terr.IsUnauthorized() {
					return utils.ErrAuthenticationFailed(account.Name)
				}
				return utils.ErrServerOffline(account.Name, err.Error())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q connected\n", account.Name)
			return nil
		},
	})

	return accountsCmd
}
