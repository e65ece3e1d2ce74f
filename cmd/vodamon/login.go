package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mwiesel/vodamon/internal/config"
	"github.com/mwiesel/vodamon/internal/vodafone"
)

func newLoginCommand(configPath *string) *cobra.Command {
	var username, password string
	var contracts []string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Validate MeinVodafone credentials and add the account to the config.",
		Long: `Login checks the credentials against MeinVodafone, lists the account's
mobile contracts, and stores the account in the config file. Without
--contract all discovered contracts are polled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)

			reader := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Username: ")
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading username: %w", err)
				}
				username = strings.TrimSpace(line)
			}
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
				password = strings.TrimSpace(line)
			}
			if username == "" || password == "" {
				return fmt.Errorf("username and password are required")
			}

			client := vodafone.NewClient(username, password, logger)
			defer client.Close()

			if !client.Login(cmd.Context()) {
				return fmt.Errorf("login failed for %s: check username and password", username)
			}

			discovered := client.Contracts(cmd.Context())
			if len(discovered) == 0 {
				return fmt.Errorf("no mobile contracts found for %s", username)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Login OK. Mobile contracts: %s\n", strings.Join(discovered, ", "))

			if len(contracts) > 0 {
				unknown, _ := lo.Difference(contracts, discovered)
				if len(unknown) > 0 {
					return fmt.Errorf("contracts not found on this account: %s", strings.Join(unknown, ", "))
				}
			}

			account := config.AccountConfig{
				Username:  username,
				Password:  password,
				Contracts: contracts,
			}
			replaced := false
			for i := range cfg.Accounts {
				if cfg.Accounts[i].Username == username {
					cfg.Accounts[i] = account
					replaced = true
					break
				}
			}
			if !replaced {
				cfg.Accounts = append(cfg.Accounts, account)
			}

			if err := config.SaveTo(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "MeinVodafone username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "MeinVodafone password")
	cmd.Flags().StringSliceVar(&contracts, "contract", nil, "limit polling to these contract numbers (repeatable)")
	return cmd
}
