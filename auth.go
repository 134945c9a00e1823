package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitwall-dev/apexdata/internal/tokenfile"
)

// errMissingCredentials is returned when login is attempted without the
// full credential set.
var errMissingCredentials = errors.New("missing credentials: identity, password, client ID and client secret are all required (see apexdata login --help)")

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate and save the token pair",
		Long: "Performs the full credential handshake against the token service and saves " +
			"the resulting token pair for later runs. The password and client secret are " +
			"read from the APEXDATA_PASSWORD and APEXDATA_CLIENT_SECRET environment " +
			"variables (a local .env file is honored).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			if !resolvedCfg.HasCredentials() {
				return errMissingCredentials
			}

			client := newAPIClient(logger)

			if err := client.Authenticate(cmd.Context()); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			persistToken(client, logger)
			statusf("Logged in as %s.\n", resolvedCfg.Identity)

			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token pair",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := tokenfile.Remove(resolvedCfg.TokenPath); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}

			statusf("Logged out.\n")

			return nil
		},
	}
}

// memberInfo is the subset of the member info payload shown by whoami.
type memberInfo struct {
	CustID      int64  `json:"cust_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()
			client := newAPIClient(logger)
			defer persistToken(client, logger)

			payload, err := client.Get(cmd.Context(), "/data/member/info", nil)
			if err != nil {
				return err
			}

			if flagJSON {
				fmt.Println(string(payload))

				return nil
			}

			var info memberInfo
			if err := json.Unmarshal(payload, &info); err != nil {
				return fmt.Errorf("parsing member info: %w", err)
			}

			fmt.Printf("Member:    %s\n", info.DisplayName)
			fmt.Printf("Email:     %s\n", info.Email)
			fmt.Printf("Member ID: %d\n", info.CustID)

			return nil
		},
	}
}
