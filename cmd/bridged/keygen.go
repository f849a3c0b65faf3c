package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bridge-ledger/internal/identity"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 identity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := identity.GenerateSigner()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "identity:    %s\nprivate key: %s\n", s.Identity(), s.Encode())
		return nil
	},
}
