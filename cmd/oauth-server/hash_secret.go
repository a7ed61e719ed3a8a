package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-core/security"
)

// newHashSecretCommand prints a bcrypt hash for use as secret_hash or
// password_hash in a seed file. The secret is read from stdin when no
// argument is given, so it stays out of shell history.
func newHashSecretCommand() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-secret [secret]",
		Short: "Print a bcrypt hash of a client secret or password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read secret from stdin: %w", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}

			hash, err := security.HashSecret(secret, cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost factor")
	return cmd
}
