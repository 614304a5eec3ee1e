package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheGojiOG/mc-server-wrapper/internal/crypto"
)

// newEncryptSecretCmd produces enc: values for destination credentials.
func newEncryptSecretCmd() *cobra.Command {
	var generate bool
	cmd := &cobra.Command{
		Use:   "encrypt-secret [value]",
		Short: "Encrypt a credential with $ENCRYPTION_KEY for use in config.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if generate {
				key, err := crypto.GenerateKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, key)
				return nil
			}

			value := ""
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no value given on the command line or stdin")
				}
				value = strings.TrimRight(line, "\r\n")
			}

			manager, err := crypto.NewEncryptionManager()
			if err != nil {
				return err
			}
			encrypted, err := manager.EncryptSecret(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, encrypted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&generate, "generate-key", false, "print a new random ENCRYPTION_KEY instead")
	return cmd
}
