package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"conductor/internal/infra/config"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [value]",
	Short: "Encrypt a provider API key for use in the config file",
	Long: `Encrypts a value with the passphrase in CONDUCTOR_CONFIG_KEY and prints it
with the "enc:" prefix. Paste the output into an api_key field; Load decrypts
it when the same passphrase is set. Without an argument the value is read
from the first line of stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEncrypt,
}

func init() {
	rootCmd.AddCommand(encryptCmd)
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	passphrase := os.Getenv("CONDUCTOR_CONFIG_KEY")
	if passphrase == "" {
		return errors.New("CONDUCTOR_CONFIG_KEY is not set")
	}

	var value string
	if len(args) == 1 {
		value = args[0]
	} else {
		sc := bufio.NewScanner(cmd.InOrStdin())
		if sc.Scan() {
			value = sc.Text()
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read value: %w", err)
		}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("nothing to encrypt")
	}

	enc, err := config.EncryptValue(value, passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enc:%s\n", enc)
	return nil
}
