package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawguard/clawguard/internal/domain/secret"
)

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [value]",
	Short: "Generate an Argon2id hash for a shared secret or PIN",
	Long: `Generate an Argon2id hash of a value for use in config.

The output can be used directly in agent.key_hash, admin.pin_hash, or
telegram.pairing_secret_hash.

Example:
  clawguard hash-secret "my-agent-secret"

Security note: the value will appear in shell history.
Consider clearing history after use or piping from an environment variable:
  clawguard hash-secret "$AGENT_SECRET"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := secret.Hash(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash secret: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashSecretCmd)
}
