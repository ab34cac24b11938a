package cmd

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clawguard/clawguard/internal/domain/secret"
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Generate a one-time pairing secret for the Telegram notifier",
	Long: `Generate a fresh pairing secret and its Argon2id hash.

Put the hash in telegram.pairing_secret_hash in your config, restart the
gateway, then send the plaintext secret once to the bot as "/pair <secret>"
from the Telegram account that should receive approval prompts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plaintext, err := randomSecret()
		if err != nil {
			return fmt.Errorf("failed to generate pairing secret: %w", err)
		}
		hash, err := secret.Hash(plaintext)
		if err != nil {
			return fmt.Errorf("failed to hash pairing secret: %w", err)
		}
		fmt.Printf("Send this once to the bot: /pair %s\n\n", plaintext)
		fmt.Printf("telegram.pairing_secret_hash for your config:\n  %s\n", hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pairCmd)
}

// randomSecret generates a random, base32-encoded pairing secret.
func randomSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return strings.ToLower(encoded), nil
}
