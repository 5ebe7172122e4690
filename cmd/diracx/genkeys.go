package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// commandGenKeys generates a fresh RSA signing key suitable for
// TOKEN_SIGNING_KEY, the same key material keystore.NewGenerated produces
// for tests, but PEM-encoded to a file or stdout for seeding a real
// deployment instead of staying in memory.
func commandGenKeys() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "genkeys",
		Short: "generate an RSA signing key for TOKEN_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			return genKeys(out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the PEM-encoded key here instead of stdout")
	return cmd
}

func genKeys(out string) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generating RSA key: %w", err)
	}
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}

	if out == "" {
		return pem.Encode(os.Stdout, block)
	}
	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening %s: %w", out, err)
	}
	defer f.Close()
	return pem.Encode(f, block)
}
