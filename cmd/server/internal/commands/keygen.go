package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wolfeidau/rentdesk/internal/auth"
)

// KeygenCmd writes a new ES256 private key for --jwt-signing-key.
type KeygenCmd struct {
	Out   string `help:"output path for the PEM encoded key" default:"./.keys/jwt-signing.pem" type:"path"`
	Force bool   `help:"overwrite an existing key" default:"false"`
}

func (c *KeygenCmd) Run(ctx context.Context, globals *Globals) error {
	if !c.Force {
		if _, err := os.Stat(c.Out); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", c.Out)
		}
	}

	key, err := auth.GenerateSigningKey()
	if err != nil {
		return err
	}

	data, err := auth.EncodePrivateKeyPEM(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Out), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(c.Out, data, 0o600); err != nil {
		return fmt.Errorf("failed to write signing key: %w", err)
	}

	fmt.Fprintf(os.Stderr, "wrote signing key to %s\n", c.Out)
	return nil
}
