package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"gocloud.dev/secrets"

	// Register KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// LoadMasterKey resolves the 32-byte blob master key.
//
// Without a KMS provider the encoded value is the key itself (base64).
// With a KMS provider the encoded value is a wrapped key that is unwrapped
// through a gocloud.dev secrets keeper at the configured key URI, so the
// plaintext key only ever exists in memory.
func LoadMasterKey(ctx context.Context, encodedKey, kmsProvider, kmsKeyURI string) ([]byte, error) {
	if encodedKey == "" {
		return nil, errors.New("blob master key is not configured")
	}

	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode blob master key: %w", err)
	}

	if kmsProvider == "" {
		if len(raw) != 32 {
			return nil, fmt.Errorf("blob master key must be 32 bytes, got %d", len(raw))
		}
		return raw, nil
	}

	if kmsKeyURI == "" {
		return nil, errors.New("KMS provider configured without a key URI")
	}

	keeper, err := secrets.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer keeper.Close()

	unwrapped, err := keeper.Decrypt(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap blob master key: %w", err)
	}

	if len(unwrapped) != 32 {
		return nil, fmt.Errorf("unwrapped blob master key must be 32 bytes, got %d", len(unwrapped))
	}

	return unwrapped, nil
}
