package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"gocloud.dev/secrets"

	// Register KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// RunCreateMasterKey generates a cryptographically secure 32-byte master key
// for profile blob encryption and prints it as environment variable lines.
//
// Without KMS parameters the key is printed as plain base64, suitable for
// local development only. With a provider and key URI the key is wrapped
// through the KMS first, so the plaintext never reaches the output.
func RunCreateMasterKey(ctx context.Context, writer io.Writer, kmsProvider, kmsKeyURI string) error {
	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}

	if kmsProvider == "" {
		fmt.Fprintln(writer, "# Plaintext mode: do not use this in production")
		fmt.Fprintf(writer, "BLOB_MASTER_KEY=%q\n", base64.StdEncoding.EncodeToString(masterKey))
		return nil
	}

	if kmsKeyURI == "" {
		return fmt.Errorf("--kms-key-uri is required when --kms-provider is set")
	}

	keeper, err := secrets.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			fmt.Fprintf(writer, "# Warning: failed to close KMS keeper: %v\n", closeErr)
		}
	}()

	ciphertext, err := keeper.Encrypt(ctx, masterKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt master key with KMS: %w", err)
	}

	fmt.Fprintf(writer, "# Master key wrapped with %s\n", kmsProvider)
	fmt.Fprintf(writer, "BLOB_MASTER_KEY=%q\n", base64.StdEncoding.EncodeToString(ciphertext))
	fmt.Fprintf(writer, "KMS_PROVIDER=%q\n", kmsProvider)
	fmt.Fprintf(writer, "KMS_KEY_URI=%q\n", kmsKeyURI)
	return nil
}
