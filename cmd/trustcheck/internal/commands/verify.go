package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/houzhh15/httpsecurity/signing"
)

type VerifyCmd struct {
	Config    string `help:"Configuration file" required:"" type:"existingfile"`
	Signature string `help:"Detached CMS signature, DER or base64" required:"" type:"existingfile"`
	Content   string `help:"Signed content" required:"" type:"existingfile"`
}

func (c *VerifyCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := setup(c.Config, globals)
	if err != nil {
		return err
	}
	defer env.Close()

	signers, err := env.signers()
	if err != nil {
		return err
	}

	mode, err := signing.ParseMode(env.config.Signing.Mode)
	if err != nil {
		return err
	}
	validator, err := signing.New(mode, signers, &signing.Config{
		Logger: env.logger,
		Audit:  env.auditLogger(),
	})
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(c.Signature)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}
	signature, err := decodeSignature(raw)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(c.Content)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	out := globals.out()
	if !validator.Validate(signature, content) {
		fmt.Fprintln(out, "INVALID")
		return ErrInvalidSignature
	}

	fmt.Fprintln(out, "VALID")
	if signer, err := signing.SignerOf(signature); err == nil {
		fmt.Fprintf(out, "Signer: %s\n", signer.Subject)
	}
	return nil
}

// decodeSignature accepts raw DER or its base64 text form.
// DER ends with the signature value and is never trimmed.
func decodeSignature(raw []byte) ([]byte, error) {
	if len(raw) > 0 && raw[0] == 0x30 {
		return raw, nil
	}
	der, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("signature is neither DER nor base64: %w", err)
	}
	return der, nil
}
