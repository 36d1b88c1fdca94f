package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/houzhh15/httpsecurity/cert"
	"github.com/houzhh15/httpsecurity/config"
)

type SignersCmd struct {
	List   SignersListCmd   `cmd:"" help:"List registered signers"`
	Add    SignersAddCmd    `cmd:"" help:"Register a pinned signer"`
	Remove SignersRemoveCmd `cmd:"" help:"Remove a registered signer"`
}

type SignersListCmd struct {
	Config string `help:"Configuration file" required:"" type:"existingfile"`
}

func (c *SignersListCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := setupRegistry(c.Config, globals)
	if err != nil {
		return err
	}
	defer env.Close()

	signers, err := env.registry.SigningCertificates()
	if err != nil {
		return err
	}

	out := globals.out()
	if len(signers) == 0 {
		fmt.Fprintln(out, "No signers registered.")
		return nil
	}
	for _, sc := range signers {
		fingerprint := ""
		if c := cert.DecodePEM([]byte(sc.Certificate)); c != nil {
			fingerprint = c.Fingerprint()
		}
		cn := "-"
		if sc.CommonName != nil {
			cn = *sc.CommonName
		}
		fmt.Fprintf(out, "%-24s %-20s %s\n", sc.Name, cn, fingerprint)
	}
	return nil
}

type SignersAddCmd struct {
	Config                 string  `help:"Configuration file" required:"" type:"existingfile"`
	Name                   string  `help:"Signer name" required:""`
	Certificate            string  `help:"Pinned certificate (PEM)" required:"" type:"existingfile"`
	CommonName             *string `help:"Common name constraint"`
	AuthorityKeyIdentifier string  `name:"aki" help:"Expected signer AKI (hex)"`
	SubjectKeyIdentifier   string  `name:"ski" help:"Expected pinned certificate SKI (hex)"`
	RootSerial             *uint64 `help:"Expected pinned certificate serial"`
}

func (c *SignersAddCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := setupRegistry(c.Config, globals)
	if err != nil {
		return err
	}
	defer env.Close()

	pemText, err := os.ReadFile(c.Certificate)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}
	aki, err := config.DecodeHex(c.AuthorityKeyIdentifier)
	if err != nil {
		return fmt.Errorf("invalid aki: %w", err)
	}
	ski, err := config.DecodeHex(c.SubjectKeyIdentifier)
	if err != nil {
		return fmt.Errorf("invalid ski: %w", err)
	}

	err = env.registry.Register(cert.SigningCertificate{
		Name:                   c.Name,
		Certificate:            string(pemText),
		CommonName:             c.CommonName,
		AuthorityKeyIdentifier: aki,
		SubjectKeyIdentifier:   ski,
		RootSerial:             c.RootSerial,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(globals.out(), "Registered %s\n", c.Name)
	return nil
}

type SignersRemoveCmd struct {
	Config string `help:"Configuration file" required:"" type:"existingfile"`
	Name   string `arg:"" help:"Signer name"`
}

func (c *SignersRemoveCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := setupRegistry(c.Config, globals)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.registry.Remove(c.Name); err != nil {
		return err
	}

	fmt.Fprintf(globals.out(), "Removed %s\n", c.Name)
	return nil
}

func setupRegistry(path string, globals *Globals) (*environment, error) {
	env, err := setup(path, globals)
	if err != nil {
		return nil, err
	}
	if env.registry == nil {
		env.Close()
		return nil, errors.New("registry.dsn is not configured")
	}
	return env, nil
}
