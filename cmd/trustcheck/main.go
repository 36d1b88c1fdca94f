package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/houzhh15/httpsecurity/cmd/trustcheck/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Verify   commands.VerifyCmd   `cmd:"" help:"Verify a detached CMS signature against the pinned signers"`
		CheckTLS commands.CheckTLSCmd `cmd:"" name:"check-tls" help:"Evaluate the certificate chain presented by a TLS server"`
		Inspect  commands.InspectCmd  `cmd:"" help:"Print certificate attributes"`
		Signers  commands.SignersCmd  `cmd:"" help:"Manage the pinned signer registry"`
		Debug    bool                 `help:"Enable debug mode."`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("trustcheck"),
		kong.Description("Certificate trust and pinned signature checks."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
