package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/houzhh15/httpsecurity/cert"
)

type InspectCmd struct {
	File string `arg:"" help:"Certificate file, PEM or DER" type:"existingfile"`
}

func (c *InspectCmd) Run(ctx context.Context, globals *Globals) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}

	certificate := cert.Parse(data)
	if certificate == nil {
		return fmt.Errorf("%s: not a certificate", c.File)
	}

	printCertificate(globals.out(), certificate)
	return nil
}

func printCertificate(out io.Writer, c *cert.Certificate) {
	info := c.Info()
	cn, ok := c.CommonName()
	if !ok {
		cn = "(none)"
	}

	fmt.Fprintf(out, "Subject:      %s\n", info.Subject)
	fmt.Fprintf(out, "Issuer:       %s\n", info.Issuer)
	fmt.Fprintf(out, "Common name:  %s\n", cn)
	fmt.Fprintf(out, "DNS names:    %s\n", strings.Join(c.SubjectAlternativeDNSNames(), ", "))
	fmt.Fprintf(out, "Serial:       %s\n", info.SerialNumber)
	fmt.Fprintf(out, "AKI:          %s\n", info.AuthorityKeyIdentifier)
	fmt.Fprintf(out, "SKI:          %s\n", info.SubjectKeyIdentifier)
	fmt.Fprintf(out, "Not before:   %s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(out, "Not after:    %s\n", info.NotAfter.Format(time.RFC3339))
	fmt.Fprintf(out, "Status:       %s\n", info.Status)
	fmt.Fprintf(out, "Fingerprint:  %s\n", info.Fingerprint)
}
