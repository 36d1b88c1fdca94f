package commands

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/houzhh15/httpsecurity/cert"
	"github.com/houzhh15/httpsecurity/transport"
)

type CheckTLSCmd struct {
	Config     string        `help:"Configuration file" required:"" type:"existingfile"`
	Addr       string        `help:"Server address (host:port)" required:""`
	ServerName string        `help:"Hostname to verify, defaults to trust.hostname or the address host"`
	Timeout    time.Duration `help:"Dial timeout" default:"10s"`
}

func (c *CheckTLSCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := setup(c.Config, globals)
	if err != nil {
		return err
	}
	defer env.Close()

	anchors, err := env.config.Anchors()
	if err != nil {
		return err
	}

	hostname := c.ServerName
	if hostname == "" {
		hostname = env.config.Trust.Hostname
	}
	if hostname == "" {
		hostname, _, err = net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid address %s: %w", c.Addr, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	chain, err := transport.FetchChain(ctx, c.Addr, hostname, c.Timeout)
	if err != nil {
		return err
	}

	out := globals.out()
	for i, peer := range chain {
		info := cert.FromX509(peer).Info()
		fmt.Fprintf(out, "[%d] %s\n    issuer: %s\n    %s\n", i, info.Subject, info.Issuer, info.Fingerprint)
	}

	evaluator := cert.NewTrustEvaluator(&cert.EvaluatorConfig{
		Logger: env.logger,
		Audit:  env.auditLogger(),
	})
	if err := transport.VerifyPeer(evaluator, chain, hostname, anchors); err != nil {
		fmt.Fprintf(out, "UNTRUSTED %s: %v\n", hostname, err)
		return ErrUntrusted
	}

	fmt.Fprintf(out, "TRUSTED %s\n", hostname)
	return nil
}
