package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/houzhh15/httpsecurity/cert"
	"github.com/houzhh15/httpsecurity/config"
	"github.com/houzhh15/httpsecurity/logging"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrInvalidSignature is returned when no pinned signer accepts the signature
	ErrInvalidSignature = errors.New("signature is not valid")
	// ErrUntrusted is returned when a server chain fails evaluation
	ErrUntrusted = errors.New("server is not trusted")
)

type Globals struct {
	Debug   bool
	Version string
	Stdout  io.Writer
}

func (g *Globals) out() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// environment holds everything a command builds from the configuration file
type environment struct {
	config   *config.Config
	logger   logging.Logger
	audit    *logging.FileAuditLogger
	registry *cert.Registry
}

func setup(path string, globals *Globals) (*environment, error) {
	cfg, err := config.NewLoader().Load(path)
	if err != nil {
		return nil, err
	}
	if globals != nil && globals.Debug {
		cfg.Logging.Level = "debug"
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	env := &environment{config: cfg, logger: logger}

	if cfg.Logging.AuditFile != "" {
		env.audit, err = logging.NewFileAuditLogger(cfg.Logging.AuditFile, logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Registry.DSN != "" {
		env.registry, err = openRegistry(cfg.Registry.DSN, logger)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	return env, nil
}

func newLogger(cfg config.LoggingConfig) (logging.Logger, error) {
	lc := &logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		Output:    cfg.Output,
		Component: "trustcheck",
	}
	if cfg.Backend == "zerolog" {
		logger, err := logging.SetupZerolog(lc)
		if err != nil {
			return nil, err
		}
		return logger, nil
	}
	logger, err := logging.NewLogger(lc)
	if err != nil {
		return nil, err
	}
	return logger, nil
}

func openRegistry(dsn string, logger logging.Logger) (*cert.Registry, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	return cert.NewRegistry(db, logger)
}

// auditLogger avoids handing a typed nil pointer to the validators
func (e *environment) auditLogger() logging.AuditLogger {
	if e.audit == nil {
		return nil
	}
	return e.audit
}

// signers returns the configured signers followed by the registered ones
func (e *environment) signers() ([]cert.SigningCertificate, error) {
	signers, err := e.config.SigningCertificates()
	if err != nil {
		return nil, err
	}
	if e.registry != nil {
		registered, err := e.registry.SigningCertificates()
		if err != nil {
			return nil, err
		}
		signers = append(signers, registered...)
	}
	return signers, nil
}

func (e *environment) Close() {
	if e.audit != nil {
		_ = e.audit.Close()
	}
}
