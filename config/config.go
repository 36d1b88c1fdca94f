package config

import (
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/houzhh15/httpsecurity/cert"
	"github.com/houzhh15/httpsecurity/signing"
	"gopkg.in/yaml.v3"
)

// Config represents the complete trust configuration
type Config struct {
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Trust    TrustConfig    `yaml:"trust" json:"trust"`
	Signing  SigningConfig  `yaml:"signing" json:"signing"`
	Registry RegistryConfig `yaml:"registry" json:"registry"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`           // debug, info, warn, error
	Format    string `yaml:"format" json:"format"`         // json, text
	Output    string `yaml:"output" json:"output"`         // stdout, stderr, file path
	Backend   string `yaml:"backend" json:"backend"`       // default, zerolog
	AuditFile string `yaml:"audit_file" json:"audit_file"` // audit log file path
}

// TrustConfig defines the TLS trust anchors
type TrustConfig struct {
	// AnchorFiles PEM bundles or DER files; empty means the system store
	AnchorFiles []string `yaml:"anchor_files" json:"anchor_files"`
	Hostname    string   `yaml:"hostname" json:"hostname"`
}

// SigningConfig defines pinned signature validation
type SigningConfig struct {
	Mode    string         `yaml:"mode" json:"mode"` // cms, always_allow
	Signers []SignerConfig `yaml:"signers" json:"signers"`
}

// SignerConfig describes one pinned signer. Key identifiers are hex encoded.
type SignerConfig struct {
	Name                   string  `yaml:"name" json:"name"`
	CertificateFile        string  `yaml:"certificate_file" json:"certificate_file"`
	Certificate            string  `yaml:"certificate" json:"certificate"` // inline PEM
	CommonName             *string `yaml:"common_name" json:"common_name"`
	AuthorityKeyIdentifier string  `yaml:"authority_key_identifier" json:"authority_key_identifier"`
	SubjectKeyIdentifier   string  `yaml:"subject_key_identifier" json:"subject_key_identifier"`
	RootSerial             *uint64 `yaml:"root_serial" json:"root_serial"`
}

// RegistryConfig defines the optional signer registry database
type RegistryConfig struct {
	DSN string `yaml:"dsn" json:"dsn"` // sqlite DSN, empty disables the registry
}

// Loader provides configuration loading functionality
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses configuration from file.
// Relative file references are resolved against the directory of path.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := filepath.Ext(path)

	var config Config
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	l.resolvePaths(&config, filepath.Dir(path))

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	l.setDefaults(&config)

	return &config, nil
}

// Validate checks configuration validity
func (l *Loader) Validate(config *Config) error {
	switch config.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("invalid logging level: %s", config.Logging.Level)
	}

	switch config.Logging.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("invalid logging format: %s", config.Logging.Format)
	}

	switch config.Logging.Backend {
	case "default", "zerolog", "":
	default:
		return fmt.Errorf("invalid logging backend: %s", config.Logging.Backend)
	}

	for _, f := range config.Trust.AnchorFiles {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("anchor file not found: %s", f)
		}
	}

	if _, err := signing.ParseMode(config.Signing.Mode); err != nil {
		return err
	}

	seen := make(map[string]bool, len(config.Signing.Signers))
	for i, s := range config.Signing.Signers {
		if s.Name == "" {
			return fmt.Errorf("signing.signers[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate signer name: %s", s.Name)
		}
		seen[s.Name] = true

		switch {
		case s.CertificateFile == "" && s.Certificate == "":
			return fmt.Errorf("signer %s: certificate_file or certificate is required", s.Name)
		case s.CertificateFile != "" && s.Certificate != "":
			return fmt.Errorf("signer %s: certificate_file and certificate are mutually exclusive", s.Name)
		case s.CertificateFile != "":
			if _, err := os.Stat(s.CertificateFile); err != nil {
				return fmt.Errorf("signer %s: certificate_file not found: %s", s.Name, s.CertificateFile)
			}
		}

		if _, err := DecodeHex(s.AuthorityKeyIdentifier); err != nil {
			return fmt.Errorf("signer %s: invalid authority_key_identifier: %w", s.Name, err)
		}
		if _, err := DecodeHex(s.SubjectKeyIdentifier); err != nil {
			return fmt.Errorf("signer %s: invalid subject_key_identifier: %w", s.Name, err)
		}
	}

	return nil
}

// setDefaults sets default values for optional fields
func (l *Loader) setDefaults(config *Config) {
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
	if config.Logging.Output == "" {
		config.Logging.Output = "stdout"
	}
	if config.Logging.Backend == "" {
		config.Logging.Backend = "default"
	}

	if config.Signing.Mode == "" {
		config.Signing.Mode = string(signing.ModeCMS)
	}
}

func (l *Loader) resolvePaths(config *Config, base string) {
	for i, f := range config.Trust.AnchorFiles {
		config.Trust.AnchorFiles[i] = resolve(base, f)
	}
	for i := range config.Signing.Signers {
		s := &config.Signing.Signers[i]
		if s.CertificateFile != "" {
			s.CertificateFile = resolve(base, s.CertificateFile)
		}
	}
	if config.Logging.AuditFile != "" {
		config.Logging.AuditFile = resolve(base, config.Logging.AuditFile)
	}
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// Anchors reads the configured anchor files. Each CERTIFICATE block of a PEM
// bundle becomes one anchor; files without PEM blocks are taken as DER.
// An empty result selects the system store.
func (c *Config) Anchors() ([][]byte, error) {
	var anchors [][]byte
	for _, f := range c.Trust.AnchorFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read anchor file: %w", err)
		}

		found := false
		rest := data
		for {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			found = true
			if block.Type == "CERTIFICATE" {
				anchors = append(anchors, block.Bytes)
			}
		}
		if !found {
			anchors = append(anchors, data)
		}
	}
	return anchors, nil
}

// SigningCertificates builds the pinned signer descriptors in configuration order
func (c *Config) SigningCertificates() ([]cert.SigningCertificate, error) {
	signers := make([]cert.SigningCertificate, 0, len(c.Signing.Signers))
	for _, s := range c.Signing.Signers {
		pemText := s.Certificate
		if s.CertificateFile != "" {
			data, err := os.ReadFile(s.CertificateFile)
			if err != nil {
				return nil, fmt.Errorf("signer %s: failed to read certificate: %w", s.Name, err)
			}
			pemText = string(data)
		}

		aki, err := DecodeHex(s.AuthorityKeyIdentifier)
		if err != nil {
			return nil, fmt.Errorf("signer %s: invalid authority_key_identifier: %w", s.Name, err)
		}
		ski, err := DecodeHex(s.SubjectKeyIdentifier)
		if err != nil {
			return nil, fmt.Errorf("signer %s: invalid subject_key_identifier: %w", s.Name, err)
		}

		signers = append(signers, cert.SigningCertificate{
			Name:                   s.Name,
			Certificate:            pemText,
			CommonName:             s.CommonName,
			AuthorityKeyIdentifier: aki,
			SubjectKeyIdentifier:   ski,
			RootSerial:             s.RootSerial,
		})
	}
	return signers, nil
}

// DecodeHex accepts plain or colon separated hex; empty means not set
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	s = strings.NewReplacer(":", "", " ", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}
