package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// security 解析 TLS 与 SASL，均可为空
func security(cfg *Config) (*tls.Config, sasl.Mechanism, error) {
	var (
		tlsCfg    *tls.Config
		mechanism sasl.Mechanism
		err       error
	)
	if cfg.TLS != nil && cfg.TLS.Enable {
		if tlsCfg, err = newTLSConfig(cfg.TLS); err != nil {
			return nil, nil, err
		}
	}
	if cfg.SASL != nil && cfg.SASL.Username != "" {
		if mechanism, err = newSASLMechanism(cfg.SASL); err != nil {
			return nil, nil, err
		}
	}
	return tlsCfg, mechanism, nil
}

// newDialer Reader 使用
func newDialer(cfg *Config) (*kafka.Dialer, error) {
	tlsCfg, mechanism, err := security(cfg)
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{DualStack: true, TLS: tlsCfg, SASLMechanism: mechanism}, nil
}

// newTransport Writer 使用
func newTransport(cfg *Config) (*kafka.Transport, error) {
	tlsCfg, mechanism, err := security(cfg)
	if err != nil {
		return nil, err
	}
	return &kafka.Transport{TLS: tlsCfg, SASL: mechanism}, nil
}

func newTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "read kafka ca file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.Newf("kafka ca file %s has no certificates", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load kafka client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func newSASLMechanism(cfg *SASLConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(cfg.Mechanism) {
	case "", "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, errors.Newf("kafka: unsupported sasl mechanism %q", cfg.Mechanism)
	}
}
