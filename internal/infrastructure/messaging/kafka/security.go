package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/turtacn/doctalk/pkg/errors"
)

// SASL mechanisms understood by SecurityConfig.
const (
	SASLPlain       = "PLAIN"
	SASLScramSHA256 = "SCRAM-SHA-256"
	SASLScramSHA512 = "SCRAM-SHA-512"
)

const dialTimeout = 10 * time.Second

// SecurityConfig holds the broker authentication settings shared by the
// reader and the writer.  An empty SASLMechanism disables SASL.
type SecurityConfig struct {
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	TLSCAPath     string `mapstructure:"tls_ca_path"`
}

// Validate checks that the SASL mechanism is known and has credentials.
func (s SecurityConfig) Validate() error {
	if s.SASLMechanism == "" {
		return nil
	}
	switch strings.ToUpper(s.SASLMechanism) {
	case SASLPlain, SASLScramSHA256, SASLScramSHA512:
	default:
		return errors.Newf(errors.ErrCodeConfigInvalid, "unsupported SASL mechanism %q", s.SASLMechanism)
	}
	if s.SASLUsername == "" || s.SASLPassword == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "SASL credentials required")
	}
	return nil
}

func (s SecurityConfig) tlsConfig() (*tls.Config, error) {
	if !s.TLSEnabled {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.TLSCAPath == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(s.TLSCAPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read kafka CA file")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "kafka CA file has no certificates")
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func (s SecurityConfig) mechanism() (sasl.Mechanism, error) {
	var (
		mech sasl.Mechanism
		err  error
	)
	switch strings.ToUpper(s.SASLMechanism) {
	case "":
		return nil, nil
	case SASLPlain:
		mech = plain.Mechanism{Username: s.SASLUsername, Password: s.SASLPassword}
	case SASLScramSHA256:
		mech, err = scram.Mechanism(scram.SHA256, s.SASLUsername, s.SASLPassword)
	case SASLScramSHA512:
		mech, err = scram.Mechanism(scram.SHA512, s.SASLUsername, s.SASLPassword)
	default:
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "unsupported SASL mechanism %q", s.SASLMechanism)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create SASL mechanism")
	}
	return mech, nil
}

func (s SecurityConfig) dialer() (*kafka.Dialer, error) {
	tlsCfg, err := s.tlsConfig()
	if err != nil {
		return nil, err
	}
	mech, err := s.mechanism()
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		Timeout:       dialTimeout,
		DualStack:     true,
		TLS:           tlsCfg,
		SASLMechanism: mech,
	}, nil
}

func (s SecurityConfig) transport() (*kafka.Transport, error) {
	tlsCfg, err := s.tlsConfig()
	if err != nil {
		return nil, err
	}
	mech, err := s.mechanism()
	if err != nil {
		return nil, err
	}
	return &kafka.Transport{
		DialTimeout: dialTimeout,
		TLS:         tlsCfg,
		SASL:        mech,
	}, nil
}

// PingBrokers succeeds when at least one broker accepts a connection with
// the configured security.
func PingBrokers(ctx context.Context, brokers []string, sec SecurityConfig) error {
	if len(brokers) == 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "no brokers configured")
	}
	d, err := sec.dialer()
	if err != nil {
		return err
	}
	var last error
	for _, b := range brokers {
		conn, err := d.DialContext(ctx, "tcp", b)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		last = err
	}
	return errors.Wrap(last, errors.ErrCodeMessagingUnavailable, "no broker reachable").
		WithDetail("brokers=" + strings.Join(brokers, ","))
}
