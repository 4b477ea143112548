package clientpool

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// CredentialsConfig configures how the pool dials backend targets, per the
// -secure and -tls-ca CLI flags in §6.
type CredentialsConfig struct {
	// Secure enables TLS. When false, channels are dialed in plaintext.
	Secure bool

	// CAFile optionally names a PEM root CA bundle to trust. When set, only
	// the certificates in the bundle are trusted; when unset, the system
	// pool is used.
	CAFile string
}

// BuildCredentials constructs the TransportCredentials a Pool should dial
// with, based on cfg. Plaintext dials use insecure.NewCredentials(); secure
// dials build a tls.Config that trusts the system trust store, or, when
// cfg.CAFile is set, only the root CA bundle loaded from that file.
func BuildCredentials(cfg CredentialsConfig) (credentials.TransportCredentials, error) {
	if !cfg.Secure {
		return insecure.NewCredentials(), nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CAFile != "" {
		pemBytes, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("clientpool: failed to read TLS CA bundle %q: %w", cfg.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("clientpool: no valid certificates found in TLS CA bundle %q", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return credentials.NewTLS(tlsConfig), nil
}
