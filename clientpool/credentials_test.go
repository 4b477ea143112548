package clientpool

import (
	"os"
	"path/filepath"
	"testing"
)

// a throwaway self-signed CA cert, PEM-encoded, just to exercise the PEM
// loading path without a live CA.
const testCAPEM = `-----BEGIN CERTIFICATE-----
MIIBeTCCAR+gAwIBAgIUYN92YPvpvuEDxN1Ugh7YYYNHbsIwCgYIKoZIzj0EAwIw
EjEQMA4GA1UECgwHVGVzdCBDQTAeFw0yNjA4MDYxNTA5MTRaFw0zNjA4MDMxNTA5
MTRaMBIxEDAOBgNVBAoMB1Rlc3QgQ0EwWTATBgcqhkjOPQIBBggqhkjOPQMBBwNC
AARlHBSlDf6lPu74TV31TTEWyPRYOeX+bBRU+YgEq15Feogj6u22i532UFtfL+up
5lDFFreUYca3e6z0LnA5hB5ko1MwUTAdBgNVHQ4EFgQUtr+TVJzS4+rv4sEa+bjG
cjq5G+YwHwYDVR0jBBgwFoAUtr+TVJzS4+rv4sEa+bjGcjq5G+YwDwYDVR0TAQH/
BAUwAwEB/zAKBggqhkjOPQQDAgNIADBFAiEAhjCoZ0JyM8JmZ+s7xFdMZEW6LJ2b
LcKzEKaY049aaRACIAjifG7c6STRDi5e6KwnjFECGZ9IXqX/NGAmAWI+7ahA
-----END CERTIFICATE-----
`

func TestBuildCredentials_Plaintext(t *testing.T) {
	creds, err := BuildCredentials(CredentialsConfig{Secure: false})
	if err != nil {
		t.Fatalf("BuildCredentials() error = %v", err)
	}
	if creds.Info().SecurityProtocol != "insecure" {
		t.Errorf("SecurityProtocol = %v, want insecure", creds.Info().SecurityProtocol)
	}
}

func TestBuildCredentials_SecureNoCA(t *testing.T) {
	creds, err := BuildCredentials(CredentialsConfig{Secure: true})
	if err != nil {
		t.Fatalf("BuildCredentials() error = %v", err)
	}
	if creds.Info().SecurityProtocol != "tls" {
		t.Errorf("SecurityProtocol = %v, want tls", creds.Info().SecurityProtocol)
	}
}

func TestBuildCredentials_SecureWithCABundle(t *testing.T) {
	dir := t.TempDir()
	caPath := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(caPath, []byte(testCAPEM), 0o644); err != nil {
		t.Fatalf("failed to write test CA bundle: %v", err)
	}

	_, err := BuildCredentials(CredentialsConfig{Secure: true, CAFile: caPath})
	if err != nil {
		t.Fatalf("BuildCredentials() error = %v", err)
	}
}

func TestBuildCredentials_MissingCAFile(t *testing.T) {
	_, err := BuildCredentials(CredentialsConfig{Secure: true, CAFile: "/nonexistent/ca.pem"})
	if err == nil {
		t.Error("BuildCredentials() expected error for missing CA file")
	}
}
