package octocert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-acme/lego/v4/certificate"
	"software.sslmate.com/src/go-pkcs12"
)

func TestNewDNSProvider(t *testing.T) {
	cfg := validConfig()
	issuer := NewLegoIssuer(cfg, discardLogger())

	if _, err := issuer.newDNSProvider(); err != nil {
		t.Errorf("route53 provider: error = %v, want nil", err)
	}

	cfg.DNSProvider = DNSProviderCloudflare
	cfg.Cloudflare.APIToken = "token"
	if _, err := issuer.newDNSProvider(); err != nil {
		t.Errorf("cloudflare provider: error = %v, want nil", err)
	}

	cfg.DNSProvider = "dyndns"
	if _, err := issuer.newDNSProvider(); err == nil {
		t.Error("unsupported provider: error = nil, want error")
	}
}

// selfSignedResource builds a PEM cert+key pair the way the authority would
// return one, for exercising the bundling path without an ACME server.
func selfSignedResource(t *testing.T, domain string, notAfter time.Time) *certificate.Resource {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    notAfter.AddDate(0, -3, 0),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return &certificate.Resource{
		Domain:      domain,
		Certificate: certPEM,
		PrivateKey:  keyPEM,
	}
}

func TestBundle(t *testing.T) {
	notAfter := time.Date(2026, 11, 21, 12, 0, 0, 0, time.UTC)
	resource := selfSignedResource(t, "example.com", notAfter)

	cfg := validConfig()
	cfg.PfxOutputPath = filepath.Join(t.TempDir(), "example.com.pfx")
	issuer := NewLegoIssuer(cfg, discardLogger())

	issued, err := issuer.bundle("example.com", resource)
	if err != nil {
		t.Fatalf("bundle() error = %v", err)
	}

	if issued.Domain != "example.com" {
		t.Errorf("Domain = %q, want example.com", issued.Domain)
	}
	if !issued.NotAfter.Equal(notAfter) {
		t.Errorf("NotAfter = %v, want %v", issued.NotAfter, notAfter)
	}
	if issued.Password != cfg.PfxPassword {
		t.Errorf("Password = %q, want configured PFX password", issued.Password)
	}

	// The bundle must open with the configured password and carry the leaf.
	_, leaf, _, err := pkcs12.DecodeChain(issued.PfxData, cfg.PfxPassword)
	if err != nil {
		t.Fatalf("decoding PKCS#12 bundle: %v", err)
	}
	if leaf.Subject.CommonName != "example.com" {
		t.Errorf("leaf CN = %q, want example.com", leaf.Subject.CommonName)
	}

	written, err := os.ReadFile(cfg.PfxOutputPath)
	if err != nil {
		t.Fatalf("reading written PFX file: %v", err)
	}
	if len(written) == 0 || len(written) != len(issued.PfxData) {
		t.Errorf("written PFX file has %d bytes, want %d", len(written), len(issued.PfxData))
	}

	if _, _, _, err := pkcs12.DecodeChain(issued.PfxData, "wrong-password"); err == nil {
		t.Error("decoding with wrong password succeeded, want error")
	}
}

func TestBundleRejectsEmptyChain(t *testing.T) {
	cfg := validConfig()
	issuer := NewLegoIssuer(cfg, discardLogger())

	_, err := issuer.bundle("example.com", &certificate.Resource{
		Certificate: []byte("not a pem block"),
		PrivateKey:  []byte("not a pem block"),
	})
	if err == nil {
		t.Fatal("bundle() error = nil, want error for invalid chain")
	}
}
