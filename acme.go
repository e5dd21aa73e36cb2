package octocert

import (
	"context"
	"crypto"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/dns/cloudflare"
	"github.com/go-acme/lego/v4/providers/dns/route53"
	"github.com/go-acme/lego/v4/registration"
	"software.sslmate.com/src/go-pkcs12"
)

// Issuer obtains a certificate for a domain from the authority.
type Issuer interface {
	Issue(ctx context.Context, domain string) (*IssuedCertificate, error)
}

// acmeUser implements lego's registration.User interface (internal helper type)
type acmeUser struct {
	Email        string
	Registration *registration.Resource
	PrivateKey   crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.Email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.Registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.PrivateKey }

// LegoIssuer issues certificates through an ACME authority using a DNS-01
// challenge. Each Issue call registers a fresh throwaway account: there is no
// local account state to go stale between runs.
type LegoIssuer struct {
	config *Config
	logger *slog.Logger
}

func NewLegoIssuer(cfg *Config, logger *slog.Logger) *LegoIssuer {
	if cfg == nil || logger == nil {
		panic("NewLegoIssuer: received nil config or logger")
	}
	return &LegoIssuer{
		config: cfg,
		logger: logger.With("component", "issuer"),
	}
}

// Issue runs the full ACME flow (register, order, DNS challenge, finalize)
// and bundles the result as password-protected PKCS#12.
func (i *LegoIssuer) Issue(ctx context.Context, domain string) (*IssuedCertificate, error) {
	cfg := i.config

	// --- Lego Client Setup ---
	accountKey, err := certcrypto.GeneratePrivateKey(certcrypto.EC256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ACME account key: %w", err)
	}

	user := acmeUser{Email: cfg.Email, PrivateKey: accountKey}
	legoConfig := lego.NewConfig(&user)
	legoConfig.CADirURL = cfg.CADirectoryURL()
	legoConfig.Certificate.KeyType = certcrypto.RSA2048 // RSA keeps the PKCS#12 bundle importable everywhere

	legoClient, err := lego.NewClient(legoConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create ACME client: %w", err)
	}

	// --- DNS Provider Setup ---
	dnsProvider, err := i.newDNSProvider()
	if err != nil {
		return nil, err
	}
	err = legoClient.Challenge.SetDNS01Provider(dnsProvider, dns01.AddDNSTimeout(10*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("failed to set DNS01 provider %q: %w", cfg.DNSProvider, err)
	}

	// --- Register Account ---
	// Register needs TermsOfServiceAgreed: true. The key was generated above,
	// so this always creates a new account rather than resuming one.
	reg, err := legoClient.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("ACME registration failed for %s: %w", user.Email, err)
	}
	user.Registration = reg
	i.logger.Info("ACME account registered", "email", user.Email, "ca", legoConfig.CADirURL)

	// --- Obtain Certificate ---
	request := certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true, // full chain including intermediates
	}

	// This is the main blocking call that performs the ACME flow (order, challenge, finalize)
	resource, err := legoClient.Certificate.Obtain(request)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain certificate for %s: %w", domain, err)
	}
	i.logger.Info("obtained certificate", "domain", domain, "certificate_url", resource.CertURL)

	return i.bundle(domain, resource)
}

func (i *LegoIssuer) newDNSProvider() (challenge.Provider, error) {
	cfg := i.config
	switch cfg.DNSProvider {
	case DNSProviderRoute53:
		r53Config := route53.NewDefaultConfig()
		r53Config.AccessKeyID = cfg.Route53.AccessKeyID
		r53Config.SecretAccessKey = cfg.Route53.SecretAccessKey
		r53Config.Region = cfg.Route53.Region
		provider, err := route53.NewDNSProviderConfig(r53Config)
		if err != nil {
			return nil, fmt.Errorf("failed to create Route53 provider: %w", err)
		}
		return provider, nil
	case DNSProviderCloudflare:
		cfConfig := cloudflare.NewDefaultConfig()
		cfConfig.AuthToken = cfg.Cloudflare.APIToken
		provider, err := cloudflare.NewDNSProviderConfig(cfConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Cloudflare provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported DNS provider configured: %q", cfg.DNSProvider)
	}
}

// bundle converts the PEM chain and key into a PKCS#12 blob, optionally
// writing it to disk for inspection.
func (i *LegoIssuer) bundle(domain string, resource *certificate.Resource) (*IssuedCertificate, error) {
	certs, err := certcrypto.ParsePEMBundle(resource.Certificate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issued certificate chain: %w", err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("issued certificate chain for %s is empty", domain)
	}
	leaf, intermediates := certs[0], certs[1:]

	privateKey, err := certcrypto.ParsePEMPrivateKey(resource.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issued private key: %w", err)
	}

	pfxData, err := pkcs12.Modern.Encode(privateKey, leaf, intermediates, i.config.PfxPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to encode PKCS#12 bundle for %s: %w", domain, err)
	}

	if path := i.config.PfxOutputPath; path != "" {
		if err := os.WriteFile(path, pfxData, 0600); err != nil {
			return nil, fmt.Errorf("failed to write PKCS#12 file %s: %w", path, err)
		}
		i.logger.Info("wrote PKCS#12 file", "path", path)
	}

	return &IssuedCertificate{
		Domain:           domain,
		PfxData:          pfxData,
		Password:         i.config.PfxPassword,
		NotAfter:         leaf.NotAfter,
		CertificateChain: resource.Certificate,
	}, nil
}
