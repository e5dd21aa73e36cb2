package octocert

import (
	"fmt"
	"time"
)

// FormatPkcs12 is the data format the deployment server reports for
// certificates uploaded as PKCS#12 bundles. Only records in this format can
// be replaced with a new bundle.
const FormatPkcs12 = "Pkcs12"

// CertificateRecord is a certificate as the deployment server stores it.
// Replaced records are superseded, never deleted: ReplacedBy points at the
// successor and Archived carries the archival timestamp.
type CertificateRecord struct {
	ID                    string `json:"Id"`
	Name                  string `json:"Name"`
	SubjectCommonName     string `json:"SubjectCommonName"`
	IssuerCommonName      string `json:"IssuerCommonName"`
	CertificateDataFormat string `json:"CertificateDataFormat"`
	NotAfter              string `json:"NotAfter"`
	ReplacedBy            string `json:"ReplacedBy"`
	Archived              string `json:"Archived"`
	Thumbprint            string `json:"Thumbprint"`
	SelfSigned            bool   `json:"SelfSigned"`
	HasPrivateKey         bool   `json:"HasPrivateKey"`
	Version               int    `json:"Version"`
}

// Superseded reports whether the record has been archived or replaced.
func (r CertificateRecord) Superseded() bool {
	return r.Archived != "" || r.ReplacedBy != ""
}

// Expiry parses the record's NotAfter timestamp.
func (r CertificateRecord) Expiry() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, r.NotAfter)
	if err != nil {
		return time.Time{}, fmt.Errorf("certificate %s: invalid NotAfter %q: %w", r.ID, r.NotAfter, err)
	}
	return t, nil
}

// certificateList is the paged envelope the search endpoint returns.
type certificateList struct {
	Items []CertificateRecord `json:"Items"`
}

// SensitiveValue wraps a secret field in the create payload. HasValue gates
// whether the server applies NewValue at all.
type SensitiveValue struct {
	HasValue bool   `json:"HasValue"`
	NewValue string `json:"NewValue"`
}

// CreateCertificateRequest is the body for publishing a new certificate.
// Certificate data and password are Boolean-gated sensitive values.
type CreateCertificateRequest struct {
	Name            string         `json:"Name"`
	CertificateData SensitiveValue `json:"CertificateData"`
	Password        SensitiveValue `json:"Password"`
}

// ReplaceCertificateRequest is the body for replacing an existing record.
// Unlike create, the fields are flat.
type ReplaceCertificateRequest struct {
	CertificateData string `json:"certificateData"`
	Password        string `json:"password"`
}

// IssuedCertificate is what the authority hands back: a password-protected
// PKCS#12 bundle for one domain. Ephemeral, consumed into an upload payload.
type IssuedCertificate struct {
	Domain           string
	PfxData          []byte
	Password         string
	NotAfter         time.Time
	CertificateChain []byte // PEM, kept for the history record
}

// Cert is a local issuance history record.
type Cert struct {
	ID               int64     // Primary Key (populated on insert)
	Identifier       string    // Identifier for the cert request (e.g., primary domain)
	Domains          string    // JSON array of all domains covered
	CertificateChain string    // PEM encoded certificate chain
	IssuedAt         time.Time // UTC timestamp of issuance
	ExpiresAt        time.Time // UTC timestamp of expiry
}

// TimeFormat renders timestamps the way the history schema stores them.
func TimeFormat(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
