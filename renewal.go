package octocert

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Renewer drives one renewal run: look up existing records, decide whether a
// new certificate is needed, and publish or replace accordingly.
type Renewer struct {
	config  *Config
	deploy  *DeployClient
	issuer  Issuer
	history Writer // optional, nil disables history
	logger  *slog.Logger
	now     func() time.Time
}

func NewRenewer(cfg *Config, deploy *DeployClient, issuer Issuer, history Writer, logger *slog.Logger) *Renewer {
	if cfg == nil || deploy == nil || issuer == nil || logger == nil {
		panic("NewRenewer: received nil config, client, issuer, or logger")
	}
	return &Renewer{
		config:  cfg,
		deploy:  deploy,
		issuer:  issuer,
		history: history,
		logger:  logger.With("domain", cfg.Domain),
		now:     time.Now,
	}
}

// Run executes the flow once. A nil return means the domain's certificate is
// current: either nothing needed doing, or a new one is now live.
func (r *Renewer) Run(ctx context.Context) error {
	cfg := r.config
	issuerName := cfg.IssuerName()
	r.logger.Info("checking deployment server for existing certificates", "issuer", issuerName, "staging", cfg.Staging)

	records, err := r.deploy.Search(ctx, cfg.Domain)
	if err != nil {
		return err
	}
	matches := filterRecords(records, cfg.Domain, issuerName)

	if len(matches) == 0 {
		r.logger.Info("no existing certificate found, issuing a new one")
		return r.issueAndPublish(ctx)
	}

	expiring, err := r.anyExpiring(matches)
	if err != nil {
		return err
	}
	if !expiring {
		r.logger.Info("certificate not due for renewal", "threshold_days", cfg.ExpiryThresholdDays, "matches", len(matches))
		return nil
	}

	// One renewal covers the whole domain, even when several records are
	// expiring at once. The new bundle goes into the first PKCS#12 record;
	// the rest stay behind until a later run sees them unmatched.
	target, ok := firstPkcs12(matches)
	if !ok {
		return fmt.Errorf("certificate for %s is expiring but no %s record exists to replace", cfg.Domain, FormatPkcs12)
	}
	r.logger.Info("certificate expiring, renewing", "replace_id", target.ID, "not_after", target.NotAfter)
	return r.issueAndReplace(ctx, target)
}

func (r *Renewer) issueAndPublish(ctx context.Context) error {
	issued, err := r.issuer.Issue(ctx, r.config.Domain)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s - Lets Encrypt", r.config.Domain)
	if err := r.deploy.Create(ctx, name, issued); err != nil {
		return err
	}
	r.recordHistory(issued)
	return nil
}

func (r *Renewer) issueAndReplace(ctx context.Context, target CertificateRecord) error {
	issued, err := r.issuer.Issue(ctx, r.config.Domain)
	if err != nil {
		return err
	}
	if err := r.deploy.Replace(ctx, target.ID, issued); err != nil {
		return err
	}
	r.recordHistory(issued)
	return nil
}

// anyExpiring reports whether any record's expiry falls inside the threshold
// window. A single expiring record triggers a full renewal for the domain.
func (r *Renewer) anyExpiring(records []CertificateRecord) (bool, error) {
	cutoff := r.now().Add(time.Duration(r.config.ExpiryThresholdDays) * 24 * time.Hour)
	for _, rec := range records {
		expiry, err := rec.Expiry()
		if err != nil {
			return false, err
		}
		if expiry.Before(cutoff) {
			r.logger.Info("record inside renewal window", "id", rec.ID, "expires", rec.NotAfter, "cutoff", TimeFormat(cutoff))
			return true, nil
		}
	}
	return false, nil
}

// recordHistory is best-effort: the certificate is already live, so a failed
// write only warns.
func (r *Renewer) recordHistory(issued *IssuedCertificate) {
	if r.history == nil {
		return
	}
	cert := Cert{
		Identifier:       issued.Domain,
		Domains:          fmt.Sprintf("[%q]", issued.Domain),
		CertificateChain: string(issued.CertificateChain),
		IssuedAt:         r.now().UTC(),
		ExpiresAt:        issued.NotAfter.UTC(),
	}
	if err := r.history.AddCert(cert); err != nil {
		r.logger.Warn("failed to record issuance history", "error", err)
	}
}

// filterRecords keeps exact subject/issuer matches and drops superseded or
// archived records.
func filterRecords(records []CertificateRecord, domain, issuer string) []CertificateRecord {
	var out []CertificateRecord
	for _, rec := range records {
		if rec.SubjectCommonName != domain || rec.IssuerCommonName != issuer {
			continue
		}
		if rec.Superseded() {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func firstPkcs12(records []CertificateRecord) (CertificateRecord, bool) {
	for _, rec := range records {
		if rec.CertificateDataFormat == FormatPkcs12 {
			return rec, true
		}
	}
	return CertificateRecord{}, false
}
