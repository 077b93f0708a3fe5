package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const caColumns = `id, name, type, common_name, organization, cert_pem, key_pem, is_managed,
	valid_from, valid_until, created_at, updated_at, deleted_at`

func scanCA(row pgx.Row) (CertificateAuthority, error) {
	var ca CertificateAuthority
	err := row.Scan(&ca.ID, &ca.Name, &ca.Type, &ca.CommonName, &ca.Organization,
		&ca.CertPEM, &ca.KeyPEM, &ca.IsManaged, &ca.ValidFrom, &ca.ValidUntil,
		&ca.CreatedAt, &ca.UpdatedAt, &ca.DeletedAt)
	return ca, err
}

// InsertCA creates a CertificateAuthority record.
func (s *Store) InsertCA(ctx context.Context, ca CertificateAuthority) (CertificateAuthority, error) {
	query := `INSERT INTO certificate_authorities
		(name, type, common_name, organization, cert_pem, key_pem, is_managed, valid_from, valid_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING ` + caColumns
	out, err := scanCA(s.db.QueryRow(ctx, query,
		ca.Name, ca.Type, ca.CommonName, ca.Organization, ca.CertPEM, ca.KeyPEM,
		ca.IsManaged, ca.ValidFrom, ca.ValidUntil))
	if err != nil {
		return CertificateAuthority{}, wrapErr("inserting CA", err)
	}
	return out, nil
}

// GetCA returns a non-deleted CertificateAuthority by ID.
func (s *Store) GetCA(ctx context.Context, id int64) (CertificateAuthority, error) {
	query := `SELECT ` + caColumns + ` FROM certificate_authorities WHERE id = $1 AND deleted_at IS NULL`
	out, err := scanCA(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return CertificateAuthority{}, wrapErr("getting CA", err)
	}
	return out, nil
}

// SoftDeleteCA marks a CA deleted.
func (s *Store) SoftDeleteCA(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE certificate_authorities SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return wrapErr("soft deleting CA", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("soft deleting CA", pgx.ErrNoRows)
	}
	return nil
}

const certColumns = `id, ca_id, resource_id, cert_pem, key_pem, common_name,
	san_dns_names, san_ip_addresses, valid_from, valid_until, auto_renew, renewal_threshold_days,
	created_at, updated_at, deleted_at`

func scanCert(row pgx.Row) (Certificate, error) {
	var c Certificate
	err := row.Scan(&c.ID, &c.CAID, &c.ResourceID, &c.CertPEM, &c.KeyPEM, &c.CommonName,
		&c.SANDNSNames, &c.SANIPAddresses, &c.ValidFrom, &c.ValidUntil, &c.AutoRenew,
		&c.RenewalThresholdDays, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	return c, err
}

// InsertCertificate creates a Certificate record.
func (s *Store) InsertCertificate(ctx context.Context, c Certificate) (Certificate, error) {
	query := `INSERT INTO certificates
		(ca_id, resource_id, cert_pem, key_pem, common_name, san_dns_names, san_ip_addresses,
		 valid_from, valid_until, auto_renew, renewal_threshold_days)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING ` + certColumns
	out, err := scanCert(s.db.QueryRow(ctx, query,
		c.CAID, c.ResourceID, c.CertPEM, c.KeyPEM, c.CommonName, c.SANDNSNames, c.SANIPAddresses,
		c.ValidFrom, c.ValidUntil, c.AutoRenew, c.RenewalThresholdDays))
	if err != nil {
		return Certificate{}, wrapErr("inserting certificate", err)
	}
	return out, nil
}

// GetCertificate returns a non-deleted certificate by ID.
func (s *Store) GetCertificate(ctx context.Context, id int64) (Certificate, error) {
	query := `SELECT ` + certColumns + ` FROM certificates WHERE id = $1 AND deleted_at IS NULL`
	out, err := scanCert(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return Certificate{}, wrapErr("getting certificate", err)
	}
	return out, nil
}

// ListCertificatesExpiringBefore returns non-deleted, auto-renewing or not,
// certificates whose valid_until is at or before cutoff — the query
// CertRotator polls every cycle.
func (s *Store) ListCertificatesExpiringBefore(ctx context.Context, cutoff time.Time) ([]Certificate, error) {
	query := `SELECT ` + certColumns + ` FROM certificates
		WHERE deleted_at IS NULL AND valid_until <= $1
		ORDER BY valid_until ASC`
	rows, err := s.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, wrapErr("listing expiring certificates", err)
	}
	defer rows.Close()

	var out []Certificate
	for rows.Next() {
		c, err := scanCert(rows)
		if err != nil {
			return nil, wrapErr("scanning certificate", err)
		}
		out = append(out, c)
	}
	return out, wrapErr("iterating certificates", rows.Err())
}

// UpdateCertificateMaterial replaces a certificate's key material and
// validity window after renewal.
func (s *Store) UpdateCertificateMaterial(ctx context.Context, id int64, certPEM, keyPEM string, validFrom, validUntil time.Time) (Certificate, error) {
	query := `UPDATE certificates
		SET cert_pem = $2, key_pem = $3, valid_from = $4, valid_until = $5, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL RETURNING ` + certColumns
	out, err := scanCert(s.db.QueryRow(ctx, query, id, certPEM, keyPEM, validFrom, validUntil))
	if err != nil {
		return Certificate{}, wrapErr("updating certificate material", err)
	}
	return out, nil
}
