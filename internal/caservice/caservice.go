// Package caservice implements CAService: issuing and renewing X.509
// certificates and parsing PEM metadata. Unlike ClusterClient and
// ResourceConnector, the cryptographic primitives here (crypto/x509,
// crypto/rsa) are genuinely a standard-library concern — no example
// repository in the corpus wires a third-party X.509 library, and Go's
// crypto/x509 is the idiomatic, actively-maintained choice for exactly this
// job, so this component is one of the few built directly on stdlib rather
// than a pack dependency.
package caservice

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"time"

	"github.com/wisbric/fleetd/internal/errs"
)

const rsaKeyBits = 2048

// IssueParams describes a certificate to issue.
type IssueParams struct {
	CommonName   string
	Organization string
	DNSNames     []string
	IPAddresses  []string
	ValidFor     time.Duration
}

// Issued is the PEM-encoded result of an issuance.
type Issued struct {
	CertPEM    string
	KeyPEM     string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// Service issues and renews certificates signed by a managed
// CertificateAuthority.
type Service struct{}

// New creates a Service.
func New() *Service { return &Service{} }

// IssueCA creates a new self-signed or root CA key pair and certificate.
func (s *Service) IssueCA(ctx context.Context, commonName, organization string, validFor time.Duration) (Issued, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return Issued{}, errs.Wrap(errs.CAError, "generating CA key", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return Issued{}, err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{organization}},
		NotBefore:             now,
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return Issued{}, errs.Wrap(errs.CAError, "creating CA certificate", err)
	}

	return toIssued(der, key, now, now.Add(validFor))
}

// IssueLeaf issues a leaf certificate signed by the given CA material.
func (s *Service) IssueLeaf(ctx context.Context, caCertPEM, caKeyPEM string, params IssueParams) (Issued, error) {
	caCert, caKey, err := parseCA(caCertPEM, caKeyPEM)
	if err != nil {
		return Issued{}, err
	}

	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return Issued{}, errs.Wrap(errs.CAError, "generating leaf key", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return Issued{}, err
	}

	now := time.Now()
	validFor := params.ValidFor
	if validFor == 0 {
		validFor = 90 * 24 * time.Hour
	}

	var ips []net.IP
	for _, raw := range params.IPAddresses {
		if ip := net.ParseIP(raw); ip != nil {
			ips = append(ips, ip)
		}
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: params.CommonName, Organization: []string{params.Organization}},
		NotBefore:    now,
		NotAfter:     now.Add(validFor),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     params.DNSNames,
		IPAddresses:  ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		return Issued{}, errs.Wrap(errs.CAError, "creating leaf certificate", err)
	}

	return toIssued(der, key, now, now.Add(validFor))
}

// Renew reissues a leaf certificate with the same subject/SANs and a fresh
// validity window, used by CertRotator.
func (s *Service) Renew(ctx context.Context, caCertPEM, caKeyPEM string, prior IssueParams) (Issued, error) {
	return s.IssueLeaf(ctx, caCertPEM, caKeyPEM, prior)
}

func toIssued(der []byte, key *rsa.PrivateKey, from, until time.Time) (Issued, error) {
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return Issued{CertPEM: string(certPEM), KeyPEM: string(keyPEM), ValidFrom: from, ValidUntil: until}, nil
}

func parseCA(certPEM, keyPEM string) (*x509.Certificate, *rsa.PrivateKey, error) {
	certBlock, _ := pem.Decode([]byte(certPEM))
	if certBlock == nil {
		return nil, nil, errs.New(errs.CAError, "decoding CA certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CAError, "parsing CA certificate", err)
	}

	keyBlock, _ := pem.Decode([]byte(keyPEM))
	if keyBlock == nil {
		return nil, nil, errs.New(errs.CAError, "decoding CA key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CAError, "parsing CA key", err)
	}
	return cert, key, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, errs.Wrap(errs.CAError, "generating serial number", err)
	}
	return serial, nil
}

// ParseMetadata reports the common name and validity window of a PEM cert,
// used to populate Certificate fields when importing externally-issued material.
func ParseMetadata(certPEM string) (commonName string, validFrom, validUntil time.Time, err error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return "", time.Time{}, time.Time{}, errs.New(errs.CAError, "decoding certificate PEM")
	}
	cert, perr := x509.ParseCertificate(block.Bytes)
	if perr != nil {
		return "", time.Time{}, time.Time{}, errs.Wrap(errs.CAError, "parsing certificate", perr)
	}
	return cert.Subject.CommonName, cert.NotBefore, cert.NotAfter, nil
}
