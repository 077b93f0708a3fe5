package caservice

import (
	"context"
	"testing"
	"time"
)

func TestIssueCAAndLeafRoundTrip(t *testing.T) {
	svc := New()
	ctx := context.Background()

	ca, err := svc.IssueCA(ctx, "fleetd-root", "wisbric", 365*24*time.Hour)
	if err != nil {
		t.Fatalf("IssueCA: %v", err)
	}

	leaf, err := svc.IssueLeaf(ctx, ca.CertPEM, ca.KeyPEM, IssueParams{
		CommonName: "pg1.internal",
		DNSNames:   []string{"pg1.internal"},
		ValidFor:   30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("IssueLeaf: %v", err)
	}

	cn, from, until, err := ParseMetadata(leaf.CertPEM)
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if cn != "pg1.internal" {
		t.Fatalf("got common name %q", cn)
	}
	if !until.After(from) {
		t.Fatalf("expected validUntil after validFrom")
	}
}

func TestRenewProducesFreshValidityWindow(t *testing.T) {
	svc := New()
	ctx := context.Background()
	ca, err := svc.IssueCA(ctx, "root", "wisbric", 365*24*time.Hour)
	if err != nil {
		t.Fatalf("IssueCA: %v", err)
	}

	first, err := svc.IssueLeaf(ctx, ca.CertPEM, ca.KeyPEM, IssueParams{CommonName: "r1", ValidFor: time.Hour})
	if err != nil {
		t.Fatalf("IssueLeaf: %v", err)
	}
	renewed, err := svc.Renew(ctx, ca.CertPEM, ca.KeyPEM, IssueParams{CommonName: "r1", ValidFor: 48 * time.Hour})
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if !renewed.ValidUntil.After(first.ValidUntil) {
		t.Fatalf("expected renewed cert to have a later expiry")
	}
}
