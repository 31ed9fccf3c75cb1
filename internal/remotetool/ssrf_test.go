package remotetool

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/mindatlas/backend/internal/model"
)

type fakeResolver struct {
	addrs map[string][]net.IPAddr
	err   error
}

func (f *fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.addrs[host], nil
}

func TestValidateURL_RejectsBadScheme(t *testing.T) {
	err := ValidateURL(context.Background(), "ftp://example.com/x", nil)
	if err == nil {
		t.Fatal("expected error for non-http(s) scheme")
	}
}

func TestValidateURL_RejectsLoopbackLiteral(t *testing.T) {
	err := ValidateURL(context.Background(), "http://127.0.0.1:8080/internal", nil)
	var ssrf *model.SSRFError
	if !errors.As(err, &ssrf) {
		t.Fatalf("expected *model.SSRFError, got %v", err)
	}
}

func TestValidateURL_RejectsBlockedHostname(t *testing.T) {
	err := ValidateURL(context.Background(), "http://localhost/internal", nil)
	var ssrf *model.SSRFError
	if !errors.As(err, &ssrf) {
		t.Fatalf("expected *model.SSRFError, got %v", err)
	}
}

func TestValidateURL_RejectsPrivateCIDRViaResolver(t *testing.T) {
	resolver := &fakeResolver{addrs: map[string][]net.IPAddr{
		"internal.example.com": {{IP: net.ParseIP("10.0.5.6")}},
	}}
	err := ValidateURL(context.Background(), "https://internal.example.com/hook", resolver)
	var ssrf *model.SSRFError
	if !errors.As(err, &ssrf) {
		t.Fatalf("expected *model.SSRFError, got %v", err)
	}
}

func TestValidateURL_AllowsPublicAddress(t *testing.T) {
	resolver := &fakeResolver{addrs: map[string][]net.IPAddr{
		"api.example.com": {{IP: net.ParseIP("93.184.216.34")}},
	}}
	if err := ValidateURL(context.Background(), "https://api.example.com/webhook", resolver); err != nil {
		t.Fatalf("expected no error for public address, got %v", err)
	}
}

func TestValidateURL_DNSFailureIsNotRejected(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("no such host")}
	if err := ValidateURL(context.Background(), "https://flaky.example.com/hook", resolver); err != nil {
		t.Fatalf("expected DNS failures to pass through, got %v", err)
	}
}

func TestValidateURL_RejectsMissingHost(t *testing.T) {
	err := ValidateURL(context.Background(), "http:///no-host", nil)
	if err == nil {
		t.Fatal("expected error for missing host")
	}
}

// One representative address per blocked range, as IP literals so no
// resolver is involved.
func TestValidateURL_RejectsEveryBlockedRange(t *testing.T) {
	cases := []string{
		"http://127.0.0.1/",
		"http://10.1.2.3/",
		"http://172.16.0.1/",
		"http://192.168.1.1/",
		"http://169.254.169.254/latest/meta-data/",
		"http://[::1]/",
		"http://[fc00::1]/",
		"http://[fe80::1]/",
	}
	for _, rawURL := range cases {
		err := ValidateURL(context.Background(), rawURL, nil)
		var ssrf *model.SSRFError
		if !errors.As(err, &ssrf) {
			t.Errorf("ValidateURL(%q) = %v, want SSRF rejection", rawURL, err)
		}
	}
}
