package netguard

import "testing"

func TestValidateURLRejectsNonHTTPScheme(t *testing.T) {
	if err := ValidateURL("file:///etc/passwd", false, false); err == nil {
		t.Error("expected file:// scheme to be rejected")
	}
}

func TestValidateURLRejectsPrivateAddress(t *testing.T) {
	if err := ValidateURL("http://10.0.0.5/api/v4", false, false); err == nil {
		t.Error("expected private address to be rejected")
	}
}

func TestValidateURLAllowsPublicHTTPS(t *testing.T) {
	if err := ValidateURL("https://gitlab.com/api/v4", false, false); err != nil {
		t.Errorf("expected public https URL to validate, got %v", err)
	}
}

func TestValidateURLLoopbackRequiresAllowLocalhost(t *testing.T) {
	if err := ValidateURL("http://127.0.0.1:8080/api/v4", false, false); err == nil {
		t.Error("expected loopback to be rejected without allowLocalhost")
	}
	if err := ValidateURL("http://127.0.0.1:8080/api/v4", true, false); err != nil {
		t.Errorf("expected loopback to validate with allowLocalhost, got %v", err)
	}
}

func TestValidateURLRejectsLinkLocal(t *testing.T) {
	if err := ValidateURL("http://169.254.169.254/latest/meta-data", false, false); err == nil {
		t.Error("expected link-local (cloud metadata) address to be rejected")
	}
}
