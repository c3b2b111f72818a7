package ldap

import "testing"

func TestValidateConfigDisabledAlwaysValid(t *testing.T) {
	if err := ValidateConfig(&Config{Enabled: false}); err != nil {
		t.Fatalf("disabled config should always validate, got %v", err)
	}
}

func TestValidateConfigRequiresFields(t *testing.T) {
	base := Config{
		Enabled:    true,
		Server:     "ldap.example.com",
		Port:       389,
		BindDN:     "cn=svc,dc=example,dc=com",
		BaseDN:     "dc=example,dc=com",
		UserFilter: "(uid={username})",
	}
	if err := ValidateConfig(&base); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	missingServer := base
	missingServer.Server = ""
	if err := ValidateConfig(&missingServer); err == nil {
		t.Error("expected error for missing server")
	}

	badPort := base
	badPort.Port = 0
	if err := ValidateConfig(&badPort); err == nil {
		t.Error("expected error for invalid port")
	}

	missingFilterPlaceholder := base
	missingFilterPlaceholder.UserFilter = "(uid=admin)"
	if err := ValidateConfig(&missingFilterPlaceholder); err == nil {
		t.Error("expected error for user filter missing {username} placeholder")
	}
}
