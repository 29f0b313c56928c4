package users

import "testing"

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid", "alice", false},
		{"valid with digits", "alice42", false},
		{"valid with underscore", "alice_smith", false},
		{"valid with hyphen", "alice-smith", false},
		{"minimum length", "abc", false},
		{"maximum length", "a234567890123456789012345678901b", false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"too long", "a234567890123456789012345678901bc", true},
		{"starts with digit", "1alice", true},
		{"starts with underscore", "_alice", true},
		{"contains space", "alice smith", true},
		{"contains dot", "alice.smith", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tt.username, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid", "alice@example.com", false},
		{"valid subdomain", "alice@mail.example.co.uk", false},
		{"valid plus tag", "alice+tag@example.com", false},
		{"empty", "", true},
		{"no at sign", "alice.example.com", true},
		{"no domain", "alice@", true},
		{"no tld", "alice@example", true},
		{"double at", "alice@@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRole(t *testing.T) {
	for _, role := range []string{"admin", "analyst", "viewer"} {
		if err := ValidateRole(role); err != nil {
			t.Errorf("ValidateRole(%q) = %v, want nil", role, err)
		}
	}
	for _, role := range []string{"", "root", "Admin", "superuser"} {
		if err := ValidateRole(role); err == nil {
			t.Errorf("ValidateRole(%q) = nil, want error", role)
		}
	}
}
