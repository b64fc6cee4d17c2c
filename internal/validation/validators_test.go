package validation

import (
	"testing"
)

func TestValidateAccountClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"standard", "standard", false},
		{"privileged", "privileged-precedence", false},
		{"unknown", "vip", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateAccountClass(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAccountClass(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestAccountClassTag(t *testing.T) {
	t.Parallel()

	type payload struct {
		Class string `validate:"required,account_class"`
	}

	if err := Validate.Struct(&payload{Class: "standard"}); err != nil {
		t.Errorf("valid class rejected: %v", err)
	}
	if err := Validate.Struct(&payload{Class: "vip"}); err == nil {
		t.Error("unknown class accepted")
	}
}
