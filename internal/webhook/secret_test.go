package webhook

import "testing"

func TestVerifySecret(t *testing.T) {
	tests := []struct {
		name      string
		presented string
		secret    string
		want      bool
	}{
		{"no secret configured", "", "", true},
		{"no secret configured ignores header", "anything", "", true},
		{"match", "s3cret", "s3cret", true},
		{"mismatch", "s3cre7", "s3cret", false},
		{"missing header", "", "s3cret", false},
		{"prefix only", "s3c", "s3cret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verifySecret(tt.presented, tt.secret); got != tt.want {
				t.Errorf("verifySecret(%q, %q) = %v, want %v", tt.presented, tt.secret, got, tt.want)
			}
		})
	}
}
