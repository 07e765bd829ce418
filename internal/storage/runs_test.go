package storage

import "testing"

// TestRunStatus verifies the final status derived from run counts.
func TestRunStatus(t *testing.T) {
	tests := []struct {
		generated, failed int
		want              string
	}{
		{3, 0, RunSuccess},
		{0, 0, RunSuccess},
		{2, 1, RunPartial},
		{0, 4, RunError},
	}
	for _, tt := range tests {
		if got := RunStatus(tt.generated, tt.failed); got != tt.want {
			t.Errorf("RunStatus(%d, %d) = %q, want %q", tt.generated, tt.failed, got, tt.want)
		}
	}
}

// TestClampLimit verifies defaults and the upper cap for list queries.
func TestClampLimit(t *testing.T) {
	tests := []struct {
		limit, def, want int
	}{
		{0, 50, 50},
		{-3, 100, 100},
		{20, 50, 20},
		{10000, 50, 500},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.limit, tt.def); got != tt.want {
			t.Errorf("clampLimit(%d, %d) = %d, want %d", tt.limit, tt.def, got, tt.want)
		}
	}
}

// TestChecksum verifies the hex SHA-256 used to detect changed files.
func TestChecksum(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Checksum(nil); got != want {
		t.Errorf("Checksum(nil) = %q, want %q", got, want)
	}
	if Checksum([]byte("a")) == Checksum([]byte("b")) {
		t.Error("different content produced the same checksum")
	}
}
