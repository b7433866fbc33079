package validation

import (
	"testing"
	"time"
)

func TestFormatNumber(t *testing.T) {
	day := time.Date(2026, time.March, 5, 23, 59, 0, 0, time.UTC)

	got := FormatNumber(PrefixOnlineOrder, day, 42)
	if got != "ORD-20260305-00042" {
		t.Fatalf("FormatNumber = %q, want %q", got, "ORD-20260305-00042")
	}
	if !IsValidOrderNumber(got) {
		t.Fatalf("formatted number %q must be valid", got)
	}
}

func TestIsValidOrderNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{name: "online", number: "ORD-20260315-00001", valid: true},
		{name: "offline", number: "OFF-20261231-99999", valid: true},
		{name: "ticket prefix", number: "TKT-20260315-00001", valid: false},
		{name: "bad date", number: "ORD-20261332-00001", valid: false},
		{name: "short sequence", number: "ORD-20260315-001", valid: false},
		{name: "zero sequence", number: "ORD-20260315-00000", valid: false},
		{name: "letters in sequence", number: "ORD-20260315-0a001", valid: false},
		{name: "lowercase prefix", number: "ord-20260315-00001", valid: false},
		{name: "empty string", number: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidOrderNumber(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidOrderNumber(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}

func TestIsValidTicketNumber(t *testing.T) {
	if !IsValidTicketNumber("TKT-20260315-00003") {
		t.Fatalf("expected ticket number to be valid")
	}
	if IsValidTicketNumber("ORD-20260315-00003") {
		t.Fatalf("order number must not pass as ticket number")
	}
}
