package pii

import "testing"

func TestExcluded(t *testing.T) {
	ex := NewExclusions("Signature of Holder")

	tests := []struct {
		text string
		want bool
	}{
		{"Name", true},
		{"NAME :", true},
		{"Date of Birth", true},
		{"Government of India", true},
		{"INCOME TAX DEPARTMENT", true},
		{"भारत सरकार", true},
		{"signature of holder:", true},
		{"Cardiff Road", false},
		{"Asha Rao", false},
		{"12/08/1990", false},
	}
	for _, tt := range tests {
		if got := ex.Excluded(tt.text); got != tt.want {
			t.Errorf("Excluded(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSplitCaption(t *testing.T) {
	ex := NewExclusions()

	tests := []struct {
		text       string
		wantHint   EntityType
		wantValue  string
		wantOffset int
		wantOK     bool
	}{
		{"DOB: 12/08/1990", TypeDate, "12/08/1990", 5, true},
		{"Name:Asha Rao ", TypePerson, "Asha Rao", 5, true},
		{"Gender: Female", "", "Female", 8, true},
		{"Address:", TypeAddress, "", 8, true},
		{"Ref: 42", "", "", 0, false},
		{"no caption here", "", "", 0, false},
	}
	for _, tt := range tests {
		hint, value, offset, ok := ex.SplitCaption(tt.text)
		if ok != tt.wantOK || hint != tt.wantHint || value != tt.wantValue || offset != tt.wantOffset {
			t.Errorf("SplitCaption(%q) = (%q, %q, %d, %v), want (%q, %q, %d, %v)",
				tt.text, hint, value, offset, ok, tt.wantHint, tt.wantValue, tt.wantOffset, tt.wantOK)
		}
	}
}
