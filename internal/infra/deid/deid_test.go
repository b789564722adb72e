package deid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "iso date", in: "Admitted 2024-03-15 for CAP.", want: "Admitted [DATE] for CAP."},
		{name: "slash date", in: "seen 03/15/24", want: "seen [DATE]"},
		{name: "single digit parts", in: "seen 24/3/5", want: "seen [DATE]"},
		{name: "mrn", in: "MRN 1234567890123", want: "MRN [ID]"},
		{name: "ten digits are an id before a phone", in: "call 5551234567", want: "call [ID]"},
		{name: "dashed phone", in: "call 555-123-4567 today", want: "call [PHONE] today"},
		{name: "dotted phone", in: "call 555.123.4567", want: "call [PHONE]"},
		{name: "email", in: "mail j.doe-1@clinic.example.org now", want: "mail [EMAIL] now"},
		{name: "dosage untouched", in: "metoprolol 25 mg BID", want: "metoprolol 25 mg BID"},
		{
			name: "mixed",
			in:   "Pt seen 2023/1/2, phone 555 123 4567, email a@b.io, MRN 99887766554",
			want: "Pt seen [DATE], phone [PHONE], email [EMAIL], MRN [ID]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Redact(tt.in))
		})
	}
}

func TestRedact_Idempotent(t *testing.T) {
	in := "DOB 1980-01-02, phone 555-123-4567"
	once := Redact(in)
	assert.Equal(t, once, Redact(once))
}
