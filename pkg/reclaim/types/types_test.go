package types

import (
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain bytes", input: "1024", want: 1024},
		{name: "zero", input: "0", want: 0},
		{name: "byte suffix", input: "512B", want: 512},
		{name: "kilobytes", input: "100K", want: 100 * KiB},
		{name: "kibibytes", input: "100KiB", want: 100 * KiB},
		{name: "megabytes", input: "10MB", want: 10 * MiB},
		{name: "lowercase", input: "50m", want: 50 * MiB},
		{name: "gigabytes", input: "2G", want: 2 * GiB},
		{name: "terabytes", input: "1TiB", want: TiB},
		{name: "whitespace", input: "  100M  ", want: 100 * MiB},
		{name: "decimal truncated", input: "1.5G", want: 1610612736},

		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "invalid suffix", input: "100X", wantErr: true},
		{name: "negative", input: "-100M", wantErr: true},
		{name: "letters", input: "abc", wantErr: true},
		{name: "trailing garbage", input: "100M100", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.0 KiB"},
		{1536 * 1024, "1.5 MiB"},
		{50 * 1024 * 1024, "50 MiB"},
		{1 << 30, "1.0 GiB"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestOutcome_TextRoundTrip(t *testing.T) {
	for _, o := range []Outcome{OutcomeDeleted, OutcomeAbsent, OutcomeFailed} {
		b, err := o.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", o, err)
		}
		var back Outcome
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if back != o {
			t.Errorf("round trip %v -> %q -> %v", o, b, back)
		}
	}

	var o Outcome
	if err := o.UnmarshalText([]byte("vanished")); err == nil {
		t.Error("expected error for unknown outcome")
	}
}
