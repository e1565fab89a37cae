package tcp

import "testing"

func TestOptionsEncodeParseRoundTrip(t *testing.T) {
	o := Options{MSS: 1460, HasMSS: true, WindowScale: 7, HasWindowScale: true}
	encoded := o.Encode()
	if len(encoded)%4 != 0 {
		t.Fatalf("encoded options not padded to 4 bytes: len=%d", len(encoded))
	}
	parsed, err := ParseOptions(encoded)
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	if parsed != o {
		t.Fatalf("parsed = %+v, want %+v", parsed, o)
	}
}

func TestParseOptionsEmpty(t *testing.T) {
	parsed, err := ParseOptions(nil)
	if err != nil {
		t.Fatalf("ParseOptions(nil): %v", err)
	}
	if parsed.HasMSS || parsed.HasWindowScale {
		t.Fatalf("expected no options parsed from empty input, got %+v", parsed)
	}
}

func TestParseOptionsRejectsTruncated(t *testing.T) {
	if _, err := ParseOptions([]byte{optKindMSS, 4, 0}); err == nil {
		t.Fatal("expected error on truncated MSS option")
	}
}
