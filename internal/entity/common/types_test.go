package common

import (
	"testing"
)

func TestStringArrayScan(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  []string
	}{
		{name: "bytes", value: []byte(`["https://cdn/a.png","https://cdn/b.png"]`), want: []string{"https://cdn/a.png", "https://cdn/b.png"}},
		{name: "string", value: `["x"]`, want: []string{"x"}},
		{name: "empty string", value: "", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StringArray
			if err := got.Scan(tt.value); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}

	var a StringArray
	if err := a.Scan(42); err == nil {
		t.Fatal("expected error for int value")
	}
}

func TestStringArrayValueAndFirst(t *testing.T) {
	v, err := StringArray(nil).Value()
	if err != nil || v != "[]" {
		t.Fatalf("expected [] for empty array, got %v (%v)", v, err)
	}
	if first := (StringArray{"", "https://cdn/b.png"}).First(); first != "https://cdn/b.png" {
		t.Fatalf("expected first non-empty entry, got %q", first)
	}
	if first := (StringArray{}).First(); first != "" {
		t.Fatalf("expected empty, got %q", first)
	}
}
