package usecase

import "testing"

func TestExtractJSONObjectSkipsBracesInProse(t *testing.T) {
	cases := map[string]string{
		`{"a": 1}`: `{"a": 1}`,
		"Format: {key: value}\n{\"a\": {\"b\": 2}}": `{"a": {"b": 2}}`,
		"{\"a\": 1} then {\"b\": 2}":                `{"a": 1}`,
		"<think>{draft}</think>{\"a\": 1}":          `{"a": 1}`,
	}
	for in, want := range cases {
		got, ok := extractJSONObject(in)
		if !ok || got != want {
			t.Fatalf("extractJSONObject(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	for _, in := range []string{"no json here", "{broken", "{id: score}"} {
		if got, ok := extractJSONObject(in); ok {
			t.Fatalf("extractJSONObject(%q) = %q, want no object", in, got)
		}
	}
}
