package validate

import (
	"errors"
	"testing"

	"github.com/any-hub/any-cache/internal/filecache"
)

func staticOptions(opts filecache.Options) func() filecache.Options {
	return func() filecache.Options { return opts }
}

func TestValidateDefaults(t *testing.T) {
	v := New(staticOptions(filecache.DefaultOptions()))

	u, err := v.Validate("https://img.example.com/a.png")
	if err != nil {
		t.Fatalf("expected https to pass, got %v", err)
	}
	if u.Host != "img.example.com" {
		t.Fatalf("unexpected host %s", u.Host)
	}
	if _, err := v.Validate("HTTPS://img.example.com/a.png"); err != nil {
		t.Fatalf("scheme match should ignore case, got %v", err)
	}
	if _, err := v.Validate("http://img.example.com/a.png"); !errors.Is(err, ErrProtocolNotAllowed) {
		t.Fatalf("expected protocol rejection, got %v", err)
	}
}

func TestValidateMalformed(t *testing.T) {
	v := New(staticOptions(filecache.DefaultOptions()))
	for _, raw := range []string{"", "/relative/path.png", "https://", "://bad"} {
		if _, err := v.Validate(raw); !errors.Is(err, ErrMalformedURL) {
			t.Fatalf("expected malformed error for %q, got %v", raw, err)
		}
	}
}

func TestValidateHostWhitelist(t *testing.T) {
	opts := filecache.DefaultOptions()
	opts.ValidProtocols = []string{"http", "https:"}
	opts.FileHostWhitelist = []string{"img.example.com", "cdn.example.com:8443"}
	v := New(staticOptions(opts))

	cases := map[string]error{
		"https://img.example.com/a.png":      nil,
		"http://IMG.example.com:8080/a.png":  nil,
		"https://cdn.example.com/b.jpg":      nil,
		"https://evil.example.com/a.png":     ErrHostNotAllowed,
		"https://img.example.com.evil/a.png": ErrHostNotAllowed,
	}
	for raw, want := range cases {
		_, err := v.Validate(raw)
		if want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", raw, err)
		}
		if want != nil && !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", raw, want, err)
		}
	}
}

func TestValidateReadsOptionsPerCall(t *testing.T) {
	opts := filecache.DefaultOptions()
	v := New(func() filecache.Options { return opts })

	if _, err := v.Validate("http://img.example.com/a.png"); err == nil {
		t.Fatalf("expected rejection before reload")
	}
	opts.ValidProtocols = []string{"http"}
	if _, err := v.Validate("http://img.example.com/a.png"); err != nil {
		t.Fatalf("expected reload to take effect, got %v", err)
	}
}
