package domainname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare", in: "example.com", want: "example.com"},
		{name: "full url", in: "https://WWW.Example.com/path?x=1", want: "example.com"},
		{name: "www with port", in: "www.example.com:8080", want: "example.com"},
		{name: "http scheme", in: "http://shop.example.com", want: "shop.example.com"},
		{name: "query without path", in: "example.com?ref=plugin", want: "example.com"},
		{name: "uppercase scheme", in: "HTTPS://Foo.com/", want: "foo.com"},
		{name: "surrounding whitespace", in: "  Example.COM  ", want: "example.com"},
		{name: "empty", in: "", want: ""},
		{name: "only scheme", in: "https://", want: ""},
		{name: "trailing colon", in: "example.com:", want: "example.com"},
		{name: "inner www kept", in: "blog.www.example.com", want: "blog.www.example.com"},
		{name: "subdomain kept", in: "https://app.example.com:443/admin", want: "app.example.com"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeVariantsCollapse(t *testing.T) {
	host := "example.com"
	variants := []string{}
	for _, scheme := range []string{"", "http://", "https://", "HTTPS://"} {
		for _, www := range []string{"", "www.", "WWW."} {
			for _, port := range []string{"", ":80", ":8443"} {
				for _, suffix := range []string{"", "/", "/wp-admin/plugins.php", "?a=1", "/p?q=2"} {
					variants = append(variants, scheme+www+host+port+suffix)
				}
			}
		}
	}

	for _, v := range variants {
		if got := Normalize(v); got != host {
			t.Fatalf("Normalize(%q) = %q, want %q", v, got, host)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, in := range []string{"https://WWW.Foo.com/", "bar.com:99", "", "x"} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("https://www.foo.com/", "foo.com"))
	assert.False(t, Equal("foo.com", "bar.com"))
}
