package circleci

import (
	"net/http"
	"testing"
)

func TestVerifySignatureKnownVector(t *testing.T) {
	body := []byte(`{"type":"job-completed"}`)
	const want = "e7d23e4cb9c38def87a426d52606957c030ee48118018c670e30db9a110904b9"
	if got := Sign("s3cret", body); got != want {
		t.Fatalf("unexpected signature: got=%s want=%s", got, want)
	}

	headers := http.Header{}
	headers.Set(SignatureHeader, "v1="+want)
	if !VerifySignature("s3cret", headers, body) {
		t.Fatal("expected valid signature")
	}
}

func TestVerifySignatureHeaderVariants(t *testing.T) {
	body := []byte(`{"type":"job-completed","job":{"name":"build"}}`)
	sig := Sign("secret", body)

	cases := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "v1 only", header: "v1=" + sig, want: true},
		{name: "v1 among others", header: "v0=deadbeef,v1=" + sig, want: true},
		{name: "whitespace", header: " v1 = " + sig + " ", want: true},
		{name: "uppercase hex", header: "v1=" + toUpper(sig), want: true},
		{name: "missing header", header: "", want: false},
		{name: "no v1", header: "v2=" + sig, want: false},
		{name: "malformed pair", header: "v1" + sig, want: false},
		{name: "empty v1", header: "v1=", want: false},
		{name: "wrong digest", header: "v1=" + Sign("other", body), want: false},
		{name: "truncated digest", header: "v1=" + sig[:10], want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := http.Header{}
			if tc.header != "" {
				headers.Set(SignatureHeader, tc.header)
			}
			if got := VerifySignature("secret", headers, body); got != tc.want {
				t.Fatalf("unexpected result: got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"job":{"number":42}}`)
	headers := http.Header{}
	headers.Set(SignatureHeader, SignatureHeaderValue("secret", body))

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		if VerifySignature("secret", headers, tampered) {
			t.Fatalf("tampered byte %d accepted", i)
		}
	}
}

func TestVerifySignatureEmptySecretFailsClosed(t *testing.T) {
	body := []byte(`{}`)
	headers := http.Header{}
	headers.Set(SignatureHeader, SignatureHeaderValue("", body))
	if VerifySignature("", headers, body) {
		t.Fatal("expected empty secret to fail")
	}
	if VerifySignature("secret", nil, body) {
		t.Fatal("expected nil headers to fail")
	}
}

func toUpper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}
