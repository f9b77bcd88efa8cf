package contentid

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

func TestAddressOfKnownVectors(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want ID
	}{
		{name: "empty", data: []byte{}, want: "GKot5hBsd81kMupNCXHaqbhv3huEbxAFMLnpcX2hniwn"},
		{name: "abc", data: []byte("abc"), want: "DYu3G8aGTMBW1WrTw76zxQJQU4DHLw9MLyy7peG4LKkY"},
		{name: "wasm header", data: []byte("\x00asm\x01\x00\x00\x00"), want: "AwLEfgaHQguPVVLGUV9Sf5QKGrMMMr2N6MVSjBj9dJAh"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AddressOf(tc.data)
			if got != tc.want {
				t.Fatalf("unexpected id: got=%s want=%s", got, tc.want)
			}
		})
	}
}

func TestAddressOfIsDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB, 0x00, 0x7F}, 4096)
	first := AddressOf(data)
	for i := 0; i < 5; i++ {
		if got := AddressOf(bytes.Clone(data)); got != first {
			t.Fatalf("id changed between runs: got=%s want=%s", got, first)
		}
	}
	if AddressOf(append(bytes.Clone(data), 0x01)) == first {
		t.Fatal("expected different id for different content")
	}
}

func TestBitcoinAlphabet(t *testing.T) {
	if got := base58.EncodeAlphabet([]byte("hello, world"), base58.BTCAlphabet); got != "2yGEbwRGRKr9Udf39" {
		t.Fatalf("unexpected encoding: %s", got)
	}
}

func TestParse(t *testing.T) {
	id, err := Parse(" AwLEfgaHQguPVVLGUV9Sf5QKGrMMMr2N6MVSjBj9dJAh ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	digest, err := id.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(digest) != 32 {
		t.Fatalf("unexpected digest length: %d", len(digest))
	}

	for _, bad := range []string{"", "0OIl", "2yGEbwRGRKr9Udf39"} {
		if _, err := Parse(bad); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID for %q, got %v", bad, err)
		}
	}
}

func TestDigests(t *testing.T) {
	set := Digests([]byte("abc"))
	if set["sha256"] != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected sha256: %s", set["sha256"])
	}
	if len(set["blake3"]) != 64 {
		t.Fatalf("unexpected blake3 digest: %q", set["blake3"])
	}
	if set["blake3"] == set["sha256"] {
		t.Fatal("expected distinct digests")
	}
}
