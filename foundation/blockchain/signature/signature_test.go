package signature_test

import (
	"testing"

	"github.com/kobaltchain/kobalt/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Hash(t *testing.T) {
	type value struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Log("Given the need to validate content hashing.")
	{
		v := value{Name: "kobalt", Count: 10}

		h1 := signature.Hash(v)
		h2 := signature.Hash(v)
		if h1 != h2 {
			t.Fatalf("\t%s\tShould produce the same hash for the same value: %s != %s", failed, h1, h2)
		}
		t.Logf("\t%s\tShould produce the same hash for the same value.", success)

		v.Count = 11
		h3 := signature.Hash(v)
		if h3 == h1 {
			t.Fatalf("\t%s\tShould produce a different hash for a different value.", failed)
		}
		t.Logf("\t%s\tShould produce a different hash for a different value.", success)

		if !signature.IsWellFormed(h1) {
			t.Fatalf("\t%s\tShould produce a well formed hash: %s", failed, h1)
		}
		t.Logf("\t%s\tShould produce a well formed hash.", success)

		if !signature.IsWellFormed(signature.ZeroHash) {
			t.Fatalf("\t%s\tShould treat the zero hash as well formed.", failed)
		}
		t.Logf("\t%s\tShould treat the zero hash as well formed.", success)

		if signature.IsWellFormed("0x1234") {
			t.Fatalf("\t%s\tShould reject a short hash.", failed)
		}
		t.Logf("\t%s\tShould reject a short hash.", success)
	}
}

func Test_LeadingZeros(t *testing.T) {
	tt := []struct {
		name string
		hash string
		exp  int
	}{
		{name: "none", hash: "0xab00000000000000000000000000000000000000000000000000000000000000", exp: 0},
		{name: "three", hash: "0x000ab00000000000000000000000000000000000000000000000000000000000", exp: 3},
		{name: "all", hash: signature.ZeroHash, exp: 64},
	}

	t.Log("Given the need to count leading zeros in a hash.")
	{
		for _, tst := range tt {
			f := func(t *testing.T) {
				got := signature.LeadingZeros(tst.hash)
				if got != tst.exp {
					t.Fatalf("\t%s\tTest %s:\tShould count the zeros, got %d, exp %d.", failed, tst.name, got, tst.exp)
				}
				t.Logf("\t%s\tTest %s:\tShould count the zeros.", success, tst.name)
			}

			t.Run(tst.name, f)
		}
	}
}
