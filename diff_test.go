package pullsync

import (
	"fmt"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
)

// invFromSeeds builds an inventory whose digests come from a small alphabet,
// so that server and client inventories overlap often.
func invFromSeeds(prefix string, seeds []uint8) Inventory {
	var out Inventory
	for i, s := range seeds {
		out = append(out, FileRecord{
			Name:   fmt.Sprintf("%s%d", prefix, i),
			Digest: DigestBytes([]byte{s % 8}),
		})
	}
	return out
}

func TestDiffProperties(t *testing.T) {
	f := func(serverSeeds, clientSeeds []uint8) bool {
		var (
			server = invFromSeeds("s", serverSeeds)
			client = invFromSeeds("c", clientSeeds)
			got    = Diff(server, client)
			have   = client.Digests()
		)

		for _, rec := range got {
			if _, ok := have[rec.Digest]; ok {
				t.Logf("result record %s has a digest the client holds", rec)
				return false
			}
		}

		var matched int
		for _, rec := range server {
			if _, ok := have[rec.Digest]; ok {
				matched++
			}
		}
		if len(got)+matched != len(server) {
			t.Logf("got %d results and %d matches for %d server records", len(got), matched, len(server))
			return false
		}

		// Order follows the server inventory.
		j := 0
		for _, rec := range server {
			if j < len(got) && got[j] == rec {
				j++
			}
		}
		return j == len(got)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestDiff(t *testing.T) {
	var (
		h1 = DigestBytes([]byte("one"))
		h2 = DigestBytes([]byte("two"))
		h3 = DigestBytes([]byte("three"))
	)

	cases := []struct {
		name           string
		server, client Inventory
		want           Inventory
	}{
		{
			name:   "client empty",
			server: Inventory{{Name: "a.txt", Digest: h1}},
			want:   Inventory{{Name: "a.txt", Digest: h1}},
		},
		{
			name:   "same content different name",
			server: Inventory{{Name: "a.txt", Digest: h1}},
			client: Inventory{{Name: "renamed.txt", Digest: h1}},
		},
		{
			name:   "same name different content",
			server: Inventory{{Name: "a.txt", Digest: h1}},
			client: Inventory{{Name: "a.txt", Digest: h2}},
			want:   Inventory{{Name: "a.txt", Digest: h1}},
		},
		{
			name:   "client-only files are not reported",
			server: Inventory{{Name: "a.txt", Digest: h1}, {Name: "c.txt", Digest: h3}},
			client: Inventory{{Name: "a.txt", Digest: h1}, {Name: "b.txt", Digest: h2}},
			want:   Inventory{{Name: "c.txt", Digest: h3}},
		},
		{
			name: "server empty",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Diff(tc.server, tc.client)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}

			// Diff has no memory between calls.
			again := Diff(tc.server, tc.client)
			if diff := cmp.Diff(got, again); diff != "" {
				t.Errorf("second call differs (-first +second):\n%s", diff)
			}
		})
	}
}
