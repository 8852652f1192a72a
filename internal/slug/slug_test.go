package slug

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Change Owed":       "change_owed",
		"bank-deposit":      "bank_deposit",
		"  __owner drawing": "owner_drawing",
		"deposit_received":  "deposit_received",
		"":                  "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
	if !IsSlug("cash_relocation") || IsSlug("Cash") {
		t.Fatalf("IsSlug mismatch")
	}
}
