package utils

import "testing"

func TestShortIDDiffersForSameTimestamp(t *testing.T) {
	// V7 UUIDs minted within the same millisecond share their whole
	// leading timestamp block; only the random tail tells them apart.
	a := "01890a5d-ac96-774b-bcce-b302099a8057"
	b := "01890a5d-ac96-7d66-a57f-3f3b0b9a4a1c"

	if ShortID(a) == ShortID(b) {
		t.Errorf("ShortID collides for distinct UUIDs: %q", ShortID(a))
	}
}

func TestShortIDLength(t *testing.T) {
	id, err := NewUUID7()
	if err != nil {
		t.Fatal(err)
	}

	if got := ShortID(id); len(got) != 8 {
		t.Errorf("ShortID(%q) = %q, want 8 characters", id, got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("ShortID of a short input = %q, want it unchanged", got)
	}
}
