package store

import "testing"

func TestDeterministicUUID_StableAndNamespaced(t *testing.T) {
	a := deterministicUUID("extraction", "ext-1")
	b := deterministicUUID("extraction", "ext-1")
	if a != b {
		t.Errorf("expected the same namespace+key to produce a stable UUID, got %s vs %s", a, b)
	}

	c := deterministicUUID("extraction", "ext-2")
	if a == c {
		t.Error("expected different keys to produce different UUIDs")
	}

	d := deterministicUUID("other-namespace", "ext-1")
	if a == d {
		t.Error("expected different namespaces to produce different UUIDs for the same key")
	}
}
