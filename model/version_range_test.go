package model

import "testing"

func TestVersionRangeInterval(t *testing.T) {
	r, err := ParseVersionRange("..!2.0")
	if err != nil {
		t.Fatalf("ParseVersionRange() = %v", err)
	}
	for _, v := range []string{"0.9", "1.0", "1.9.9"} {
		if !r.Contains(mustVersion(t, v)) {
			t.Errorf("range ..!2.0 should contain %s", v)
		}
	}
	if r.Contains(mustVersion(t, "2.0")) {
		t.Errorf("range ..!2.0 should exclude 2.0")
	}
}

func TestVersionRangeExact(t *testing.T) {
	r, err := ParseVersionRange("1.0")
	if err != nil {
		t.Fatalf("ParseVersionRange() = %v", err)
	}
	if !r.Contains(mustVersion(t, "1.0")) {
		t.Errorf("exact range should contain 1.0")
	}
	if r.Contains(mustVersion(t, "1.1")) {
		t.Errorf("exact range should not contain 1.1")
	}
}

func TestVersionRangeIntersect(t *testing.T) {
	a, _ := ParseVersionRange("..!2.0")
	b, _ := ParseVersionRange("..!1.1")
	i := a.Intersect(b)
	if !i.Contains(mustVersion(t, "1.0")) {
		t.Errorf("intersection should contain 1.0")
	}
	if i.Contains(mustVersion(t, "1.1")) {
		t.Errorf("intersection should exclude 1.1")
	}
}

func TestVersionRangeEmptyMatchesEverything(t *testing.T) {
	var r VersionRange
	if !r.Contains(mustVersion(t, "99.0")) {
		t.Errorf("empty range should match everything")
	}
}
