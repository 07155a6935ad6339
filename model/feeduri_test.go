package model

import "testing"

func TestFeedURIEscapeRoundTrip(t *testing.T) {
	for _, s := range []string{
		"https://example.com/foo.xml",
		"http://example.com/a b/c.xml",
		"/home/user/my feed.xml",
	} {
		u, err := NewFeedURI(s)
		if err != nil {
			t.Fatalf("NewFeedURI(%q) = %v", s, err)
		}
		escaped := u.Escape()
		back, err := UnescapeFeedURI(escaped)
		if err != nil {
			t.Fatalf("UnescapeFeedURI(%q) = %v", escaped, err)
		}
		if !back.Equal(u) {
			t.Errorf("round trip of %q produced %q", s, back.String())
		}
	}
}

func TestFeedURIRejectsUnsupportedScheme(t *testing.T) {
	if _, err := NewFeedURI("ftp://example.com/feed.xml"); err == nil {
		t.Errorf("expected error for ftp scheme")
	}
}

func TestFeedURIHost(t *testing.T) {
	u, err := NewFeedURI("https://example.com/foo.xml")
	if err != nil {
		t.Fatalf("NewFeedURI() = %v", err)
	}
	if u.Host() != "example.com" {
		t.Errorf("Host() = %q, want example.com", u.Host())
	}
}
