package sptopic

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"spBv1.0/g/NBIRTH/n",
		"spBv1.0/g/NDATA/n",
		"spBv1.0/g/NDEATH/n",
		"spBv1.0/g/NCMD/n",
		"spBv1.0/g/DBIRTH/n/dev1",
		"spBv1.0/g/DDATA/n/dev1",
		"spBv1.0/g/DCMD/n/dev1",
		"spBv1.0/g/DDEATH/n/dev1",
		"spBv1.0/STATE/host1",
	}
	for _, s := range cases {
		topic, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := topic.String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
		back, err := Parse(topic.String())
		if err != nil {
			t.Fatalf("re-parse: %v", err)
		}
		if back != topic {
			t.Errorf("round trip mismatch: %+v != %+v", back, topic)
		}
	}
}

func TestParseRejectsBadArity(t *testing.T) {
	cases := []string{
		"spBv1.0/g/DBIRTH/n",     // D* needs device id
		"spBv1.0/g/NBIRTH/n/dev", // N* forbids device id
		"spBv1.0/g/NBIRTH",
		"spBv1.0/g//n",
		"other/g/NBIRTH/n",
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error, got none", s)
		}
	}
}

func TestParseRejectsWildcardsInPublishTopics(t *testing.T) {
	if _, err := Parse("spBv1.0/g/+/n"); err == nil {
		t.Error("expected wildcard rejection in publish topic")
	}
	if _, err := ParseSubscription("spBv1.0/+/+/n"); err != nil {
		t.Errorf("ParseSubscription should accept wildcards: %v", err)
	}
}

func TestParseRejectsNonTerminalMultiWildcard(t *testing.T) {
	if _, err := ParseSubscription("spBv1.0/g/#/n"); err == nil {
		t.Error("expected error for non-terminal '#'")
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"spBv1.0/g/NBIRTH/n", "spBv1.0/g/NBIRTH/n", true},
		{"spBv1.0/g/+/n", "spBv1.0/g/NDATA/n", true},
		{"spBv1.0/g/#", "spBv1.0/g/DDATA/n/dev1", true},
		{"spBv1.0/g/+/n", "spBv1.0/g/NDATA/n/dev1", false},
		{"spBv1.0/g/NBIRTH/n", "spBv1.0/g/NBIRTH/other", false},
	}
	for _, c := range cases {
		if got := Matches(c.filter, c.topic); got != c.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}

func TestNodeDeviceTopicHelpers(t *testing.T) {
	if got := NodeTopic("g", NBIRTH, "n"); got != "spBv1.0/g/NBIRTH/n" {
		t.Errorf("NodeTopic = %q", got)
	}
	if got := DeviceTopic("g", DBIRTH, "n", "dev1"); got != "spBv1.0/g/DBIRTH/n/dev1" {
		t.Errorf("DeviceTopic = %q", got)
	}
	if got := StateTopic("host1"); got != "spBv1.0/STATE/host1" {
		t.Errorf("StateTopic = %q", got)
	}
}
