package fingerprint

import "testing"

func TestHashDeterministic(t *testing.T) {
	a := Hash("Netflix to acquire Warner Bros for $82.7B", "deadline_rss")
	b := Hash("Netflix to acquire Warner Bros for $82.7B", "deadline_rss")
	if a != b {
		t.Fatalf("same input produced different hashes: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestHashNormalization(t *testing.T) {
	a := Hash("Netflix  Acquires\tWarner Bros", "Deadline_RSS")
	b := Hash("netflix acquires warner bros", "deadline_rss")
	if a != b {
		t.Error("case and whitespace differences should not change the hash")
	}
}

func TestHashDistinguishesSource(t *testing.T) {
	a := Hash("Netflix acquires Warner Bros", "deadline_rss")
	b := Hash("Netflix acquires Warner Bros", "variety_rss")
	if a == b {
		t.Error("different sources should produce different fingerprints")
	}
}

func TestHashEmptySentinel(t *testing.T) {
	a := Hash("", "")
	b := Hash("   ", "\t\n")
	if a != b {
		t.Error("all-whitespace input should hash to the empty sentinel")
	}
	if a == "" {
		t.Error("sentinel hash should not be empty")
	}
}

func TestArticleHash(t *testing.T) {
	a := ArticleHash("netflix", "Title", "https://example.com/a")
	b := ArticleHash("netflix", "Title", "https://example.com/b")
	if a == b {
		t.Error("different URLs should produce different article hashes")
	}
}
