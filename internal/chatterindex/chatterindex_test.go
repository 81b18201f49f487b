package chatterindex

import (
	"reflect"
	"testing"
)

// Scenario 6: prefix subrange.
func TestSubrangeYieldsContiguousSetOrder(t *testing.T) {
	c := New()
	for _, name := range []string{"Pajlada", "pajbot", "randers", "Raccattack"} {
		c.Insert(name)
	}

	got := c.Subrange(NewPrefix("pa"))
	want := []string{"pajbot", "Pajlada"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestPrefixIsStartOfHandlesShortNames(t *testing.T) {
	p := NewPrefix("pa")
	if p.IsStartOf("") {
		t.Fatalf("empty name must not match a non-null prefix")
	}
	if !NewPrefix("").IsStartOf("") {
		t.Fatalf("null prefix must match empty name")
	}
	single := NewPrefix("p")
	if !single.IsStartOf("p") {
		t.Fatalf("single-rune prefix must match equal single-rune name")
	}
	if single.IsStartOf("pa") {
		t.Fatalf("single-rune prefix (second=0) must not match a 2+ rune name")
	}
}

func TestInsertReplacesWithLexicographicallySmallerForm(t *testing.T) {
	c := New()
	c.Insert("pajlada")
	isNew := c.Insert("Pajlada")
	if isNew {
		t.Fatalf("case-insensitive duplicate must not be reported as a new key")
	}
	all := c.All()
	if len(all) != 1 || all[0] != "Pajlada" {
		t.Fatalf("expected lexicographically smaller form 'Pajlada' to win, got %v", all)
	}
}

func TestInsertKeepsSmallerFormWhenNewIsLarger(t *testing.T) {
	c := New()
	c.Insert("Pajlada")
	c.Insert("pajlada")
	all := c.All()
	if len(all) != 1 || all[0] != "Pajlada" {
		t.Fatalf("expected original smaller form retained, got %v", all)
	}
}

func TestContains(t *testing.T) {
	c := New()
	c.Insert("randers")
	if !c.Contains("RANDERS") {
		t.Fatalf("expected case-insensitive match")
	}
	if c.Contains("pajlada") {
		t.Fatalf("expected no match for absent name")
	}
}

func TestMergeDropsNamesAbsentFromOtherAndAdoptsPrefixIndex(t *testing.T) {
	a := New()
	a.Insert("pajlada")
	a.Insert("stale_user")

	b := New()
	b.Insert("Pajlada")
	b.Insert("randers")

	a.Merge(b)

	all := a.All()
	want := []string{"pajlada", "randers"}
	if !reflect.DeepEqual(all, want) {
		t.Fatalf("got %v want %v", all, want)
	}
	if got := a.Subrange(NewPrefix("ra")); len(got) != 1 || got[0] != "randers" {
		t.Fatalf("expected adopted prefix index to resolve 'ra', got %v", got)
	}
}

func TestReplaceRebuildsIndexFromScratch(t *testing.T) {
	c := New()
	c.Insert("oldname")
	c.Replace([]string{"newname", "other"})

	all := c.All()
	want := []string{"newname", "other"}
	if !reflect.DeepEqual(all, want) {
		t.Fatalf("got %v want %v", all, want)
	}
	if c.Contains("oldname") {
		t.Fatalf("expected old name to be gone after Replace")
	}
}
