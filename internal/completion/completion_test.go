package completion

import (
	"reflect"
	"testing"

	"github.com/kurtskinny/twitch-chat-core/internal/chatterindex"
)

func displayNames(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.DisplayName
	}
	return out
}

// Scenario 5: emote completion exact promotion.
func TestClassicEmoteStrategyPromotesExactMatch(t *testing.T) {
	items := []Item{
		{DisplayName: "Kappa", SearchName: "Kappa"},
		{DisplayName: "KappaPride", SearchName: "KappaPride"},
		{DisplayName: "Keepo", SearchName: "Keepo"},
	}
	out := ClassicEmoteStrategy{}.Apply(items, "Kappa")
	if got := displayNames(out); !reflect.DeepEqual(got, []string{"Kappa", "KappaPride"}) {
		t.Fatalf("got %v", got)
	}
}

func TestClassicEmoteStrategyPromotesColonExactMatch(t *testing.T) {
	items := []Item{
		{DisplayName: "KappaPride", SearchName: "KappaPride"},
		{DisplayName: "Kappa", SearchName: "Kappa"},
	}
	out := ClassicEmoteStrategy{}.Apply(items, ":Kappa")
	if got := displayNames(out); !reflect.DeepEqual(got, []string{"Kappa", "KappaPride"}) {
		t.Fatalf("got %v", got)
	}
}

func TestPrefixOnlyEmoteStrategySortsCaseInsensitively(t *testing.T) {
	items := []Item{
		{SearchName: "keepo"},
		{SearchName: "Kappa"},
		{SearchName: "KappaPride"},
	}
	out := PrefixOnlyEmoteStrategy{}.Apply(items, ":ka")
	var names []string
	for _, it := range out {
		names = append(names, it.SearchName)
	}
	if !reflect.DeepEqual(names, []string{"Kappa", "KappaPride"}) {
		t.Fatalf("got %v", names)
	}
}

func TestClassicUserStrategyPreservesSetOrder(t *testing.T) {
	items := []Item{{SearchName: "pajbot"}, {SearchName: "Pajlada"}}
	out := ClassicUserStrategy{}.Apply(items, "@pa")
	if len(out) != 2 || out[0].SearchName != "pajbot" || out[1].SearchName != "Pajlada" {
		t.Fatalf("got %+v", out)
	}
}

func TestCommandStrategyPrefixVsContains(t *testing.T) {
	items := []Item{{SearchName: "ban"}, {SearchName: "unban"}}
	prefix := CommandStrategy{UseContains: false}.Apply(items, "/ban")
	if len(prefix) != 1 || prefix[0].SearchName != "ban" {
		t.Fatalf("prefix mode got %+v", prefix)
	}
	contains := CommandStrategy{UseContains: true}.Apply(items, ".ban")
	if len(contains) != 2 {
		t.Fatalf("contains mode got %+v", contains)
	}
}

func TestUserSourceEmitStringListAppendsSeparatorWhenNotFirstWord(t *testing.T) {
	idx := chatterindex.New()
	idx.Insert("pajlada")
	src := NewUserSource(idx, ClassicUserStrategy{})
	src.Update("@pa")

	first := src.EmitStringList(0, true)
	if len(first) != 1 || first[0] != "@pajlada" {
		t.Fatalf("first-word form: got %v", first)
	}
	cont := src.EmitStringList(0, false)
	if len(cont) != 1 || cont[0] != "@pajlada, " {
		t.Fatalf("continuation form: got %v", cont)
	}
}

func TestCommandSourcePreservesInvocationPrefix(t *testing.T) {
	src := NewCommandSource(CommandStrategy{}, []Command{{Name: "ban"}, {Name: "unban"}})
	src.Update(".ban")
	out := src.EmitStringList(0, true)
	if len(out) != 1 || out[0] != ".ban" {
		t.Fatalf("got %v", out)
	}

	src.Update("/ban")
	out = src.EmitStringList(0, true)
	if len(out) != 1 || out[0] != "/ban" {
		t.Fatalf("got %v", out)
	}
}

func TestDeduceSourceKind(t *testing.T) {
	cases := []struct {
		query string
		want  SourceKind
	}{
		{"k", SourceNone},
		{"@pa", SourceUser},
		{":Ka", SourceEmote},
		{"/ba", SourceCommand},
		{".ba", SourceCommand},
		{"ka", SourceEmote},
	}
	for _, c := range cases {
		if got := DeduceSourceKind(c.query); got != c.want {
			t.Fatalf("DeduceSourceKind(%q) = %v, want %v", c.query, got, c.want)
		}
	}
}

func TestDeduceTabCompletionKindPrefersUnifiedWhenAllowed(t *testing.T) {
	if got := DeduceTabCompletionKind("ka", true); got != SourceUnified {
		t.Fatalf("got %v", got)
	}
	if got := DeduceTabCompletionKind("ka", false); got != SourceEmote {
		t.Fatalf("got %v", got)
	}
	if got := DeduceTabCompletionKind("@pa", true); got != SourceUser {
		t.Fatalf("got %v", got)
	}
}

func TestUnifiedSourceInterleavesResults(t *testing.T) {
	emote := NewEmoteSource(ClassicEmoteStrategy{})
	emote.SetVocabulary([]Item{{DisplayName: "Kappa", SearchName: "Kappa", InsertText: "Kappa "}})

	idx := chatterindex.New()
	idx.Insert("kappuccino")
	user := NewUserSource(idx, ClassicUserStrategy{})

	u := NewUnifiedSource(emote, user)
	u.Update("ka")

	names := displayNames(u.EmitListView(0))
	if !reflect.DeepEqual(names, []string{"Kappa", "kappuccino"}) {
		t.Fatalf("got %v", names)
	}
}
