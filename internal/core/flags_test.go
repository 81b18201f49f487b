package core

import "testing"

func TestFlagsHasAndWith(t *testing.T) {
	f := Flags(0).With(Highlighted).With(Centered)
	if !f.Has(Highlighted) {
		t.Fatalf("expected Highlighted set")
	}
	if !f.Has(Centered) {
		t.Fatalf("expected Centered set")
	}
	if f.Has(Timeout) {
		t.Fatalf("did not expect Timeout set")
	}
	f = f.Without(Highlighted)
	if f.Has(Highlighted) {
		t.Fatalf("expected Highlighted cleared")
	}
}

func TestFlagsHighBits(t *testing.T) {
	f := Flags(0).With(Action).With(ClearChat)
	if !f.Has(Action) || !f.Has(ClearChat) {
		t.Fatalf("expected Action and ClearChat set, got %s", f)
	}
	if f.Has(System) {
		t.Fatalf("did not expect System set")
	}
}

func TestFlagsString(t *testing.T) {
	if got := Flags(0).String(); got != "None" {
		t.Fatalf("zero flags should stringify to None, got %q", got)
	}
	f := Flags(0).With(System).With(Timeout)
	got := f.String()
	if got != "System|Timeout" {
		t.Fatalf("unexpected flag string: %q", got)
	}
}

func TestMessageWithFlagsDoesNotMutateOriginal(t *testing.T) {
	m := NewMessageBuilder().WithID("a").Build()
	m2 := m.WithFlags(Disabled)
	if m.Flags.Has(Disabled) {
		t.Fatalf("original message must not be mutated")
	}
	if !m2.Flags.Has(Disabled) {
		t.Fatalf("expected copy to carry Disabled flag")
	}
}

func TestMessageBuilderElementsAreCopied(t *testing.T) {
	b := NewMessageBuilder().WithID("x").AppendElement(TextElement("hi", 0))
	m := b.Build()
	b.AppendElement(TextElement("more", 0))
	if len(m.Elements) != 1 {
		t.Fatalf("Build() must snapshot elements: got %d elements", len(m.Elements))
	}
}
