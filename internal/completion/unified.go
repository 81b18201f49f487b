package completion

import "sync"

// UnifiedSource composes an emote source and a user source, interleaving
// their results. Used when a query's prefix is ambiguous (neither '@',
// ':', nor '/').
type UnifiedSource struct {
	mu     sync.Mutex
	emote  *EmoteSource
	user   *UserSource
	merged []Item
}

// NewUnifiedSource composes emote and user into one source.
func NewUnifiedSource(emote *EmoteSource, user *UserSource) *UnifiedSource {
	return &UnifiedSource{emote: emote, user: user}
}

func (s *UnifiedSource) Update(query string) {
	s.emote.Update(query)
	s.user.Update(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	emoteItems := s.emote.EmitListView(0)
	userItems := s.user.EmitListView(0)

	merged := make([]Item, 0, len(emoteItems)+len(userItems))
	for i := 0; i < len(emoteItems) || i < len(userItems); i++ {
		if i < len(emoteItems) {
			merged = append(merged, emoteItems[i])
		}
		if i < len(userItems) {
			merged = append(merged, userItems[i])
		}
	}
	s.merged = merged
}

func (s *UnifiedSource) EmitListView(cap int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return truncate(s.merged, cap)
}

func (s *UnifiedSource) EmitStringList(cap int, isFirstWord bool) []string {
	s.mu.Lock()
	items := truncate(s.merged, cap)
	s.mu.Unlock()

	out := make([]string, len(items))
	for i, it := range items {
		if it.InsertText != "" {
			out[i] = it.InsertText
			continue
		}
		text := "@" + it.DisplayName
		if !isFirstWord {
			text += ", "
		}
		out[i] = text
	}
	return out
}

// SourceKind names which concrete source a query should route to.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceEmote
	SourceUser
	SourceCommand
	SourceUnified
)

// DeduceSourceKind implements spec.md §4.7's automatic source-kind
// deduction: queries under two characters get no completion; an '@'
// prefix routes to users, ':' to emotes, '/' or '.' to commands;
// anything else defaults to emotes.
func DeduceSourceKind(query string) SourceKind {
	if len(query) < 2 {
		return SourceNone
	}
	switch query[0] {
	case '@':
		return SourceUser
	case ':':
		return SourceEmote
	case '/', '.':
		return SourceCommand
	default:
		return SourceEmote
	}
}

// DeduceTabCompletionKind is DeduceSourceKind's inline-tab-completion
// variant: when allowInlineUser is set and the query carries no
// recognized prefix character, it deduces the combined "emote and user"
// (Unified) kind instead of plain Emote.
func DeduceTabCompletionKind(query string, allowInlineUser bool) SourceKind {
	kind := DeduceSourceKind(query)
	if kind == SourceEmote && allowInlineUser && len(query) > 0 {
		switch query[0] {
		case '@', ':', '/', '.':
			return kind
		default:
			return SourceUnified
		}
	}
	return kind
}
