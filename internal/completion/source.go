package completion

import (
	"fmt"
	"sync"

	"github.com/kurtskinny/twitch-chat-core/internal/chatterindex"
)

// Source computes and emits completion candidates for a query.
type Source interface {
	// Update recomputes the current match set for query.
	Update(query string)
	// EmitListView returns up to cap candidates for a popup GUI.
	EmitListView(cap int) []Item
	// EmitStringList returns up to cap insertion strings for an inline
	// tab-completer. isFirstWord affects sources whose insertion form
	// depends on word position (users, commands).
	EmitStringList(cap int, isFirstWord bool) []string
}

func truncate(items []Item, cap int) []Item {
	if cap <= 0 || cap >= len(items) {
		return items
	}
	return items[:cap]
}

// EmoteSource draws candidates from a channel's emote vocabulary
// (Twitch/BTTV/FFZ/emoji), each with a display name, search name, and
// tab-insertion form already fixed at vocabulary-load time.
type EmoteSource struct {
	mu         sync.Mutex
	strategy   Strategy
	vocabulary []Item
	matches    []Item
}

// NewEmoteSource returns an EmoteSource ranked by strategy.
func NewEmoteSource(strategy Strategy) *EmoteSource {
	return &EmoteSource{strategy: strategy}
}

// SetVocabulary replaces the full emote pool this source searches.
func (s *EmoteSource) SetVocabulary(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vocabulary = items
}

func (s *EmoteSource) Update(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = s.strategy.Apply(s.vocabulary, query)
}

func (s *EmoteSource) EmitListView(cap int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return truncate(s.matches, cap)
}

func (s *EmoteSource) EmitStringList(cap int, _ bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := truncate(s.matches, cap)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.InsertText
	}
	return out
}

// UserSource draws candidates from a channel's ChatterIndex. Its
// tab-insertion form prepends '@' and, when not the first word of the
// line, appends ", " (matching the teacher's command-arg separator
// convention).
type UserSource struct {
	mu       sync.Mutex
	strategy Strategy
	index    *chatterindex.ChatterIndex
	matches  []Item
}

// NewUserSource returns a UserSource backed by index and ranked by
// strategy.
func NewUserSource(index *chatterindex.ChatterIndex, strategy Strategy) *UserSource {
	return &UserSource{index: index, strategy: strategy}
}

func (s *UserSource) Update(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pool []string
	bare := query
	if len(bare) > 0 && bare[0] == '@' {
		bare = bare[1:]
	}
	if len(bare) >= 2 {
		pool = s.index.Subrange(chatterindex.NewPrefix(bare))
	} else {
		pool = s.index.All()
	}

	items := make([]Item, len(pool))
	for i, name := range pool {
		items[i] = Item{DisplayName: name, SearchName: name}
	}
	s.matches = s.strategy.Apply(items, query)
}

func (s *UserSource) EmitListView(cap int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return truncate(s.matches, cap)
}

func (s *UserSource) EmitStringList(cap int, isFirstWord bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := truncate(s.matches, cap)
	out := make([]string, len(items))
	for i, it := range items {
		text := "@" + it.DisplayName
		if !isFirstWord {
			text += ", "
		}
		out[i] = text
	}
	return out
}

// Command is one built-in or user-defined command descriptor.
type Command struct {
	Name string
}

// CommandSource draws candidates from a static command registry. The
// prefix character the query used ('/' or '.') is preserved on
// insertion, grounded on the teacher's internal/adapters/cli descriptor
// table, which likewise preserves the invocation form a user typed.
type CommandSource struct {
	mu       sync.Mutex
	strategy Strategy
	commands []Item
	matches  []Item
	prefix   byte
}

// NewCommandSource returns a CommandSource ranked by strategy, seeded
// with the given built-in/user-defined commands.
func NewCommandSource(strategy Strategy, commands []Command) *CommandSource {
	items := make([]Item, len(commands))
	for i, c := range commands {
		items[i] = Item{DisplayName: c.Name, SearchName: c.Name}
	}
	return &CommandSource{strategy: strategy, commands: items, prefix: '/'}
}

func (s *CommandSource) Update(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefix = '/'
	if len(query) > 0 && (query[0] == '/' || query[0] == '.') {
		s.prefix = query[0]
	}
	s.matches = s.strategy.Apply(s.commands, query)
}

func (s *CommandSource) EmitListView(cap int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return truncate(s.matches, cap)
}

func (s *CommandSource) EmitStringList(cap int, _ bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := truncate(s.matches, cap)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprintf("%c%s", s.prefix, it.DisplayName)
	}
	return out
}
