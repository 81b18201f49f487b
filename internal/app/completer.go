package app

import (
	"strings"

	"github.com/chzyer/readline"

	"github.com/kurtskinny/twitch-chat-core/internal/completion"
)

// lineCompleter adapts the completion package's query sources to
// readline's AutoCompleter interface. Grounded on spec.md §4.7's source
// deduction (DeduceTabCompletionKind) feeding whichever concrete Source
// the query prefix selects.
type lineCompleter struct {
	emote   *completion.EmoteSource
	user    *completion.UserSource
	command *completion.CommandSource
	unified *completion.UnifiedSource
}

// Do implements readline.AutoCompleter. It isolates the word under the
// cursor, deduces which source should answer it, and returns the
// remaining characters of each candidate (readline's expected suffix
// form) plus how much of the word already typed is shared.
func (c *lineCompleter) Do(line []rune, pos int) ([][]rune, int) {
	word, start := currentWord(line, pos)
	if word == "" {
		return nil, 0
	}

	isFirstWord := strings.TrimSpace(string(line[:start])) == ""
	kind := completion.DeduceTabCompletionKind(word, true)

	var source completion.Source
	switch kind {
	case completion.SourceUser:
		source = c.user
	case completion.SourceEmote:
		source = c.emote
	case completion.SourceCommand:
		source = c.command
	case completion.SourceUnified:
		source = c.unified
	default:
		return nil, 0
	}

	source.Update(word)
	candidates := source.EmitStringList(20, isFirstWord)

	out := make([][]rune, 0, len(candidates))
	for _, cand := range candidates {
		if !strings.HasPrefix(cand, word) && kind != completion.SourceUnified {
			continue
		}
		suffix := cand
		if strings.HasPrefix(cand, word) {
			suffix = cand[len(word):]
		}
		out = append(out, []rune(suffix))
	}
	return out, len([]rune(word))
}

// currentWord returns the run of non-space characters ending at pos,
// along with its starting offset into line.
func currentWord(line []rune, pos int) (string, int) {
	if pos > len(line) {
		pos = len(line)
	}
	start := pos
	for start > 0 && line[start-1] != ' ' {
		start--
	}
	return string(line[start:pos]), start
}

var _ readline.AutoCompleter = (*lineCompleter)(nil)
