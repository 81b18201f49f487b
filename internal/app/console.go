package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/kurtskinny/twitch-chat-core/internal/core"
	"github.com/kurtskinny/twitch-chat-core/internal/eventclient"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/pr"
	"github.com/kurtskinny/twitch-chat-core/internal/layout"
)

// commandDescriptor documents one console-only command (distinct from a
// chat message, which is anything not starting with '/').
type commandDescriptor struct {
	name        string
	description string
}

var builtinCommands = []commandDescriptor{
	{name: "/help", description: "Show available console commands"},
	{name: "/history", description: "Print the current channel's retained messages"},
	{name: "/timeout <user> <seconds> [reason]", description: "Apply a synthetic timeout to a user"},
	{name: "/clear", description: "Apply a clearchat (adds or replaces a 'chat cleared' notice)"},
	{name: "/sub <channel-id>", description: "Subscribe to a channel's chat topic via the multiplexer"},
	{name: "/unsub <channel-id>", description: "Unsubscribe from a channel's chat topic"},
	{name: "/image <url>", description: "Fetch and decode an image into the image cache"},
	{name: "/debug", description: "Pretty-print the live state of every wired subsystem"},
	{name: "/exit", description: "Quit the console"},
}

// console drives the interactive command/chat loop: lines that don't
// start with '/' are appended as chat messages to the demo channel
// (standing in for the IRC/parse layer this repository doesn't
// implement, per spec.md's non-goals); lines starting with '/' dispatch
// to a small built-in command set that exercises the other subsystems.
// Grounded on the teacher's internal/adapters/cli.Service shape
// (readline loop, key listener, Start/Stop idempotent via sync.Once).
type console struct {
	app *App

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	onceStart sync.Once
	onceStop  sync.Once
}

func newConsole(a *App) *console {
	return &console{app: a}
}

func (c *console) Start(ctx context.Context) {
	c.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.run(runCtx)
		}()
	})
}

// Done returns a channel closed once the console's run loop has
// returned, whether from /exit, stdin EOF, or Stop().
func (c *console) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	return done
}

func (c *console) Stop() {
	c.onceStop.Do(func() {
		pr.InterruptReadline()
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
	})
}

func (c *console) run(ctx context.Context) {
	a := c.app

	if rl := pr.Rl(); rl != nil && rl.Config != nil {
		rl.Config.AutoComplete = &lineCompleter{
			emote:   a.emoteSource,
			user:    a.userSource,
			command: a.commandSource,
			unified: a.unified,
		}
	}

	pr.SetPrompt(fmt.Sprintf("%s> ", a.chans.Name))
	pr.Println("Chat client console. Lines that don't start with '/' are treated as chat messages.")
	pr.Println("Type /help for the command list.")

	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		line, err := pr.Rl().Readline()
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if c.handleCommand(ctx, line) {
				return
			}
			continue
		}
		c.appendChatLine(line)
	}
}

// appendChatLine wraps a typed line as a locally-originated chat message
// and appends it to the demo channel, exercising History/ChatterIndex
// exactly the way a real IRC PRIVMSG handler would.
func (c *console) appendChatLine(text string) {
	msg := core.NewMessageBuilder().
		WithID(uuid.NewString()).
		WithNames("you", "you", "you").
		AppendElement(core.TextElement(text, 0)).
		Build()
	c.app.chans.Append(msg, nil)

	width := consoleWidth()
	entry := c.app.layouts.Get(msg, layout.Context{Width: width, Scale: 1.0})
	pr.Printf("[laid out: %d elements, height=%dpx]\n", len(entry.Elements), entry.Height)
}

// handleCommand dispatches one '/'-prefixed line. Returns true if the
// console should exit.
func (c *console) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], "/")
	args := fields[1:]
	a := c.app

	switch name {
	case "help":
		for _, cmd := range builtinCommands {
			pr.Printf("  %-40s %s\n", cmd.name, cmd.description)
		}
	case "history":
		c.printHistory()
	case "timeout":
		c.handleTimeout(args)
	case "clear":
		a.chans.ApplyClearChat(time.Now())
		pr.Println("channel cleared")
	case "sub":
		c.handleSub(ctx, args, true)
	case "unsub":
		c.handleSub(ctx, args, false)
	case "image":
		c.handleImage(args)
	case "debug":
		c.handleDebug()
	case "exit", "quit":
		return true
	default:
		pr.Println("unknown command:", line)
	}
	return false
}

func (c *console) printHistory() {
	snap := c.app.chans.History().Snapshot()
	for i := 0; i < snap.Len(); i++ {
		msg := snap.Get(i)
		if msg == nil {
			continue
		}
		var text strings.Builder
		for _, el := range msg.Elements {
			text.WriteString(el.Text)
		}
		disabled := ""
		if msg.Flags.Has(core.Disabled) {
			disabled = " (disabled)"
		}
		pr.Printf("[%s] %s: %s%s\n", msg.ServerReceivedAt.Format(time.Kitchen), msg.DisplayName, text.String(), disabled)
	}
}

func (c *console) handleTimeout(args []string) {
	if len(args) < 2 {
		pr.ErrPrintln("usage: /timeout <user> <seconds> [reason]")
		return
	}
	seconds, err := strconv.Atoi(args[1])
	if err != nil {
		pr.ErrPrintln("invalid duration:", args[1])
		return
	}
	reason := strings.Join(args[2:], " ")
	c.app.chans.ApplyTimeout(args[0], time.Duration(seconds)*time.Second, reason)
	pr.Printf("timed out %s for %ds\n", args[0], seconds)
}

func (c *console) handleSub(ctx context.Context, args []string, subscribe bool) {
	if len(args) < 1 {
		pr.ErrPrintln("usage: /sub|/unsub <channel-id>")
		return
	}
	sub := eventclient.Subscription{
		Kind:      eventclient.KindEmoteSetUpdate,
		Condition: eventclient.Condition{ChannelID: args[0]},
	}
	var err error
	if subscribe {
		err = c.app.submux.Subscribe(ctx, sub)
	} else {
		err = c.app.submux.Unsubscribe(ctx, sub)
	}
	if err != nil {
		pr.ErrPrintln("subscription request failed:", err)
		logger.Warnf("console: subscription request failed: %v", err)
		return
	}
	pr.Printf("ok (pool size now %d)\n", c.app.submux.ClientCount())
}

func (c *console) handleImage(args []string) {
	if len(args) < 1 {
		pr.ErrPrintln("usage: /image <url>")
		return
	}
	h := c.app.images.GetOrCreate(args[0])
	pr.Printf("image handle created for %s (animated=%v)\n", h.URL(), h.IsAnimated())
}

// debugSnapshot is the shape /debug pretty-prints: one field per wired
// subsystem, enough to tell at a glance whether history, the chatter
// index, the image cache, and the subscription pool are in the state
// the operator expects.
type debugSnapshot struct {
	Channel         string
	HistoryLen      int
	ChatterCount    int
	ImageGeneration uint64
	SubPoolSize     int
	Nodes           map[string]string
}

// debugNodes lists every lifecycle node name the console cares about
// showing; unlike Manager.startOrder this is fixed and known up front,
// since app.registerLifecycle always registers the same four.
var debugNodes = []string{"ui", "emotes", "subthrottle", "submux"}

// handleDebug dumps debugSnapshot via pr.PP, which formats nested
// fields with kr/pretty rather than %+v's flat single-line dump —
// handy since Nodes is itself a map.
func (c *console) handleDebug() {
	a := c.app

	nodes := make(map[string]string, len(debugNodes))
	for _, name := range debugNodes {
		if status, ok := a.lifecycle.Status(name); ok {
			nodes[name] = status
		}
	}

	pr.PP(debugSnapshot{
		Channel:         a.chans.Name,
		HistoryLen:      a.chans.History().Snapshot().Len(),
		ChatterCount:    a.chans.Chatters().Len(),
		ImageGeneration: a.images.Generation(),
		SubPoolSize:     a.submux.ClientCount(),
		Nodes:           nodes,
	})
}

func consoleWidth() int {
	const fallbackWidth = 80
	w, _, err := term.GetSize(0)
	if err != nil || w <= 0 {
		return fallbackWidth
	}
	return w
}
