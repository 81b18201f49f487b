// Package app is the top-level wiring for the chat client core: it
// connects configuration, logging, the channel/history/image/layout
// caches, the real-time event client, the subscription multiplexer, and
// the completion pipeline, then drives an interactive console until
// shutdown. Grounded on the teacher's internal/app (App aggregates
// dependencies in Init, a lifecycle.Manager orchestrates start/stop
// order) generalized from a Telegram MTProto client to this package's
// six-component chat-core domain.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/kurtskinny/twitch-chat-core/internal/channel"
	"github.com/kurtskinny/twitch-chat-core/internal/completion"
	"github.com/kurtskinny/twitch-chat-core/internal/eventclient"
	"github.com/kurtskinny/twitch-chat-core/internal/imagecache"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/concurrency"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/config"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/lifecycle"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/throttle"
	"github.com/kurtskinny/twitch-chat-core/internal/layout"
	"github.com/kurtskinny/twitch-chat-core/internal/submux"
	"github.com/kurtskinny/twitch-chat-core/internal/uidispatch"
)

// DefaultChannelName is the single channel the demo console attaches to.
// A real multi-channel client would keep a map[string]*channel.Channel;
// this repository's scope is the core subsystems, not channel-join UX.
const DefaultChannelName = "#demo"

// App aggregates the chat client's subsystems and manages their wiring.
// Responsible for:
//   - the channel (History + ChatterIndex) messages are appended to,
//   - the image cache and layout cache readers consult when rendering,
//   - the real-time event client and the subscription multiplexer it feeds,
//   - the completion pipeline built on top of the channel's ChatterIndex,
//   - constructing the console that drives the interactive loop.
type App struct {
	chans   *channel.Channel
	images  *imagecache.Cache
	layouts *layout.Cache
	submux  *submux.Multiplexer
	emotes  *eventclient.Client

	emoteSource   *completion.EmoteSource
	userSource    *completion.UserSource
	commandSource *completion.CommandSource
	unified       *completion.UnifiedSource

	ui            *uidispatch.Queue
	invalidator   *concurrency.Debouncer
	dispatchDedup *concurrency.Deduplicator
	subThrottle   *throttle.Throttler
	lifecycle     *lifecycle.Manager
	console       *console

	ctx  context.Context
	stop context.CancelFunc
}

// NewApp returns an empty App shell. Actual wiring happens in Init.
func NewApp() *App {
	return &App{}
}

// Init wires every component together:
//  1. builds the channel, image cache, and layout cache,
//  2. builds the completion pipeline against the channel's ChatterIndex,
//  3. constructs the event client (cosmetics/emote-set ingress) and the
//     subscription multiplexer it's pooled behind,
//  4. registers every long-lived piece with a lifecycle.Manager so start
//     order and shutdown order are predictable,
//  5. constructs the console that drives the interactive loop.
func (a *App) Init(ctx context.Context, stop context.CancelFunc) error {
	logger.Info("chat client initializing...")

	a.ctx = ctx
	a.stop = stop

	env := config.Env()

	a.chans = channel.New(DefaultChannelName, env.HistoryCapacity)
	a.images = imagecache.New()
	a.images.SetDiskDir(env.ImageCacheDir)
	a.layouts = layout.New()

	// uiQueueBuffer bounds how many pending invalidations may queue up
	// before a Post blocks its caller; image fetches and dispatch events
	// arrive from background goroutines and must never stall on the UI
	// thread being busy.
	const uiQueueBuffer = 256
	a.ui = uidispatch.New(uiQueueBuffer)

	// imageInvalidationDebounceMS coalesces a burst of animated-image
	// frame advances or emote-set dispatches (which can arrive many per
	// second) into a single re-layout instead of one per bump.
	const imageInvalidationDebounceMS = 50
	a.invalidator = concurrency.NewDebouncer(imageInvalidationDebounceMS)

	// dispatchDedupWindowSec collapses duplicate dispatches that arrive
	// from more than one pooled eventclient during submux's resubscribe
	// replay: growPool's OnStateChange hook and an in-flight Subscribe can
	// briefly leave the same topic owned by two clients, so the same
	// event body can be delivered twice in quick succession.
	const dispatchDedupWindowSec = 2
	a.dispatchDedup = concurrency.NewDeduplicator(dispatchDedupWindowSec)

	// Mark every retained layout's pixel buffer stale whenever a fetch
	// completes and the image generation is bumped; element positions are
	// kept. Posted to the UI queue rather than run inline, since
	// OnGenerationBump fires from the background goroutine that finished
	// decoding.
	a.images.OnGenerationBump(func() {
		a.invalidator.Do("image-generation", func() {
			a.ui.Post(func() { a.layouts.InvalidatePixels() })
		})
	})

	a.userSource = completion.NewUserSource(a.chans.Chatters(), completion.ClassicUserStrategy{})
	a.emoteSource = completion.NewEmoteSource(completion.ClassicEmoteStrategy{})
	a.unified = completion.NewUnifiedSource(a.emoteSource, a.userSource)

	commandItems := make([]completion.Command, len(builtinCommands))
	for i, cmd := range builtinCommands {
		commandItems[i] = completion.Command{Name: strings.TrimPrefix(strings.Fields(cmd.name)[0], "/")}
	}
	a.commandSource = completion.NewCommandSource(completion.CommandStrategy{}, commandItems)

	newClient := func() *eventclient.Client {
		c := eventclient.New(env.EventServiceURL,
			eventclient.WithHeartbeatInterval(time.Duration(env.HeartbeatSec)*time.Second),
			eventclient.WithBackoffBase(time.Duration(env.BackoffBaseMS)*time.Millisecond),
			eventclient.WithBackoffCap(env.BackoffCapSec),
		)
		c.OnDispatch(a.handleDispatch)
		return c
	}

	a.emotes = newClient()

	store, err := submux.OpenStore(env.SubscriptionsFile)
	if err != nil {
		return errors.Wrap(err, "open subscription store")
	}

	// subscribeRateLimit caps how many subscribe/unsubscribe wire sends
	// the multiplexer issues per second, so a burst of channel switches
	// can't outrun whatever rate limit the event service enforces.
	const subscribeRateLimit = 10
	a.subThrottle = throttle.New(subscribeRateLimit)

	a.submux = submux.New(newClient,
		submux.WithCap(env.SubmuxShardCap),
		submux.WithStore(store),
		submux.WithThrottle(a.subThrottle),
	)

	a.lifecycle = lifecycle.New(ctx)
	if err := a.registerLifecycle(store); err != nil {
		return errors.Wrap(err, "register lifecycle nodes")
	}

	a.console = newConsole(a)
	return nil
}

// registerLifecycle attaches every long-running component to the
// manager in dependency order: the UI dispatch queue must be draining
// before the event client can post invalidations to it, and the event
// client must be running before the multiplexer restores its persisted
// subscriptions against it.
func (a *App) registerLifecycle(store *submux.Store) error {
	if err := a.lifecycle.Register("ui", "", nil,
		func(ctx context.Context) (context.Context, error) {
			go a.ui.Run(ctx)
			a.invalidator.Start(ctx)
			a.dispatchDedup.Start(ctx)
			return nil, nil
		},
		func(context.Context) error {
			a.invalidator.Stop()
			a.dispatchDedup.Stop()
			return nil
		},
	); err != nil {
		return err
	}

	if err := a.lifecycle.Register("emotes", "", []string{"ui"},
		func(ctx context.Context) (context.Context, error) {
			go func() {
				if err := a.emotes.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Warnf("event client exited: %v", err)
				}
			}()
			return nil, nil
		},
		func(context.Context) error {
			a.emotes.Stop()
			return nil
		},
	); err != nil {
		return err
	}

	if err := a.lifecycle.Register("subthrottle", "", nil,
		func(ctx context.Context) (context.Context, error) {
			a.subThrottle.Start(ctx)
			return nil, nil
		},
		func(context.Context) error {
			a.subThrottle.Stop()
			return nil
		},
	); err != nil {
		return err
	}

	if err := a.lifecycle.Register("submux", "", []string{"emotes", "subthrottle"},
		func(ctx context.Context) (context.Context, error) {
			if err := a.submux.Restore(ctx); err != nil {
				logger.Warnf("submux restore failed: %v", err)
			}
			return nil, nil
		},
		func(context.Context) error {
			defer func() { _ = store.Close() }()
			return a.submux.Shutdown()
		},
	); err != nil {
		return err
	}

	return nil
}

// Run starts every lifecycle node, then the console, and blocks until
// either the console exits (user typed /exit, or stdin closed) or the
// outer context is canceled (signal). Shutdown always runs the
// lifecycle's stop sequence in reverse start order before returning.
func (a *App) Run() error {
	if err := a.lifecycle.StartAll(); err != nil {
		return errors.Wrap(err, "start lifecycle nodes")
	}

	a.console.Start(a.ctx)

	select {
	case <-a.ctx.Done():
	case <-a.console.Done():
	}

	a.console.Stop()
	return a.lifecycle.Shutdown()
}

// handleDispatch reacts to decoded event-service dispatches. Only
// emote_set.update is acted on here — it marks every retained layout's
// pixel buffer stale (layouts.InvalidatePixels, debounced and posted to
// the UI queue); the other kinds
// (user.update, cosmetic.create, entitlement.*) are logged but not
// wired to a concrete subsystem, since nothing in this repository's
// scope consumes them yet.
func (a *App) handleDispatch(ev eventclient.DispatchEvent) {
	if a.dispatchDedup.DedupSeen(ev.Type + string(ev.Body)) {
		logger.Debugf("dispatch %s suppressed as a duplicate delivery", ev.Type)
		return
	}
	switch ev.Type {
	case eventclient.KindEmoteSetUpdate:
		logger.Debugf("emote set update received, invalidating layout pixel buffers")
		a.invalidator.Do("image-generation", func() {
			a.ui.Post(func() { a.layouts.InvalidatePixels() })
		})
	default:
		logger.Debugf("dispatch %s received, no handler wired", ev.Type)
	}
}
