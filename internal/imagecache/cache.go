// Package imagecache is the process-wide, content-addressed store of
// decoded emote/badge images, including animated frames. Grounded on
// beeper-ai-bridge's linkpreview.go for the image/gif + x/image/webp
// blank-import decode pattern. Sharded internally by URL, mirroring the
// teacher's PeerCache RWMutex-guarded map convention, so that one shard's
// lock contention never blocks an unrelated URL. Fetch coalescing per URL
// falls out of GetOrCreate/Pixels's own handle map and mutex rather than a
// separate dedup layer — see Handle.Pixels's state-transition guard.
package imagecache

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // content-addressing only, not a security boundary
	"encoding/hex"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	"github.com/go-faster/errors"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/storage"
)

const shardCount = 16

type shard struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// GenerationListener is called whenever the cache's generation counter
// bumps, i.e. whenever any image finishes decoding. Analogous to
// spec.md §6.3's ImageCache::on_generation_bump signal; views are
// expected to treat it as "re-layout visible messages".
type GenerationListener func()

// Cache is the process-wide image/frame store.
type Cache struct {
	shards [shardCount]*shard

	generation atomic.Uint64

	diskDir    string
	httpClient *http.Client

	listenersMu sync.Mutex
	listeners   []GenerationListener

	tickerOnce sync.Once
	tickerStop chan struct{}
}

// New creates an empty Cache with a default HTTP client.
func New() *Cache {
	c := &Cache{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for i := range c.shards {
		c.shards[i] = &shard{handles: make(map[string]*Handle)}
	}
	return c
}

// SetDiskDir turns on the on-disk blob cache rooted at dir: every
// successful fetch is persisted there under its content-addressed name,
// and future fetches for the same URL read the blob back instead of
// hitting the network. An empty dir (the default) disables on-disk
// persistence entirely — a process restart just refetches everything.
func (c *Cache) SetDiskDir(dir string) {
	c.diskDir = dir
}

// Generation returns the monotonic process-wide image generation counter.
func (c *Cache) Generation() uint64 {
	return c.generation.Load()
}

// OnGenerationBump registers a listener invoked after every successful
// decode. Not unregisterable; intended for long-lived view controllers
// wired up once at startup.
func (c *Cache) OnGenerationBump(fn GenerationListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Cache) bumpGeneration() {
	c.generation.Add(1)
	c.listenersMu.Lock()
	listeners := append([]GenerationListener(nil), c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (c *Cache) shardFor(url string) *shard {
	sum := sha1.Sum([]byte(url)) //nolint:gosec
	return c.shards[sum[0]%shardCount]
}

// GetOrCreate returns the Handle for url, creating a NotStarted one if
// this is the first request for it. Thread-safe.
func (c *Cache) GetOrCreate(url string) *Handle {
	s := c.shardFor(url)

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[url]; ok {
		return h
	}
	h := &Handle{url: url, scheduleFetch: c.scheduleFetch}
	s.handles[url] = h
	return h
}

// scheduleFetch fetches and decodes a handle's URL in the background and
// applies the result once it completes. Handle.Pixels's NotStarted→Loading
// transition is itself mutex-gated and only ever calls this once per
// handle, and GetOrCreate hands out one shared *Handle per URL, so there's
// no concurrent-caller race here for a fetch-coalescing layer to dedup —
// the handle's own state machine already is that guard.
func (c *Cache) scheduleFetch(h *Handle) {
	go func() {
		frames, err := c.fetchAndDecode(context.Background(), h.url)
		if err != nil {
			logger.Warnf("imagecache: fetch failed for %s: %v", redactURL(h.url), err)
			h.markFailed()
			return
		}
		h.markReady(frames)
		c.bumpGeneration()
	}()
}

// fetchAndDecode returns the decoded frame list for url, preferring a
// persisted blob from the on-disk cache (if SetDiskDir turned it on) over
// a network fetch. A freshly fetched blob is persisted before decoding so
// a restart never re-downloads an emote/badge it already has. The cache
// does not distinguish transient from permanent failures, per spec.md
// §4.2: emote/badge URLs are effectively immutable, so there is no retry
// loop to thrash.
func (c *Cache) fetchAndDecode(ctx context.Context, url string) ([]Frame, error) {
	if c.diskDir != "" {
		if data, ok := c.readDiskBlob(url); ok {
			return decodeFrames(data, "")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "gzip reader")
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	if c.diskDir != "" {
		c.writeDiskBlob(url, data)
	}

	return decodeFrames(data, resp.Header.Get("Content-Type"))
}

// diskBlobPath maps url to a content-addressed path under dir: the sha1
// already computed for shard placement doubles as the on-disk filename,
// so a URL's shard and its blob path are derived the same way.
func diskBlobPath(dir, url string) string {
	sum := sha1.Sum([]byte(url)) //nolint:gosec
	return filepath.Join(dir, hex.EncodeToString(sum[:])+".blob")
}

func (c *Cache) readDiskBlob(url string) ([]byte, bool) {
	data, err := os.ReadFile(diskBlobPath(c.diskDir, url))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) writeDiskBlob(url string, data []byte) {
	path := diskBlobPath(c.diskDir, url)
	if err := storage.EnsureDir(path); err != nil {
		logger.Warnf("imagecache: failed to create disk cache dir for %s: %v", redactURL(url), err)
		return
	}
	if err := storage.AtomicWriteFile(path, data); err != nil {
		logger.Warnf("imagecache: failed to persist blob for %s: %v", redactURL(url), err)
	}
}

// decodeFrames decodes data into an ordered frame list. Animated GIFs
// decode every frame via image/gif.DecodeAll; everything else (including
// WEBP, via the blank-imported golang.org/x/image/webp decoder) decodes
// as a single static frame via the generic image.Decode registry.
func decodeFrames(data []byte, contentType string) ([]Frame, error) {
	if looksLikeGIF(data, contentType) {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "decode gif")
		}
		frames := make([]Frame, 0, len(g.Image))
		for i, img := range g.Image {
			delay := time.Duration(g.Delay[i]) * 10 * time.Millisecond
			frames = append(frames, Frame{Pixels: img, Duration: clampFrameDuration(delay)})
		}
		if len(frames) == 0 {
			return nil, errors.New("gif contained no frames")
		}
		return frames, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return []Frame{{Pixels: img, Duration: clampFrameDuration(0)}}, nil
}

func looksLikeGIF(data []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "gif") {
		return true
	}
	return len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a")
}

// StartAnimationTicker launches a cache-wide ticker at gifFrameLength
// (≈30 Hz, spec.md §4.2) that advances every handle passed through
// watch(). Built on golang.org/x/time/rate so the tick cadence is
// expressible as a rate.Limiter the same way the teacher rate-limits
// outbound calls, rather than a bare time.Ticker. Idempotent: subsequent
// calls are no-ops.
func (c *Cache) StartAnimationTicker(ctx context.Context, watch func(yield func(*Handle))) {
	c.tickerOnce.Do(func() {
		c.tickerStop = make(chan struct{})
		go func() {
			limiter := rate.NewLimiter(rate.Every(gifFrameLength), 1)
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-c.tickerStop:
					return
				default:
				}
				now := time.Now()
				watch(func(h *Handle) {
					h.Advance(now)
				})
			}
		}()
	})
}

// StopAnimationTicker halts the animation ticker started by
// StartAnimationTicker. Safe to call even if it was never started.
func (c *Cache) StopAnimationTicker() {
	if c.tickerStop != nil {
		close(c.tickerStop)
	}
}

func redactURL(url string) string {
	if len(url) > 80 {
		return url[:80] + "..."
	}
	return url
}
