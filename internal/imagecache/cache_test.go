package imagecache

import (
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func onePixelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	rec := httptest.NewRecorder()
	if err := png.Encode(rec, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return rec.Body.Bytes()
}

// Scenario 8: fetch coalescing — two concurrent Pixels() calls on a
// freshly created handle for the same URL must result in exactly one HTTP
// fetch, and both callers must eventually observe the same decoded frame.
// Coalescing here falls out of Handle.Pixels's mutex-gated
// NotStarted→Loading transition (scheduleFetch is only ever invoked on
// that one transition), not from a separate dedup layer.
func TestGetOrCreatePixelsCoalescesConcurrentFetch(t *testing.T) {
	body := onePixelPNG(t)

	var fetchCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchCount.Add(1)
		time.Sleep(20 * time.Millisecond) // widen the coalescing window
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := New()
	h := c.GetOrCreate(srv.URL + "/emote.png")

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			// First poll triggers the fetch (or joins one already scheduled).
			h.Pixels()
			results[idx] = true
		}(i)
	}
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := h.Pixels(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("handle never reached Ready state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := fetchCount.Load(); got != 1 {
		t.Fatalf("expected exactly one HTTP fetch, got %d", got)
	}

	frame, ok := h.Pixels()
	if !ok || frame.Pixels == nil {
		t.Fatalf("expected a decoded frame, got ok=%v frame=%+v", ok, frame)
	}
	if h.IsAnimated() {
		t.Fatalf("single-frame PNG must not be reported as animated")
	}
}

func TestSetDiskDirPersistsBlobAndSkipsRefetchOnNextCache(t *testing.T) {
	body := onePixelPNG(t)

	var fetchCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchCount.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	url := srv.URL + "/e.png"

	first := New()
	first.SetDiskDir(dir)
	h := first.GetOrCreate(url)
	h.Pixels()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := h.Pixels(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("handle never reached Ready state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := fetchCount.Load(); got != 1 {
		t.Fatalf("expected exactly one HTTP fetch on the first cache, got %d", got)
	}

	// A second, independent Cache instance rooted at the same disk
	// directory should find the persisted blob and never touch the
	// network for the same URL.
	second := New()
	second.SetDiskDir(dir)
	h2 := second.GetOrCreate(url)
	h2.Pixels()

	deadline = time.Now().Add(2 * time.Second)
	for {
		if _, ok := h2.Pixels(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("second cache's handle never reached Ready state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := fetchCount.Load(); got != 1 {
		t.Fatalf("expected the second cache to read the persisted blob instead of refetching, fetch count = %d", got)
	}
}

func TestGetOrCreateReturnsSameHandleForSameURL(t *testing.T) {
	c := New()
	a := c.GetOrCreate("https://example.invalid/a.png")
	b := c.GetOrCreate("https://example.invalid/a.png")
	if a != b {
		t.Fatalf("expected GetOrCreate to return the same handle pointer for the same URL")
	}
}

func TestFetchFailureMarksHandleFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New()
	h := c.GetOrCreate(srv.URL + "/missing.png")
	h.Pixels()

	deadline := time.Now().Add(2 * time.Second)
	for h.State() != Failed {
		if time.Now().After(deadline) {
			t.Fatalf("expected handle to reach Failed state")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGenerationBumpsOnSuccessfulDecode(t *testing.T) {
	body := onePixelPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := New()
	before := c.Generation()
	h := c.GetOrCreate(srv.URL + "/e.png")
	h.Pixels()

	deadline := time.Now().Add(2 * time.Second)
	for c.Generation() == before {
		if time.Now().After(deadline) {
			t.Fatalf("expected generation counter to bump after decode")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
