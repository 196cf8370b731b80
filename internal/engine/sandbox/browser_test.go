package sandbox

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ExamShell/backend/internal/engine"
)

type recorder struct {
	mu     sync.Mutex
	events []engine.Event
	decide func(engine.Event) engine.Verdict
}

func (r *recorder) Dispatch(_ context.Context, ev engine.Event) engine.Verdict {
	r.mu.Lock()
	r.events = append(r.events, ev)
	decide := r.decide
	r.mu.Unlock()
	if decide != nil {
		return decide(ev)
	}
	return engine.Permit()
}

func (r *recorder) kinds() []engine.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind())
	}
	return out
}

func (r *recorder) find(kind engine.Kind) []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []engine.Event
	for _, ev := range r.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newBrowser(t *testing.T, docs map[string]Document) (*Browser, *recorder) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ScriptTimeout = time.Second

	var resolver Resolver
	if docs != nil {
		resolver = StaticResolver(docs)
	}
	b := New(cfg, resolver, nil)
	rec := &recorder{}
	b.Attach(engine.NewTranslator(context.Background(), rec))
	t.Cleanup(func() { _ = b.Close() })
	return b, rec
}

func waitSync(t *testing.T, b *Browser) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Sync(ctx))
}

func TestNavigateEmitsLifecycle(t *testing.T) {
	b, rec := newBrowser(t, map[string]Document{
		"https://example.org/exam": {Title: "Exam"},
	})

	require.NoError(t, b.Navigate("https://example.org/exam"))

	assert.Equal(t, []engine.Kind{
		engine.KindNavigationRequested,
		engine.KindLoadingStateChanged,
		engine.KindContextCreated,
		engine.KindTitleChanged,
		engine.KindNavigationCompleted,
		engine.KindLoadingStateChanged,
	}, rec.kinds())

	nav := rec.find(engine.KindNavigationRequested)[0].(engine.NavigationRequested)
	assert.Equal(t, engine.OriginAddressBar, nav.Origin)
	assert.Equal(t, "https://example.org/exam", b.State().URL)
}

func TestCancelledNavigationKeepsPage(t *testing.T) {
	b, rec := newBrowser(t, nil)
	require.NoError(t, b.Navigate("https://example.org/"))

	rec.decide = func(ev engine.Event) engine.Verdict {
		if _, ok := ev.(engine.NavigationRequested); ok {
			return engine.Refuse("blocked")
		}
		return engine.Permit()
	}

	err := b.Navigate("https://evil.example/")
	assert.ErrorIs(t, err, ErrNavigationCancelled)
	assert.Equal(t, "https://example.org/", b.State().URL)
}

func TestLoadErrorIsReported(t *testing.T) {
	b, rec := newBrowser(t, map[string]Document{})

	err := b.Navigate("https://nowhere.invalid/")
	require.Error(t, err)

	failed := rec.find(engine.KindLoadFailed)
	require.Len(t, failed, 1)
	lf := failed[0].(engine.LoadFailed)
	assert.True(t, lf.IsMainFrame)
	assert.Equal(t, "https://nowhere.invalid/", lf.URL)
}

func TestHistory(t *testing.T) {
	b, rec := newBrowser(t, nil)

	require.NoError(t, b.Navigate("https://example.org/1"))
	require.NoError(t, b.Click("https://example.org/2"))
	require.NoError(t, b.Click("https://example.org/3"))

	require.NoError(t, b.GoBack())
	assert.Equal(t, "https://example.org/2", b.State().URL)
	require.NoError(t, b.GoBack())
	assert.Equal(t, "https://example.org/1", b.State().URL)
	assert.ErrorIs(t, b.GoBack(), ErrNoHistory)

	require.NoError(t, b.GoForward())
	assert.Equal(t, "https://example.org/2", b.State().URL)

	require.NoError(t, b.Click("https://example.org/4"))
	assert.ErrorIs(t, b.GoForward(), ErrNoHistory)
	assert.Equal(t, []string{"https://example.org/1", "https://example.org/2", "https://example.org/4"}, b.State().History)

	navs := rec.find(engine.KindNavigationRequested)
	origins := make([]engine.Origin, 0, len(navs))
	for _, ev := range navs {
		origins = append(origins, ev.(engine.NavigationRequested).Origin)
	}
	assert.Contains(t, origins, engine.OriginBackForward)

	require.NoError(t, b.Reload())
	assert.Equal(t, "https://example.org/4", b.State().URL)
	assert.Len(t, b.State().History, 3)
}

func TestEvaluateScript(t *testing.T) {
	b, _ := newBrowser(t, nil)
	require.NoError(t, b.Navigate("https://example.org/"))

	ctx := context.Background()
	res := b.Eval(ctx, engine.MainFrame, "1 + 2")
	require.True(t, res.Success, res.Message)
	assert.EqualValues(t, 3, res.Value)

	res = b.Eval(ctx, engine.MainFrame, "location.href")
	require.True(t, res.Success)
	assert.Equal(t, "https://example.org/", res.Value)

	res = b.Eval(ctx, engine.MainFrame, "throw new Error('boom')")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "boom")

	res = b.Eval(ctx, engine.MainFrame, "typeof require")
	require.True(t, res.Success)
	assert.Equal(t, "undefined", res.Value)
}

func TestEvaluateScriptNotReady(t *testing.T) {
	b, _ := newBrowser(t, nil)

	var got engine.ScriptResult
	called := false
	b.EvaluateScript(engine.MainFrame, "1", func(r engine.ScriptResult) {
		got = r
		called = true
	})

	require.True(t, called, "not ready must complete immediately")
	assert.False(t, got.Success)
	assert.ErrorIs(t, got.Err, engine.ErrNotReady)
}

func TestEvaluateScriptTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptTimeout = 50 * time.Millisecond
	b := New(cfg, nil, nil)
	b.Attach(engine.NewTranslator(context.Background(), &recorder{}))
	defer b.Close()

	require.NoError(t, b.Navigate("https://example.org/"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := b.Eval(ctx, engine.MainFrame, "while (true) {}")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "timeout")

	res = b.Eval(ctx, engine.MainFrame, "'still usable'")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "still usable", res.Value)
}

func TestNavigationFailsPendingEvaluations(t *testing.T) {
	b, _ := newBrowser(t, nil)
	require.NoError(t, b.Navigate("https://example.org/"))

	results := make(chan engine.ScriptResult, 2)
	b.EvaluateScript(engine.MainFrame, "while (true) {}", func(r engine.ScriptResult) { results <- r })
	b.EvaluateScript(engine.MainFrame, "1", func(r engine.ScriptResult) { results <- r })
	require.NoError(t, b.Navigate("https://example.org/next"))

	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			assert.False(t, r.Success)
			assert.ErrorIs(t, r.Err, ErrContextReleased)
		case <-time.After(500 * time.Millisecond):
			t.Fatal("evaluation left unresolved after navigation")
		}
	}

	res := b.Eval(context.Background(), engine.MainFrame, "'fresh'")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "fresh", res.Value)
}

func TestCloseDropsPendingEvaluations(t *testing.T) {
	b, _ := newBrowser(t, nil)
	require.NoError(t, b.Navigate("https://example.org/"))

	results := make(chan engine.ScriptResult, 1)
	b.EvaluateScript(engine.MainFrame, "while (true) {}", func(r engine.ScriptResult) { results <- r })
	require.NoError(t, b.Close())

	select {
	case <-results:
		t.Fatal("callback delivered after engine close")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEvaluateAfterCloseIsUnavailable(t *testing.T) {
	b, _ := newBrowser(t, nil)
	require.NoError(t, b.Navigate("https://example.org/"))
	require.NoError(t, b.Close())

	res := b.Eval(context.Background(), engine.MainFrame, "1")
	assert.ErrorIs(t, res.Err, engine.ErrEngineUnavailable)
}

func TestPageScriptMessagesAndErrors(t *testing.T) {
	b, rec := newBrowser(t, map[string]Document{
		"https://example.org/": {
			Title: "Exam",
			Script: `
				window.__examshellHost.postMessage({type: "host-query", version: 1, query: "version"});
				window.__examshellHost.postMessage("raw");
				undefinedFunction();
			`,
		},
	})

	require.NoError(t, b.Navigate("https://example.org/"))
	waitSync(t, b)

	msgs := rec.find(engine.KindScriptMessageReceived)
	require.Len(t, msgs, 2)
	first := msgs[0].(engine.ScriptMessageReceived)
	assert.JSONEq(t, `{"type":"host-query","version":1,"query":"version"}`, string(first.Payload))
	assert.Equal(t, b.MainFrameID(), first.FrameID)
	assert.Equal(t, "raw", string(msgs[1].(engine.ScriptMessageReceived).Payload))

	errs := rec.find(engine.KindUncaughtScriptError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].(engine.UncaughtScriptError).Message, "undefinedFunction")
}

func TestNativePrintAndShadowing(t *testing.T) {
	b, _ := newBrowser(t, nil)
	require.NoError(t, b.Navigate("https://example.org/"))
	ctx := context.Background()

	require.True(t, b.Eval(ctx, engine.MainFrame, "window.print()").Success)
	assert.Equal(t, 1, b.State().PrintCount)

	require.True(t, b.Eval(ctx, engine.MainFrame, "window.print = function() { alert('no'); }; window.print()").Success)
	assert.Equal(t, 1, b.State().PrintCount)
	assert.Equal(t, []string{"no"}, b.State().Alerts)

	require.True(t, b.Eval(ctx, engine.MainFrame, "delete window.print; window.print()").Success)
	assert.Equal(t, 2, b.State().PrintCount)
}

func TestSubFrames(t *testing.T) {
	b, rec := newBrowser(t, nil)
	require.NoError(t, b.Navigate("https://example.org/"))

	frameID, err := b.LoadFrame("https://example.org/frame")
	require.NoError(t, err)
	assert.NotEqual(t, b.MainFrameID(), frameID)

	res := b.Eval(context.Background(), frameID, "location.href")
	require.True(t, res.Success)
	assert.Equal(t, "https://example.org/frame", res.Value)

	require.NoError(t, b.Navigate("https://example.org/next"))

	released := rec.find(engine.KindContextReleased)
	require.Len(t, released, 2)
	res = b.Eval(context.Background(), frameID, "1")
	assert.ErrorIs(t, res.Err, engine.ErrNotReady)
}

func TestPopupDecisions(t *testing.T) {
	b, rec := newBrowser(t, nil)
	require.NoError(t, b.Navigate("https://example.org/"))

	opened, err := b.OpenPopup("https://example.org/help", true)
	require.NoError(t, err)
	assert.True(t, opened)

	rec.decide = func(ev engine.Event) engine.Verdict {
		nav, ok := ev.(engine.NavigationRequested)
		if ok && nav.Origin == engine.OriginPopup {
			return engine.Verdict{Action: engine.Rewrite, URL: nav.URL, SameWindow: true}
		}
		return engine.Permit()
	}
	opened, err = b.OpenPopup("https://example.org/inline", true)
	require.NoError(t, err)
	assert.False(t, opened)
	assert.Equal(t, "https://example.org/inline", b.State().URL)
	assert.Equal(t, []string{"https://example.org/help"}, b.State().Popups)
}

func TestCapabilities(t *testing.T) {
	b, rec := newBrowser(t, nil)

	require.NoError(t, b.SetZoom(1.5))
	require.NoError(t, b.ShowDevTools())
	require.NoError(t, b.Find("answer", true, false))

	st := b.State()
	assert.Equal(t, 1.5, st.Zoom)
	assert.True(t, st.DevToolsOpen)
	assert.Equal(t, []string{"answer"}, st.Finds)

	assert.True(t, b.Press("A", engine.Modifiers{}))
	rec.decide = func(engine.Event) engine.Verdict { return engine.Refuse("no") }
	assert.False(t, b.Press("P", engine.Modifiers{Ctrl: true}))
	assert.False(t, b.ChooseFile(engine.FileDialogOpen, ""))

	_, err := b.Download("https://example.org/a.pdf", "a.pdf", "application/pdf", "/tmp/a.pdf")
	assert.ErrorIs(t, err, ErrNavigationCancelled)
}

func TestUnattachedBrowserIsUnavailable(t *testing.T) {
	b := New(DefaultConfig(), nil, nil)
	defer b.Close()
	assert.ErrorIs(t, b.Navigate("https://example.org/"), engine.ErrEngineUnavailable)
}

func TestResolverReceivesRequestHeaders(t *testing.T) {
	var got http.Header
	b := New(DefaultConfig(), func(url string, header http.Header) (Document, error) {
		got = header
		return Document{Title: url}, nil
	}, nil)
	t.Cleanup(func() { _ = b.Close() })

	rec := &recorder{decide: func(ev engine.Event) engine.Verdict {
		v := engine.Permit()
		if _, ok := ev.(engine.NavigationRequested); ok {
			v.Headers = http.Header{"X-Test": []string{"1"}}
		}
		return v
	}}
	b.Attach(engine.NewTranslator(context.Background(), rec))

	require.NoError(t, b.Navigate("https://example.org/exam"))
	assert.Equal(t, "1", got.Get("X-Test"))
}
