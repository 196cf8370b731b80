package engine

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events  []Event
	verdict Verdict
}

func (r *recorder) Dispatch(_ context.Context, ev Event) Verdict {
	r.events = append(r.events, ev)
	return r.verdict
}

func (r *recorder) last(t *testing.T) Event {
	t.Helper()
	require.NotEmpty(t, r.events)
	return r.events[len(r.events)-1]
}

func TestOnBeforeBrowseOrigins(t *testing.T) {
	tests := []struct {
		name       string
		transition Transition
		gesture    bool
		want       Origin
	}{
		{"link click", TransitionLink, true, OriginLinkClick},
		{"script navigation", TransitionLink, false, OriginScript},
		{"address bar", TransitionExplicit, true, OriginAddressBar},
		{"reload", TransitionReload, false, OriginReload},
		{"back forward", TransitionLink | TransitionForwardBackFlag, false, OriginBackForward},
		{"server redirect", TransitionLink | TransitionServerRedirectFlag, true, OriginRedirect},
		{"client redirect", TransitionLink | TransitionClientRedirectFlag, false, OriginRedirect},
		{"form submit", TransitionFormSubmit, true, OriginLinkClick},
		{"auto subframe", TransitionAutoSubframe, false, OriginScript},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{verdict: Permit()}
			tr := NewTranslator(context.Background(), rec)

			cancel, _ := tr.OnBeforeBrowse("f1", true, "https://example.org/", tt.transition, tt.gesture)
			assert.False(t, cancel)

			nav, ok := rec.last(t).(NavigationRequested)
			require.True(t, ok)
			assert.Equal(t, tt.want, nav.Origin)
			assert.Equal(t, "https://example.org/", nav.URL)
			assert.True(t, nav.IsMainFrame)
		})
	}
}

func TestOnBeforeBrowseDenyCancels(t *testing.T) {
	rec := &recorder{verdict: Refuse("blocked")}
	tr := NewTranslator(context.Background(), rec)

	cancel, headers := tr.OnBeforeBrowse(MainFrame, true, "https://evil.example/", TransitionExplicit, true)
	assert.True(t, cancel)
	assert.Nil(t, headers)
}

func TestOnBeforeBrowsePassesHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Test", "1")
	rec := &recorder{verdict: Verdict{Action: Allow, Headers: h}}
	tr := NewTranslator(context.Background(), rec)

	cancel, headers := tr.OnBeforeBrowse(MainFrame, true, "https://example.org/", TransitionLink, true)
	assert.False(t, cancel)
	assert.Equal(t, "1", headers.Get("X-Test"))
}

func TestOnOpenURLFromTab(t *testing.T) {
	tests := []struct {
		name       string
		verdict    Verdict
		wantCancel bool
		wantURL    string
	}{
		{"allow", Permit(), false, ""},
		{"deny", Refuse("popup"), true, ""},
		{"same window", Verdict{Action: Rewrite, URL: "https://example.org/p", SameWindow: true}, true, "https://example.org/p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{verdict: tt.verdict}
			tr := NewTranslator(context.Background(), rec)

			cancel, url := tr.OnOpenURLFromTab("https://example.org/p", true)
			assert.Equal(t, tt.wantCancel, cancel)
			assert.Equal(t, tt.wantURL, url)

			nav := rec.last(t).(NavigationRequested)
			assert.Equal(t, OriginPopup, nav.Origin)
		})
	}
}

func TestOnBeforeDownload(t *testing.T) {
	rec := &recorder{verdict: Verdict{Action: Allow, Path: "/exam/downloads/a.pdf"}}
	tr := NewTranslator(context.Background(), rec)

	cancel, path := tr.OnBeforeDownload("https://example.org/a.pdf", "a.pdf", "Application/PDF", "")
	assert.False(t, cancel)
	assert.Equal(t, "/exam/downloads/a.pdf", path)

	dl := rec.last(t).(DownloadRequested)
	assert.Equal(t, "application/pdf", dl.MimeType)

	rec.verdict = Refuse("downloads disabled")
	cancel, path = tr.OnBeforeDownload("https://example.org/a.pdf", "a.pdf", "application/pdf", "/tmp/a.pdf")
	assert.True(t, cancel)
	assert.Empty(t, path)
}

func TestEveryCallbackProducesOneEvent(t *testing.T) {
	rec := &recorder{verdict: Permit()}
	tr := NewTranslator(context.Background(), rec)

	tr.OnLoadEnd("f", true, "https://example.org/", 200)
	tr.OnLoadError(true, -105, "NAME_NOT_RESOLVED", "https://nowhere.invalid/")
	tr.OnContextCreated("f", true, "https://example.org/")
	tr.OnContextReleased("f", true)
	tr.OnFileDialog(FileDialogOpen, "", nil)
	tr.OnFileDialogResult(FileDialogOpen, []string{"/tmp/a.txt"})
	tr.OnPreKeyEvent("P", Modifiers{Ctrl: true})
	tr.OnProcessMessageReceived("f", []byte(`{}`))
	tr.OnUncaughtException("f", "boom", "app.js", 3)
	tr.OnTitleChange("Exam")
	tr.OnLoadingStateChange(true, false, false)

	kinds := make([]Kind, 0, len(rec.events))
	for _, ev := range rec.events {
		kinds = append(kinds, ev.Kind())
	}
	assert.Equal(t, []Kind{
		KindNavigationCompleted,
		KindLoadFailed,
		KindContextCreated,
		KindContextReleased,
		KindFileDialogRequested,
		KindFilesSelected,
		KindKeyPressed,
		KindScriptMessageReceived,
		KindUncaughtScriptError,
		KindTitleChanged,
		KindLoadingStateChanged,
	}, kinds)
}

func TestKeyAndFileDialogDecisions(t *testing.T) {
	rec := &recorder{verdict: Refuse("print disabled")}
	tr := NewTranslator(context.Background(), rec)

	assert.True(t, tr.OnPreKeyEvent("P", Modifiers{Ctrl: true}))
	assert.True(t, tr.OnFileDialog(FileDialogOpen, "", nil))
	assert.True(t, tr.OnFileDialogResult(FileDialogOpen, []string{"/etc/passwd"}))

	rec.verdict = Permit()
	assert.False(t, tr.OnFileDialogResult(FileDialogOpen, []string{"/tmp/a.txt"}))
	assert.False(t, tr.OnPreKeyEvent("A", Modifiers{}))
}

func TestEndedSessionRefusesWithoutDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{verdict: Permit()}
	tr := NewTranslator(ctx, rec)
	cancel()

	denied, _ := tr.OnBeforeBrowse(MainFrame, true, "https://example.org/", TransitionLink, true)
	assert.True(t, denied)
	assert.Empty(t, rec.events)
}

func TestDispatcherFunc(t *testing.T) {
	var got Event
	d := DispatcherFunc(func(_ context.Context, ev Event) Verdict {
		got = ev
		return Refuse("x")
	})
	v := d.Dispatch(context.Background(), TitleChanged{Title: "t"})
	assert.False(t, v.Allowed())
	assert.Equal(t, TitleChanged{Title: "t"}, got)
}
