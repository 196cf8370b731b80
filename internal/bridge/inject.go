package bridge

import (
	"fmt"
	"html"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/ExamShell/backend/internal/engine"
	"github.com/GriffinCanCode/ExamShell/backend/internal/integrity"
)

// InjectionKind names an outbound script
type InjectionKind string

const (
	InjectIntegrity       InjectionKind = "integrity"
	InjectClipboard       InjectionKind = "clipboard"
	InjectClipboardUpdate InjectionKind = "clipboard-update"
	InjectPrintOverride   InjectionKind = "print-override"
	InjectHostReply       InjectionKind = "host-reply"
)

// Injection is a script the host evaluates in a page
type Injection struct {
	Kind   InjectionKind
	Script string
}

// APIObject is the page global the injected API lives under
const APIObject = "ExamShell"

var noticePolicy = bluemonday.StrictPolicy()

var lineTerminators = strings.NewReplacer("\u2028", `\u2028`, "\u2029", `\u2029`)

// jsLiteral encodes v as JSON that is also a valid JavaScript expression
func jsLiteral(v any) (string, error) {
	b, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return "", err
	}
	return lineTerminators.Replace(string(b)), nil
}

// jsString encodes s as a JavaScript string literal
func jsString(s string) string {
	lit, err := jsLiteral(s)
	if err != nil {
		return `""`
	}
	return lit
}

func apiPrelude() string {
	return fmt.Sprintf(`window.%[1]s = window.%[1]s || {};`, APIObject)
}

// IntegrityAPI publishes the integrity values of the page's URL and the
// build version. Only derived values are embedded.
func IntegrityAPI(tok integrity.Token, buildVersion string) Injection {
	script := apiPrelude() + fmt.Sprintf(`
(function (api) {
	api.version = %[1]s;
	api.security = {
		url: %[2]s,
		browserExamKey: %[3]s,
		configKey: %[4]s,
		updateKeys: function (callback) {
			if (typeof callback === "function") { callback(); }
		}
	};
})(window.%[5]s);`,
		jsString(buildVersion),
		jsString(tok.URL),
		jsString(tok.BrowserExamKey),
		jsString(tok.ConfigurationKey),
		APIObject)
	return Injection{Kind: InjectIntegrity, Script: script}
}

// ClipboardIsolation installs the page side of the isolated clipboard.
// Copies are posted to the host; updates older than the last applied id are
// ignored, and every applied update is acknowledged.
func ClipboardIsolation(current uint64, content string) Injection {
	script := apiPrelude() + fmt.Sprintf(`
(function (api, host) {
	var state = { id: %[1]d, content: %[2]s };
	function post(message) {
		message.version = %[3]d;
		if (host && typeof host.postMessage === "function") { host.postMessage(message); }
	}
	api.clipboard = {
		id: function () { return state.id; },
		content: function () { return state.content; },
		update: function (id, content) {
			if (id <= state.id) { return false; }
			state.id = id;
			state.content = content;
			post({ type: %[4]s, id: id });
			return true;
		},
		copy: function (content) {
			post({ type: %[5]s, content: String(content) });
		}
	};
	if (typeof document !== "undefined" && typeof document.addEventListener === "function") {
		document.addEventListener("copy", function (e) {
			var text = String(window.getSelection ? window.getSelection() : "");
			api.clipboard.copy(text);
			if (e.clipboardData) { e.clipboardData.setData("text/plain", ""); }
			e.preventDefault();
		});
		document.addEventListener("paste", function (e) {
			var target = e.target;
			if (target && typeof target.setRangeText === "function") {
				target.setRangeText(state.content, target.selectionStart, target.selectionEnd, "end");
			}
			e.preventDefault();
		});
	}
})(window.%[6]s, window.%[7]s);`,
		current,
		jsString(content),
		Version,
		jsString(string(KindClipboardUpdateAck)),
		jsString(string(KindClipboardCopy)),
		APIObject,
		engine.MessageChannel)
	return Injection{Kind: InjectClipboard, Script: script}
}

// ClipboardUpdate pushes an entry into a page that has the clipboard installed
func ClipboardUpdate(id uint64, content string) Injection {
	script := fmt.Sprintf(`(function (api) {
	if (api && api.clipboard) { return api.clipboard.update(%d, %s); }
	return false;
})(window.%s);`, id, jsString(content), APIObject)
	return Injection{Kind: InjectClipboardUpdate, Script: script}
}

// PrintOverride replaces window.print with a notice. The notice is reduced
// to plain text. Pages can restore the native function, so this deters
// rather than prevents printing.
func PrintOverride(notice string) Injection {
	text := strings.TrimSpace(html.UnescapeString(noticePolicy.Sanitize(notice)))
	if text == "" {
		text = "Printing is not allowed."
	}
	script := fmt.Sprintf(`window.print = function () { alert(%s); };`, jsString(text))
	return Injection{Kind: InjectPrintOverride, Script: script}
}

// HostReply answers a host-query. value is encoded as JSON.
func HostReply(q Query, value any) (Injection, error) {
	payload, err := jsLiteral(map[string]any{
		"query": string(q),
		"value": value,
	})
	if err != nil {
		return Injection{}, fmt.Errorf("encode host reply: %w", err)
	}
	script := fmt.Sprintf(`(function (api) {
	if (api && typeof api.onHostReply === "function") { api.onHostReply(%s); }
})(window.%s);`, payload, APIObject)
	return Injection{Kind: InjectHostReply, Script: script}, nil
}
