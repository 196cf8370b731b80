package integrity

import (
	"net/http"

	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
)

// Request headers carrying the keyed hashes to the exam server.
const (
	HeaderRequestHash   = "X-SafeExamBrowser-RequestHash"
	HeaderConfigKeyHash = "X-SafeExamBrowser-ConfigKeyHash"
)

// Token is the pair of integrity values for one URL.
type Token struct {
	URL              string `json:"url"`
	BrowserExamKey   string `json:"browserExamKey"`
	ConfigurationKey string `json:"configurationKey"`
}

// Generator derives tokens from a session's Configuration.
// It holds no cache: every call recomputes from scratch.
type Generator struct {
	cfg *settings.Configuration
}

// NewGenerator creates a generator bound to cfg.
func NewGenerator(cfg *settings.Configuration) *Generator {
	return &Generator{cfg: cfg}
}

// Derive computes both keys for rawURL.
func (g *Generator) Derive(rawURL string) (Token, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return Token{}, err
	}

	ck, err := ComputeConfigurationKey(g.cfg.Secret(), normalized)
	if err != nil {
		return Token{}, err
	}
	bek, err := ComputeBrowserExamKey(g.cfg.Secret(), g.cfg.Salt(), normalized)
	if err != nil {
		return Token{}, err
	}

	return Token{URL: normalized, BrowserExamKey: bek, ConfigurationKey: ck}, nil
}

// RequestHeaders returns the headers to attach to a top-level request for
// the token's URL, according to the configuration's send flags.
func (g *Generator) RequestHeaders(t Token) http.Header {
	h := http.Header{}
	if g.cfg.SendBrowserExamKey() {
		h.Set(HeaderRequestHash, t.BrowserExamKey)
	}
	if g.cfg.SendConfigurationKey() {
		h.Set(HeaderConfigKeyHash, t.ConfigurationKey)
	}
	return h
}
