package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
)

const (
	examConfigurationKey = "a6e0190dab91bd811e1be1aebf700d0dd2f301f0aa0bfa2e2374a1778d187add"
	examBrowserExamKey   = "5a5435ea81e163c6597db909e098d47bcc237aa9635a37d64b25c2ef133d5cb5"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.org/exam", "https://example.org/exam"},
		{"https://example.org/exam/", "https://example.org/exam"},
		{"HTTPS://Example.ORG/exam", "https://example.org/exam"},
		{"https://example.org/exam#q3", "https://example.org/exam"},
		{"https://example.org:443/exam", "https://example.org/exam"},
		{"http://example.org:80", "http://example.org/"},
		{"http://example.org:8080/a/", "http://example.org:8080/a"},
		{"https://example.org", "https://example.org/"},
		{"https://example.org/", "https://example.org/"},
		{"https://example.org/exam?id=7&x=1", "https://example.org/exam?id=7&x=1"},
		{"https://example.org/exam/?id=7#top", "https://example.org/exam?id=7"},
		{"http://[::1]:8080/exam", "http://[::1]:8080/exam"},
		{"http://[::1]/exam", "http://[::1]/exam"},
		{"about:blank", "about:blank"},
		{"  https://example.org/exam  ", "https://example.org/exam"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := NormalizeURL(got)
			require.NoError(t, err)
			assert.Equal(t, got, again, "normalization must be idempotent")
		})
	}
}

func TestNormalizeURLInvalid(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"example.org/exam",
		"/exam",
		"https://exa mple.org/%zz",
		string([]byte{'h', 't', 't', 'p', ':', '/', '/', 0xff}),
	}

	for _, in := range inputs {
		_, err := NormalizeURL(in)
		require.Error(t, err, "input %q", in)

		var invalid *InvalidInputError
		assert.ErrorAs(t, err, &invalid)
	}
}

func TestConfigurationKeyVector(t *testing.T) {
	secret := []byte("s1")

	s, err := ComputeConfigurationKey(secret, "https://example.org/exam")
	require.NoError(t, err)
	assert.Len(t, s, 64)
	assert.Equal(t, examConfigurationKey, s)

	slash, err := ComputeConfigurationKey(secret, "https://example.org/exam/")
	require.NoError(t, err)
	assert.Equal(t, s, slash)

	other, err := ComputeConfigurationKey(secret, "https://example.org/exam2")
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}

func TestBrowserExamKeyVector(t *testing.T) {
	bek, err := ComputeBrowserExamKey([]byte("s1"), []byte("a1"), "https://example.org/exam")
	require.NoError(t, err)
	assert.Equal(t, examBrowserExamKey, bek)

	ck, err := ComputeConfigurationKey([]byte("s1"), "https://example.org/exam")
	require.NoError(t, err)
	assert.NotEqual(t, ck, bek, "the two anchors must be independent")
}

func TestKeysAreDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		ck, err := ComputeConfigurationKey([]byte("s1"), "https://example.org/exam")
		require.NoError(t, err)
		assert.Equal(t, examConfigurationKey, ck)

		bek, err := ComputeBrowserExamKey([]byte("s1"), []byte("a1"), "https://example.org/exam")
		require.NoError(t, err)
		assert.Equal(t, examBrowserExamKey, bek)
	}
}

func TestSingleByteChangeChangesKeys(t *testing.T) {
	base, err := ComputeBrowserExamKey([]byte("s1"), []byte("a1"), "https://example.org/exam")
	require.NoError(t, err)

	variants := []struct {
		name   string
		secret string
		salt   string
		url    string
	}{
		{"secret", "s2", "a1", "https://example.org/exam"},
		{"salt", "s1", "a2", "https://example.org/exam"},
		{"url", "s1", "a1", "https://example.org/exan"},
		{"host", "s1", "a1", "https://example.net/exam"},
		{"query", "s1", "a1", "https://example.org/exam?"},
	}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			got, err := ComputeBrowserExamKey([]byte(v.secret), []byte(v.salt), v.url)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}

	ck1, err := ComputeConfigurationKey([]byte("s1"), "https://example.org/exam")
	require.NoError(t, err)
	ck2, err := ComputeConfigurationKey([]byte("s2"), "https://example.org/exam")
	require.NoError(t, err)
	assert.NotEqual(t, ck1, ck2)
}

func TestSaltDoesNotAffectConfigurationKey(t *testing.T) {
	cfgA := mustConfiguration(t, "s1", "a1", false, false)
	cfgB := mustConfiguration(t, "s1", "b2", false, false)

	tokA, err := NewGenerator(cfgA).Derive("https://example.org/exam")
	require.NoError(t, err)
	tokB, err := NewGenerator(cfgB).Derive("https://example.org/exam")
	require.NoError(t, err)

	assert.Equal(t, tokA.ConfigurationKey, tokB.ConfigurationKey)
	assert.NotEqual(t, tokA.BrowserExamKey, tokB.BrowserExamKey)
}

func TestKeysRequireSecretMaterial(t *testing.T) {
	_, err := ComputeConfigurationKey(nil, "https://example.org/exam")
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)

	_, err = ComputeBrowserExamKey([]byte("s1"), nil, "https://example.org/exam")
	require.ErrorAs(t, err, &invalid)

	_, err = ComputeBrowserExamKey(nil, []byte("a1"), "https://example.org/exam")
	require.ErrorAs(t, err, &invalid)
}

func TestKeysRejectMalformedURL(t *testing.T) {
	_, err := ComputeConfigurationKey([]byte("s1"), "example.org/exam")
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "missing scheme", invalid.Reason)
}

func mustConfiguration(t *testing.T, secret, salt string, sendBEK, sendCK bool) *settings.Configuration {
	t.Helper()
	s := settings.Defaults()
	s.ConfigurationKey = secret
	s.BrowserExamKeySalt = salt
	s.SendBrowserExamKey = sendBEK
	s.SendConfigurationKey = sendCK
	cfg, err := settings.New(s)
	require.NoError(t, err)
	return cfg
}
