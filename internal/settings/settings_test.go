package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() Settings {
	s := Defaults()
	s.ConfigurationKey = "s1"
	s.BrowserExamKeySalt = "a1"
	return s
}

func TestDefaults(t *testing.T) {
	s := Defaults()

	assert.Equal(t, ClipboardIsolated, s.ClipboardPolicy)
	assert.Equal(t, PopupAllow, s.PopupPolicy)
	assert.True(t, s.AllowPrint)
	assert.True(t, s.MainWindow.AllowBackwardNavigation)
	assert.False(t, s.SendBrowserExamKey)
	assert.NotEmpty(t, s.PrintNotAllowedNotice)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{name: "valid", mutate: func(*Settings) {}},
		{name: "missing secret", mutate: func(s *Settings) { s.ConfigurationKey = "" }, wantErr: ErrMissingSecret},
		{name: "missing salt", mutate: func(s *Settings) { s.BrowserExamKeySalt = "" }, wantErr: ErrMissingSalt},
		{name: "unknown clipboard policy", mutate: func(s *Settings) { s.ClipboardPolicy = "shared" }},
		{name: "unknown popup policy", mutate: func(s *Settings) { s.PopupPolicy = "" }},
		{name: "empty filter pattern", mutate: func(s *Settings) {
			s.URLFilter.Rules = []FilterRule{{Pattern: " ", Result: FilterAllow}}
		}},
		{name: "bad filter result", mutate: func(s *Settings) {
			s.URLFilter.Rules = []FilterRule{{Pattern: "example.org/**", Result: "maybe"}}
		}},
		{name: "start url without scheme", mutate: func(s *Settings) { s.StartURL = "example.org" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			err := s.Validate()

			if tt.name == "valid" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewSnapshotIsIsolatedFromInput(t *testing.T) {
	s := validSettings()
	s.DownloadAllowList = []string{"/exam/downloads/**"}
	s.URLFilter.Rules = []FilterRule{{Pattern: "example.org/**", Result: FilterAllow}}
	s.AdditionalWindow.AllowPrint = Bool(false)

	cfg, err := New(s)
	require.NoError(t, err)

	s.DownloadAllowList[0] = "/**"
	s.URLFilter.Rules[0].Result = FilterBlock
	*s.AdditionalWindow.AllowPrint = true
	s.ConfigurationKey = "changed"

	got := cfg.Settings()
	assert.Equal(t, "/exam/downloads/**", got.DownloadAllowList[0])
	assert.Equal(t, FilterAllow, got.URLFilter.Rules[0].Result)
	assert.False(t, *got.AdditionalWindow.AllowPrint)
	assert.Equal(t, []byte("s1"), cfg.Secret())

	got.DownloadAllowList[0] = "/tmp/**"
	assert.Equal(t, "/exam/downloads/**", cfg.Settings().DownloadAllowList[0])
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	_, err := New(Defaults())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingSecret)
	assert.ErrorIs(t, err, ErrMissingSalt)
}

func TestAccessors(t *testing.T) {
	s := validSettings()
	s.ProgramBuildVersion = "3.8.0"
	s.SendBrowserExamKey = true
	s.DownloadDirectory = "/exam/downloads"

	cfg, err := New(s)
	require.NoError(t, err)

	assert.Equal(t, []byte("a1"), cfg.Salt())
	assert.Equal(t, "3.8.0", cfg.BuildVersion())
	assert.True(t, cfg.SendBrowserExamKey())
	assert.False(t, cfg.SendConfigurationKey())
	assert.Equal(t, ClipboardIsolated, cfg.ClipboardPolicy())
	assert.Equal(t, PopupAllow, cfg.PopupPolicy())
	assert.Equal(t, "/exam/downloads", cfg.DownloadDirectory())
	assert.Equal(t, s.StartURL, cfg.StartURL())
}
