package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
)

func TestURLFilterDisabledAllowsEverything(t *testing.T) {
	f := NewURLFilter(false, nil)
	assert.True(t, f.Allows("https://anything.example/"))
}

func TestURLFilterRules(t *testing.T) {
	f := NewURLFilter(true, []settings.FilterRule{
		{Pattern: "exam.example.org/admin/**", Result: settings.FilterBlock},
		{Pattern: "exam.example.org/**", Result: settings.FilterAllow},
		{Pattern: "*.cdn.example.org", Result: settings.FilterAllow},
	})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://exam.example.org/q/1", true},
		{"https://EXAM.example.org/q/1#x", true},
		{"https://exam.example.org/admin/panel", false},
		{"https://static.cdn.example.org/lib.js", true},
		{"https://cdn.example.org/lib.js", false},
		{"https://search.example.com/?q=answers", false},
		{"about:blank", true},
		{"not a url", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Allows(tt.url), tt.url)
	}
}

func TestURLFilterMatchesInternationalizedHosts(t *testing.T) {
	f := NewURLFilter(true, []settings.FilterRule{
		{Pattern: "bücher.example/**", Result: settings.FilterAllow},
		{Pattern: "*.xn--caf-dma.example", Result: settings.FilterAllow},
	})

	assert.True(t, f.Allows("https://bücher.example/exam"))
	assert.True(t, f.Allows("https://xn--bcher-kva.example/exam"))
	assert.True(t, f.Allows("https://www.café.example/"))
	assert.False(t, f.Allows("https://bucher.example/exam"))
}

func TestURLFilterPathsAreCaseSensitive(t *testing.T) {
	f := NewURLFilter(true, []settings.FilterRule{
		{Pattern: "EXAMPLE.org/Course/**", Result: settings.FilterAllow},
	})

	assert.True(t, f.Allows("https://example.org/Course/x"))
	assert.True(t, f.Allows("https://Example.ORG/Course/x"))
	assert.False(t, f.Allows("https://example.org/course/x"))
}

func TestURLFilterAllowsMixedCaseStartURL(t *testing.T) {
	start := "https://Example.org/Exam/Start"
	f := NewURLFilterFromSettings(settings.URLFilterSettings{Enabled: true}, start)

	assert.True(t, f.Allows(start))
	assert.True(t, f.Allows("https://example.org/Exam/Start"))
	assert.False(t, f.Allows("https://example.org/exam/start"))
}

func TestURLFilterMalformedRuleBlocks(t *testing.T) {
	f := NewURLFilter(true, []settings.FilterRule{
		{Pattern: "exam.example.org/[", Result: settings.FilterAllow},
		{Pattern: "exam.example.org/**", Result: settings.FilterAllow},
	})
	assert.False(t, f.Allows("https://exam.example.org/q/1"))
}

func TestURLFilterFromSettingsAllowsStartURL(t *testing.T) {
	f := NewURLFilterFromSettings(settings.URLFilterSettings{
		Enabled: true,
		Rules:   []settings.FilterRule{{Pattern: "*.example.org", Result: settings.FilterBlock}},
	}, "https://exam.example.org/start")

	assert.True(t, f.Allows("https://exam.example.org/start"))
	assert.True(t, f.Allows("https://exam.example.org/start/"))
	assert.False(t, f.Allows("https://exam.example.org/other"))
}

func TestNilURLFilterDenies(t *testing.T) {
	var f *URLFilter
	assert.False(t, f.Allows("https://exam.example.org/"))
	assert.False(t, f.Enabled())
}

func TestPathFilter(t *testing.T) {
	f := NewPathFilter([]string{"/exam/downloads/**", " ", "/tmp/*.pdf"})
	assert.True(t, f.Restricted())

	tests := []struct {
		path string
		want bool
	}{
		{"/exam/downloads/sheet.pdf", true},
		{"/exam/downloads/nested/sheet.pdf", true},
		{"/exam/downloads/../secrets.txt", false},
		{"/tmp/a.pdf", true},
		{"/tmp/a.exe", false},
		{"relative/sheet.pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Allows(tt.path), tt.path)
	}
}

func TestEmptyPathFilterAllowsAbsolutePaths(t *testing.T) {
	f := NewPathFilter(nil)
	assert.False(t, f.Restricted())
	assert.True(t, f.Allows("/home/student/file.txt"))
	assert.False(t, f.Allows("file.txt"))
}
