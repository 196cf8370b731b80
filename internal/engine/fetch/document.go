package fetch

import (
	"bytes"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/ExamShell/backend/internal/engine/sandbox"
)

// minConfidence is the chardet confidence below which the HTML default
// encoding is kept
const minConfidence = 50

// Parse turns a response body into a sandbox document. HTML documents get
// their title and inline classic scripts; anything else is an empty page
// titled with its file name.
func Parse(pageURL string, body []byte, contentType string, status int) (sandbox.Document, error) {
	doc := sandbox.Document{Title: pageURL, StatusCode: status}

	if !isHTML(body, contentType) {
		if u, err := url.Parse(pageURL); err == nil {
			if name := path.Base(u.Path); name != "/" && name != "." {
				doc.Title = name
			}
		}
		return doc, nil
	}

	html, err := goquery.NewDocumentFromReader(decode(body, contentType))
	if err != nil {
		return sandbox.Document{}, err
	}

	if title := normalizeWhitespace(html.Find("title").First().Text()); title != "" {
		doc.Title = title
	}

	var scripts []string
	html.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if !isClassicScript(s.AttrOr("type", "")) {
			return
		}
		if code := strings.TrimSpace(s.Text()); code != "" {
			scripts = append(scripts, code)
		}
	})
	doc.Script = strings.Join(scripts, ";\n")
	return doc, nil
}

func isHTML(body []byte, contentType string) bool {
	if media, _, err := mime.ParseMediaType(contentType); err == nil {
		return media == "text/html" || media == "application/xhtml+xml"
	}
	m := mimetype.Detect(body)
	return m.Is("text/html") || m.Is("application/xhtml+xml")
}

func isClassicScript(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "application/ecmascript", "text/ecmascript":
		return true
	}
	return false
}

// decode returns a UTF-8 reader over body. A charset from the Content-Type
// header or a BOM is trusted. Otherwise a meta declaration or valid UTF-8
// decides, and only the windows-1252 fallback is second-guessed by
// statistical detection.
func decode(body []byte, contentType string) io.Reader {
	_, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && name == "windows-1252" {
		if r, err := chardet.NewHtmlDetector().DetectBest(body); err == nil && r.Confidence >= minConfidence {
			name = r.Charset
		}
	}

	rd, err := charset.NewReaderLabel(name, bytes.NewReader(body))
	if err != nil {
		return bytes.NewReader(body)
	}
	return rd
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
