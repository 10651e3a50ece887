package cleaner

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
)

// Description output formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// DescriptionFormatter renders description HTML fragments (JSON-LD
// descriptions, body_html, description_html) in the configured format.
// It is safe for concurrent use.
type DescriptionFormatter struct {
	format string
	conv   *converter.Converter
}

// NewDescriptionFormatter creates a formatter for "text", "markdown" or
// "html". Unknown formats fall back to text.
func NewDescriptionFormatter(format string) *DescriptionFormatter {
	f := &DescriptionFormatter{format: format}
	if format == FormatMarkdown {
		f.conv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		)
	}
	return f
}

// Format renders fragment. Plain strings without markup pass through
// trimmed in every format. The result is "" when nothing readable remains.
func (f *DescriptionFormatter) Format(fragment, pageURL string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}

	switch f.format {
	case FormatHTML:
		return fragment
	case FormatMarkdown:
		md, err := f.conv.ConvertString(fragment, converter.WithDomain(pageURL))
		if err == nil {
			return strings.TrimSpace(md)
		}
	}
	return htmlText(fragment)
}

// htmlText flattens an HTML fragment into text, one line per block.
func htmlText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find(noiseSelector).Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return collapseWhitespace(doc.Text())
}
