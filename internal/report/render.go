package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Assemble joins the section drafts under a title.
func Assemble(title string, drafts []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	for i, d := range drafts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.TrimSpace(d))
	}
	sb.WriteByte('\n')
	return sb.String()
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

var pageTemplate = template.Must(template.New("report").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:Georgia,"Times New Roman",serif;color:#1c1917;max-width:860px;margin:2rem auto;padding:0 1rem;line-height:1.55}
h1{border-bottom:2px solid #44403c;padding-bottom:.3rem}
h2{margin-top:2rem;border-bottom:1px solid #d6d3d1}
table{border-collapse:collapse;width:100%}
th,td{border:1px solid #a8a29e;padding:.35rem .45rem;text-align:left;vertical-align:top}
.meta{color:#57534e;font-size:.85rem}
@media print{@page{margin:12mm}body{margin:0;max-width:none}h2{break-after:avoid}}
</style>
</head>
<body>
{{if .Generated}}<p class="meta">Generated {{.Generated}}</p>{{end}}
{{.Content}}
</body>
</html>
`))

// RenderHTML converts report markdown to a standalone HTML page. Raw HTML in
// the markdown is not passed through.
func RenderHTML(title, md string, generated time.Time) ([]byte, error) {
	var content bytes.Buffer
	if err := markdown.Convert([]byte(md), &content); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}
	data := struct {
		Title     string
		Generated string
		Content   template.HTML
	}{
		Title:   title,
		Content: template.HTML(content.String()),
	}
	if !generated.IsZero() {
		data.Generated = generated.Format("2 January 2006 at 3:04 PM MST")
	}

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return out.Bytes(), nil
}

// PDFTimeout bounds a single PDF render.
const PDFTimeout = 30 * time.Second

// RenderPDF prints an HTML page to A4 PDF with headless Chrome.
func RenderPDF(ctx context.Context, htmlDoc []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, PDFTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if path := chromePath(); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString(htmlDoc)
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("printing pdf: %w", err)
	}
	return pdf, nil
}

// chromePath returns CHROME_PATH or the first common install found, or ""
// to let chromedp search.
func chromePath() string {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, p := range []string{"/usr/bin/chromium-browser", "/usr/bin/chromium", "/usr/bin/google-chrome"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
