// ABOUTME: API reference endpoint rendered from embedded markdown
// ABOUTME: Serves GET /docs, the target of the root redirect

package gateway

import (
	"bytes"
	_ "embed"
	"net/http"

	"github.com/yuin/goldmark"
)

//go:embed docs/api.md
var apiDocsMarkdown []byte

const docsPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>memos-gateway API</title>
<style>
body { font-family: sans-serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
code, pre { background: #f4f4f4; padding: 0.1rem 0.3rem; border-radius: 3px; }
pre { padding: 0.8rem; overflow-x: auto; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
</style>
</head>
<body>
`

// handleDocs renders the embedded API reference as HTML.
func (g *Gateway) handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert(apiDocsMarkdown, &htmlBuf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		htmlBuf.Reset()
		htmlBuf.WriteString("<p>Failed to render API reference.</p>")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
	_, _ = w.Write(htmlBuf.Bytes())
	_, _ = w.Write([]byte("</body>\n</html>\n"))
}
