// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/pdfassist/pkg/httpclient"
)

// Format is a supported source document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
	FormatText Format = "text"
)

// Page is one logical unit of a source: a PDF page, a sheet, or the
// whole body of a DOCX or text file.
type Page struct {
	Number int
	Text   string
}

// Source is a fetched and parsed document.
type Source struct {
	URL    string
	Name   string
	Format Format
	Pages  []Page
}

// Reader fetches documents over HTTP (or from disk) and extracts text.
type Reader struct {
	client   *httpclient.Client
	maxBytes int64
}

// NewReader returns a Reader. maxBytes caps downloads; zero disables the cap.
func NewReader(client *httpclient.Client, maxBytes int64) *Reader {
	if client == nil {
		client = httpclient.New()
	}
	return &Reader{client: client, maxBytes: maxBytes}
}

// Read fetches rawURL and parses it according to its extension, falling
// back to the Content-Type header and then to content sniffing.
func (r *Reader) Read(ctx context.Context, rawURL string) (*Source, error) {
	data, contentType, err := r.fetch(ctx, rawURL)
	if err != nil {
		return nil, &LoadError{URL: rawURL, Op: "fetch", Err: err}
	}

	format := detectFormat(rawURL, contentType, data)
	pages, err := parse(ctx, format, data)
	if err != nil {
		return nil, &LoadError{URL: rawURL, Op: "parse", Err: err}
	}

	slog.Debug("Parsed document", "url", rawURL, "format", format, "pages", len(pages))
	return &Source{URL: rawURL, Name: DocumentName(rawURL), Format: format, Pages: pages}, nil
}

func (r *Reader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", err
	}

	switch u.Scheme {
	case "http", "https":
	case "file":
		return r.readFile(u.Path)
	case "":
		return r.readFile(rawURL)
	default:
		return nil, "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := r.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body := io.Reader(resp.Body)
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", err
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, "", fmt.Errorf("document exceeds %d bytes", r.maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (r *Reader) readFile(p string) ([]byte, string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, "", err
	}
	if r.maxBytes > 0 && info.Size() > r.maxBytes {
		return nil, "", fmt.Errorf("document exceeds %d bytes", r.maxBytes)
	}
	data, err := os.ReadFile(p)
	return data, "", err
}

// IsRemote reports whether rawURL is an absolute http or https URL.
// Network-facing surfaces accept only these, so clients cannot make the
// reader open local files.
func IsRemote(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// DocumentName derives a display name from the last path element of
// rawURL without its extension, e.g. "ThaiRecipes".
func DocumentName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		if u.Path == "" || u.Path == "/" {
			return rawURL
		}
		p = u.Path
	} else if err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(filepath.ToSlash(p))
	if base == "." || base == "/" {
		return rawURL
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

func detectFormat(rawURL, contentType string, data []byte) Format {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".xlsx":
		return FormatXLSX
	case ".txt", ".md":
		return FormatText
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case mediaType == "application/pdf":
			return FormatPDF
		case strings.HasSuffix(mediaType, "wordprocessingml.document"):
			return FormatDOCX
		case strings.HasSuffix(mediaType, "spreadsheetml.sheet"):
			return FormatXLSX
		case strings.HasPrefix(mediaType, "text/"):
			return FormatText
		}
	}

	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF
	}
	return FormatText
}

func parse(ctx context.Context, format Format, data []byte) ([]Page, error) {
	switch format {
	case FormatPDF:
		return parsePDF(ctx, data)
	case FormatDOCX:
		return parseDOCX(data)
	case FormatXLSX:
		return parseXLSX(ctx, data)
	default:
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, nil
		}
		return []Page{{Number: 1, Text: text}}, nil
	}
}

func parsePDF(ctx context.Context, data []byte) ([]Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	var pages []Page
	for n := 1; n <= reader.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("Skipping unreadable PDF page", "page", n, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, Page{Number: n, Text: text})
		}
	}
	return pages, nil
}

var (
	paragraphEnd = regexp.MustCompile(`</w:p>|<w:br/>|<w:tab/>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
)

func parseDOCX(data []byte) ([]Page, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOCX: %w", err)
	}
	defer doc.Close()

	text := docxText(doc.Editable().GetContent())
	if text == "" {
		return nil, nil
	}
	return []Page{{Number: 1, Text: text}}, nil
}

// docxText flattens WordprocessingML into plain text, one line per paragraph.
func docxText(content string) string {
	content = paragraphEnd.ReplaceAllStringFunc(content, func(tag string) string {
		if tag == "<w:tab/>" {
			return "\t"
		}
		return "\n"
	})
	content = html.UnescapeString(xmlTag.ReplaceAllString(content, ""))

	lines := strings.Split(content, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func parseXLSX(ctx context.Context, data []byte) ([]Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XLSX: %w", err)
	}
	defer f.Close()

	var pages []Page
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Sheet: %s\n", sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
		if len(rows) > 0 {
			pages = append(pages, Page{Number: i + 1, Text: strings.TrimSpace(b.String())})
		}
	}
	return pages, nil
}
