package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// HTMLExtractor turns raw HTML into page text using a target's selectors.
type HTMLExtractor interface {
	ExtractText(html string, selectors []string) string
}

// DocumentText returns the analysable text of a fetched document. PDFs are
// read page by page; everything else goes through the HTML extractor.
func DocumentText(doc *FetchedDocument, ex HTMLExtractor, selectors []string) (string, error) {
	if doc.IsPDF() {
		text, err := ExtractPDFText(doc.Body)
		if err != nil {
			return "", fmt.Errorf("read pdf %s: %w", doc.URL, err)
		}
		return strings.Join(strings.Fields(text), " "), nil
	}
	return ex.ExtractText(string(doc.Body), selectors), nil
}

// ContentHash is the hex MD5 digest of the extracted text, used only to
// notice that a page changed between checks.
func ContentHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
