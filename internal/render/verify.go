package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("pdf has no pages")

// Inspection is what Verify read back from a rendered document.
type Inspection struct {
	Pages int
	Title string
}

// Verify parses data as a PDF and reports its page count and title. A
// document that does not parse or has no pages is rejected.
func Verify(data []byte) (ins *Inspection, err error) {
	// the reader panics on some malformed trailers
	defer func() {
		if p := recover(); p != nil {
			ins, err = nil, fmt.Errorf("open pdf: %v", p)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := reader.NumPage()
	if n == 0 {
		return nil, ErrEmptyDocument
	}
	return &Inspection{
		Pages: n,
		Title: reader.Trailer().Key("Info").Key("Title").Text(),
	}, nil
}

// PlainText extracts the text of every page, one page per line.
func PlainText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	return buf.String(), nil
}
