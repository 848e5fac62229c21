package export

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fpang/ec8a-extractor/internal/form"
	"github.com/fpang/ec8a-extractor/internal/store"
)

// WriteCSV writes the header and one line per record. Text cells are always
// quoted with embedded quotes doubled, numbers are bare and blanks are empty.
// The same snapshot always produces the same bytes.
func WriteCSV(w io.Writer, records []store.Record, l form.Layout) error {
	bw := bufio.NewWriter(w)

	for i, h := range l.Header() {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteString(headerField(h))
	}
	bw.WriteByte('\n')

	var scratch []byte
	for _, row := range rows(records, l) {
		for i, c := range row {
			if i > 0 {
				bw.WriteByte(',')
			}
			switch c.kind {
			case cellText:
				bw.WriteString(quote(c.text))
			case cellToken:
				bw.WriteString(c.text)
			case cellNumber:
				scratch = strconv.AppendInt(scratch[:0], c.num, 10)
				bw.Write(scratch)
			}
		}
		bw.WriteByte('\n')
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// CSV returns the export as bytes.
func CSV(records []store.Record, l form.Layout) []byte {
	var buf bytes.Buffer
	// bytes.Buffer writes cannot fail.
	_ = WriteCSV(&buf, records, l)
	return buf.Bytes()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// headerField quotes a header only when it would otherwise break the line.
func headerField(h string) string {
	if strings.ContainsAny(h, ",\"\r\n") {
		return quote(h)
	}
	return h
}
