package crawler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type fileProperties struct {
	Size         string
	LastModified string
}

// extractProperties reads descriptive metadata from a file's own page. The
// page must carry a property table; size and modification time are
// best-effort and may stay empty.
func extractProperties(body []byte) (fileProperties, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fileProperties{}, fmt.Errorf("%w: %v", errMalformedHTML, err)
	}
	table := doc.Find("table.property-table").First()
	if table.Length() == 0 {
		return fileProperties{}, ErrNoProperties
	}

	var props fileProperties
	readRows(table, &props)
	// THREDDS file pages put the data size in the dataset context table.
	readRows(doc.Find("table.context").First(), &props)

	if props.LastModified == "" {
		doc.Find("#dates li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
			text := strings.TrimSpace(li.Text())
			if !strings.Contains(strings.ToLower(text), "modified") {
				return true
			}
			if _, value, ok := strings.Cut(text, ": "); ok {
				props.LastModified = strings.TrimSpace(value)
			}
			return false
		})
	}
	return props, nil
}

// readRows fills empty fields of props from label/value rows of table.
func readRows(table *goquery.Selection, props *fileProperties) {
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(cells.First().Text()))
		value := strings.TrimSpace(cells.Eq(1).Text())
		switch {
		case props.Size == "" && strings.Contains(label, "size"):
			props.Size = value
		case props.LastModified == "" && strings.Contains(label, "modified"):
			props.LastModified = value
		}
	})
}
