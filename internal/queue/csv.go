package queue

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Row is one parsed CSV row (spec §4.8: "rows carry at least a url
// column and optionally video_id, title, channel_id, channel_title").
// Unknown columns are preserved in Extra so tooling built on top of this
// core can round-trip them without this package knowing their meaning.
type Row struct {
	URL          string
	VideoID      string
	Title        string
	ChannelID    string
	ChannelTitle string
	Extra        map[string]string
}

var knownColumns = map[string]bool{
	"url": true, "video_id": true, "title": true, "channel_id": true, "channel_title": true,
}

// ParseCSV reads r as a header + data rows CSV. The header row is
// required; "url" must be present among its columns (spec §4.8). Stdlib
// encoding/csv is used directly: no third-party CSV library appears
// anywhere in the retrieved example corpus (see DESIGN.md).
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // tolerate ragged rows; short rows fill remaining columns with ""
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("queue: csv has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("queue: read csv header: %w", err)
	}

	colIndex := map[string]int{}
	for i, h := range header {
		colIndex[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := colIndex["url"]; !ok {
		return nil, fmt.Errorf("queue: csv missing required column %q", "url")
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("queue: read csv row: %w", err)
		}
		row := Row{Extra: map[string]string{}}
		for name, idx := range colIndex {
			var val string
			if idx < len(record) {
				val = strings.TrimSpace(record[idx])
			}
			switch name {
			case "url":
				row.URL = val
			case "video_id":
				row.VideoID = val
			case "title":
				row.Title = val
			case "channel_id":
				row.ChannelID = val
			case "channel_title":
				row.ChannelTitle = val
			default:
				if !knownColumns[name] {
					row.Extra[name] = val
				}
			}
		}
		if row.URL == "" {
			continue // a row with no url carries nothing the pipeline can act on
		}
		rows = append(rows, row)
	}
	return rows, nil
}
