package importer

import (
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseCSV reads a header-keyed CSV file into ordered string-keyed rows.
// Header names are lowercased with spaces collapsed to underscores so
// "Release Date" and "release_date" address the same field.
func ParseCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = normalizeKey(h)
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		row := make(map[string]string, len(keys))
		for i, v := range record {
			if i < len(keys) && keys[i] != "" {
				row[keys[i]] = strings.TrimSpace(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Legacy export element names that differ from the canonical row keys.
var legacyKeyAliases = map[string]string{
	"itemtype":       "item_type",
	"releasedate":    "release_date",
	"releaseyear":    "year",
	"audiencerating": "user_rating",
	"runtimeminutes": "runtime",
	"contentrating":  "rating",
	"plot":           "overview",
	"barcode":        "upc",
}

// ParseLegacyXML reads the legacy collection-export format: a flat list of
// <item> elements whose children are field name/value pairs. Unknown
// elements are carried through as-is; the normalizer decides what to use.
func ParseLegacyXML(r io.Reader) ([]map[string]string, error) {
	decoder := xml.NewDecoder(r)

	var rows []map[string]string
	var current map[string]string
	var field string
	var text strings.Builder

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse legacy export: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			if name == "item" {
				current = map[string]string{}
			} else if current != nil {
				field = name
				text.Reset()
			}
		case xml.CharData:
			if current != nil && field != "" {
				text.Write(t)
			}
		case xml.EndElement:
			name := strings.ToLower(t.Name.Local)
			if name == "item" {
				if current != nil {
					rows = append(rows, current)
				}
				current = nil
			} else if current != nil && name == field {
				key := normalizeKey(field)
				if alias, ok := legacyKeyAliases[key]; ok {
					key = alias
				}
				current[key] = strings.TrimSpace(text.String())
				field = ""
			}
		}
	}
	if len(rows) == 0 {
		return nil, errors.New("no items in legacy export")
	}
	return rows, nil
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.ReplaceAll(k, " ", "_")
	k = strings.ReplaceAll(k, "-", "_")
	return k
}
