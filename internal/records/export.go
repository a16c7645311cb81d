// File: internal/records/export.go

package records

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"
	json "github.com/json-iterator/go"
)

// ExportXML renders records as an indented XML document.
func ExportXML(recs []Record, w io.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("registrations")
	root.CreateAttr("count", strconv.Itoa(len(recs)))

	for _, rec := range recs {
		el := root.CreateElement("registration")
		if rec.RunID != "" {
			el.CreateAttr("run_id", rec.RunID)
		}
		if rec.SessionID != "" {
			el.CreateAttr("session_id", rec.SessionID)
		}
		el.CreateElement("timestamp").SetText(rec.Timestamp.UTC().Format(time.RFC3339Nano))
		el.CreateElement("email").SetText(rec.Email)
		el.CreateElement("name").SetText(rec.Name)
		el.CreateElement("password").SetText(rec.Password)
		el.CreateElement("status").SetText(rec.Status)
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("writing XML export: %w", err)
	}
	return nil
}

// ExportJSON renders records as an indented JSON array.
func ExportJSON(recs []Record, w io.Writer) error {
	if recs == nil {
		recs = []Record{}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON export: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing JSON export: %w", err)
	}
	return nil
}
