// File: internal/records/export_test.go
package records

import (
	"bytes"
	"strings"
	"testing"

	"github.com/beevik/etree"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportXML(t *testing.T) {
	t.Parallel()

	recs := []Record{
		testRecord("one@example.com"),
		testRecord("two@example.com"),
	}
	recs[1].SessionID = ""

	var buf bytes.Buffer
	require.NoError(t, ExportXML(recs, &buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"), "Export should start with an XML declaration")

	// Parse the output back to prove it is well formed.
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(out))

	root := doc.SelectElement("registrations")
	require.NotNil(t, root)
	assert.Equal(t, "2", root.SelectAttrValue("count", ""))

	entries := root.SelectElements("registration")
	require.Len(t, entries, 2)

	assert.Equal(t, "sess-1", entries[0].SelectAttrValue("session_id", ""))
	assert.Equal(t, "one@example.com", entries[0].SelectElement("email").Text())
	assert.Equal(t, "pending_challenge", entries[0].SelectElement("status").Text())

	// An empty session id should not produce an attribute at all.
	assert.Nil(t, entries[1].SelectAttr("session_id"))
	assert.Equal(t, "run-1", entries[1].SelectAttrValue("run_id", ""))
}

func TestExportXMLEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, ExportXML(nil, &buf))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(buf.String()))
	root := doc.SelectElement("registrations")
	require.NotNil(t, root)
	assert.Equal(t, "0", root.SelectAttrValue("count", ""))
	assert.Empty(t, root.SelectElements("registration"))
}

func TestExportJSON(t *testing.T) {
	t.Parallel()

	recs := []Record{testRecord("one@example.com")}

	var buf bytes.Buffer
	require.NoError(t, ExportJSON(recs, &buf))

	var decoded []Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, recs[0].Email, decoded[0].Email)
	assert.True(t, recs[0].Timestamp.Equal(decoded[0].Timestamp))
}

func TestExportJSONEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, ExportJSON(nil, &buf))
	assert.Equal(t, "[]\n", buf.String())
}

func TestRecordRowRoundTrip(t *testing.T) {
	t.Parallel()

	rec := testRecord("round@example.com")
	back, err := recordFromRow(rec.row())
	require.NoError(t, err)
	assert.Equal(t, rec, back)

	_, err = recordFromRow([]string{"just", "three", "fields"})
	assert.Error(t, err)
}
