package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/trailhawk/internal/persist"
	"github.com/telhawk-systems/trailhawk/internal/store"
)

func TestTable_Render(t *testing.T) {
	tbl := newTable("ID", "NAME")
	tbl.addRow("1", "short")
	tbl.addRow("22", "a longer name")

	var buf bytes.Buffer
	tbl.render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID  NAME", lines[0])
	assert.Equal(t, "--  -------------", lines[1])
	assert.Equal(t, "1   short", lines[2])
	assert.Equal(t, "22  a longer name", lines[3])
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []string{formatTable, formatJSON, formatYAML} {
		assert.NoError(t, validateFormat(f))
	}
	assert.Error(t, validateFormat("csv"))
}

func TestPrintReports(t *testing.T) {
	reports := []batchReport{
		{
			Input: "a.json",
			Outcomes: []persist.Outcome{
				{EventID: "e1", EventTime: "t1", AccessKeyID: "k", User: "u", Status: persist.StatusSuccess,
					Response: &store.Response{Backend: "memory", Key: "e1|t1"}},
				{EventID: "e2", EventTime: "t2", AccessKeyID: "none", User: "none", Status: persist.StatusFailure,
					Cause: "throttled"},
			},
		},
		{Input: "b.txt", Error: "decode: unrecognized framing"},
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printReports(&buf, formatTable, reports))
		out := buf.String()
		assert.Contains(t, out, "memory:e1|t1")
		assert.Contains(t, out, "throttled")
		assert.Contains(t, out, "rejected")
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printReports(&buf, formatYAML, reports))
		out := buf.String()
		assert.Contains(t, out, "- input: a.json")
		assert.Contains(t, out, "event_id: e1")
		assert.Contains(t, out, "cause: throttled")
		assert.NotContains(t, out, "err:")
	})
}
