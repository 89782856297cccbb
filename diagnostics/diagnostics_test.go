package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorReplacesPriorReport(t *testing.T) {
	c := NewCollector()

	c.Report("/a.txt", Stats{Size: 10, Errors: []IssueEntry{{Severity: SeverityError, Message: "bad"}}})
	c.Report("/a.txt", Stats{Size: 20})

	got, ok := c.Last("/a.txt")
	require.True(t, ok)
	assert.Equal(t, 20, got.Size)
	assert.False(t, got.HasErrors(), "empty error list must clear prior diagnostics")
}

func TestNoOpDiscardsReports(t *testing.T) {
	var sink Sink = NoOp{}
	assert.NotPanics(t, func() {
		sink.Report("/a.txt", Stats{Size: 1})
	})
}
