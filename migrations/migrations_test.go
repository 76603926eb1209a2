package migrations

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitSchemaPresent(t *testing.T) {
	entries, err := FS.ReadDir(".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

// A reply's in_reply_to carries the id of the classified form that produced
// it, so the column must reference forms, not incoming_messages; the two
// tables grow on independent sequences.
func TestReplyColumnReferencesForms(t *testing.T) {
	b, err := FS.ReadFile("00001_init.sql")
	require.NoError(t, err)
	require.Regexp(t, `in_reply_to\s+BIGINT\s+REFERENCES forms \(id\)`, string(b))
}
