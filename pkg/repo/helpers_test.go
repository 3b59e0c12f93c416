package repo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinWhere(t *testing.T) {
	require.Equal(t, "", JoinWhere())
	require.Equal(t, "WHERE a = $1", JoinWhere("a = $1"))
	require.Equal(t, "WHERE a = $1 AND b = $2", JoinWhere("a = $1", "", "b = $2"))
}

func TestFormatLimitOffset(t *testing.T) {
	require.Equal(t, "", FormatLimitOffset(0, 0))
	require.Equal(t, "LIMIT 10", FormatLimitOffset(10, 0))
	require.Equal(t, "OFFSET 5", FormatLimitOffset(0, 5))
	require.Equal(t, "LIMIT 10 OFFSET 5", FormatLimitOffset(10, 5))
}

func TestJoin(t *testing.T) {
	require.Equal(t, "SELECT 1 WHERE x LIMIT 1", Join("SELECT 1", "", "WHERE x", "LIMIT 1"))
}
