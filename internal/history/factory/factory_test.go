package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSNs(t *testing.T) {
	for _, dsn := range []string{":memory:", "sqlite://:memory:"} {
		sink, err := NewSinkFromDSN(dsn)
		require.NoError(t, err, dsn)
		require.NotNil(t, sink)
	}
}

func TestOpenSearchDSN(t *testing.T) {
	sink, err := NewSinkFromDSN("opensearch://localhost:9200/cluster-events")
	require.NoError(t, err)
	require.NotNil(t, sink)
}

func TestRejectedDSNs(t *testing.T) {
	for _, dsn := range []string{"", "   ", "mysql://localhost/db", "clickhouse://"} {
		_, err := NewSinkFromDSN(dsn)
		assert.Error(t, err, dsn)
	}
}
