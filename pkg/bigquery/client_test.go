package bigquery

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type ledgerSample struct {
	ID        string    `bigquery:"id"`
	Amount    string    `bigquery:"amount"`
	CreatedAt time.Time `bigquery:"created_at"`
}

func (r ledgerSample) InsertID() string { return r.ID }

type plainSample struct {
	Name string `bigquery:"name"`
}

func TestSaversCarryInsertIDs(t *testing.T) {
	out := savers([]any{ledgerSample{ID: "tx-1"}, plainSample{Name: "x"}})
	require.Len(t, out, 2)
	require.Equal(t, "tx-1", out[0].InsertID)
	require.Empty(t, out[1].InsertID)
}

func TestTableMetadataPartitionsOnCreatedAt(t *testing.T) {
	meta, err := tableMetadata(ledgerSample{})
	require.NoError(t, err)
	require.Len(t, meta.Schema, 3)
	require.NotNil(t, meta.TimePartitioning)
	require.Equal(t, "created_at", meta.TimePartitioning.Field)
	require.Equal(t, bigquery.DayPartitioningType, meta.TimePartitioning.Type)

	meta, err = tableMetadata(plainSample{})
	require.NoError(t, err)
	require.Nil(t, meta.TimePartitioning)
}

func TestAPIErrorClassification(t *testing.T) {
	notFound := fmt.Errorf("lookup: %w", &googleapi.Error{Code: http.StatusNotFound})
	require.True(t, isNotFound(notFound))
	require.False(t, isConflict(notFound))
	require.True(t, isConflict(&googleapi.Error{Code: http.StatusConflict}))
}
