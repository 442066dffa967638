package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

func TestWriteUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "records")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := harvest.Record{
		ID: "org/model",
		Metadata: harvest.RepoMetadata{
			URL:   "https://hub.example.org/org/model",
			Owner: "org",
			Name:  "model",
		},
		History: []harvest.RevisionEntry{
			{Position: 0, CommitID: "c0", StatusCode: 200},
		},
		FetchedAt: now,
	}

	metadataJSON, err := json.Marshal(rec.Metadata)
	require.NoError(t, err)
	historyJSON, err := json.Marshal(rec.History)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO records").
		WithArgs("org/model", metadataJSON, historyJSON, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Write(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRejectsEmptyIdentifier(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "records")
	require.NoError(t, err)

	require.Error(t, store.Write(context.Background(), harvest.Record{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWritePropagatesExecFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "records")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO records").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = store.Write(context.Background(), harvest.Record{ID: "org/model"})
	require.ErrorContains(t, err, "upsert record")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadAllDecodesRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "records")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"id", "metadata", "history", "fetched_at"}).
		AddRow("org/model",
			[]byte(`{"url":"https://hub.example.org/org/model","owner":"org","name":"model","downloads":0,"likes":0}`),
			[]byte(`[{"position":0,"commit_id":"c0","status_code":200}]`),
			now).
		AddRow("org/gated",
			[]byte(`{"url":"https://hub.example.org/org/gated","owner":"org","name":"gated","downloads":0,"likes":0}`),
			[]byte(`[]`),
			now)

	mock.ExpectQuery("SELECT id, metadata, history, fetched_at FROM records").
		WillReturnRows(rows)

	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, harvest.ClassComplete, harvest.ClassifyStored("org/model", all))
	require.Equal(t, harvest.ClassIncomplete, harvest.ClassifyStored("org/gated", all))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecordStoreWithPool(mock, "records; DROP TABLE records")
	require.Error(t, err)

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "records", store.table)
}
