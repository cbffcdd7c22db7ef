package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "arabic")
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "arabic")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "")
	require.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestClassificationRoundTrip(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT qualifies FROM classifications").
		WithArgs("arabic", "v1").
		WillReturnRows(pgxmock.NewRows([]string{"qualifies"}).AddRow(true))
	mock.ExpectQuery("SELECT qualifies FROM classifications").
		WithArgs("arabic", "v2").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO classifications").
		WithArgs("arabic", "v2", false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM classifications`).
		WithArgs("arabic").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("DELETE FROM classifications").
		WithArgs("arabic").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	qualifies, found, err := store.Classification(ctx, "v1")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, qualifies)

	_, found, err = store.Classification(ctx, "v2")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.PutClassification(ctx, "v2", false))
	count, err := store.ClassificationCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, store.ResetClassifications(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassificationErrorIsReturned(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT qualifies FROM classifications").
		WithArgs("arabic", "v1").
		WillReturnError(errors.New("connection reset"))

	_, _, err := store.Classification(context.Background(), "v1")
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCursorLifecycle(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT token, profile FROM crawl_cursors").
		WithArgs("arabic").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO crawl_cursors").
		WithArgs("arabic", "CDIQAA", "saudi").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT token, profile FROM crawl_cursors").
		WithArgs("arabic").
		WillReturnRows(pgxmock.NewRows([]string{"token", "profile"}).AddRow("CDIQAA", "saudi"))
	mock.ExpectExec("DELETE FROM crawl_cursors").
		WithArgs("arabic").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	cursor, err := store.Cursor(ctx)
	require.NoError(t, err)
	require.True(t, cursor.IsStart())

	require.NoError(t, store.PutCursor(ctx, crawler.Cursor{Token: "CDIQAA", Profile: "saudi"}))
	cursor, err = store.Cursor(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.Cursor{Token: "CDIQAA", Profile: "saudi"}, cursor)
	require.NoError(t, store.ResetCursor(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResults(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)
	ctx := context.Background()
	published := time.Unix(1700000000, 0).UTC()

	entry := crawler.ResultEntry{
		ID:           "v1",
		Title:        "حلقة",
		ChannelTitle: "قناة",
		PublishedAt:  published,
		URL:          crawler.WatchURLPrefix + "v1",
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO results").
		WithArgs("arabic", entry.ID, entry.Title, entry.ChannelTitle, entry.PublishedAt, entry.URL).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT video_id, title, channel_title, published_at, url").
		WithArgs("arabic").
		WillReturnRows(pgxmock.NewRows([]string{"video_id", "title", "channel_title", "published_at", "url"}).
			AddRow(entry.ID, entry.Title, entry.ChannelTitle, entry.PublishedAt, entry.URL))

	require.NoError(t, store.AppendResults(ctx, entry))
	results, err := store.LoadResults(ctx)
	require.NoError(t, err)
	require.Equal(t, []crawler.ResultEntry{entry}, results)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendResultsRollsBackOnError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO results").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.AppendResults(context.Background(), crawler.ResultEntry{ID: "v1"})
	require.ErrorContains(t, err, "insert result v1")
	require.NoError(t, mock.ExpectationsWereMet())
	require.NoError(t, store.AppendResults(context.Background()))
}

func TestMigrate(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS classifications").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
