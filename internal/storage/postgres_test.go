package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
	"github.com/jonesrussell/north-cloud/rssnews/internal/storage"
)

var feedSourceColumns = []string{"id", "symbol", "company", "feed_url", "last_updated"}

func newPostgresRegistry(t *testing.T) (*storage.PostgresRegistry, sqlmock.Sqlmock, func()) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	db := sqlx.NewDb(mockDB, "postgres")

	return storage.NewPostgresRegistry(db), mock, func() { mockDB.Close() }
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRegistry_List(t *testing.T) {
	repo, mock, cleanup := newPostgresRegistry(t)
	defer cleanup()

	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .+ FROM feed_sources ORDER BY symbol").
		WillReturnRows(sqlmock.NewRows(feedSourceColumns).
			AddRow("ACME", "ACME", "Acme Corp", "http://feeds.example/ACME", updated).
			AddRow("BETA", "BETA", "", "http://feeds.example/BETA", nil))

	sources, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].LastUpdated == nil || !sources[0].LastUpdated.Equal(updated) {
		t.Errorf("expected LastUpdated=%v, got %v", updated, sources[0].LastUpdated)
	}
	if sources[1].LastUpdated != nil {
		t.Errorf("expected nil LastUpdated for BETA, got %v", sources[1].LastUpdated)
	}

	expectationsMet(t, mock)
}

func TestPostgresRegistry_Register(t *testing.T) {
	repo, mock, cleanup := newPostgresRegistry(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO feed_sources").
		WithArgs("ACME", "ACME", "Acme Corp", "http://feeds.example/ACME").
		WillReturnResult(sqlmock.NewResult(0, 1))

	src := &domain.FeedSource{Symbol: "ACME", Company: "Acme Corp", FeedURL: "http://feeds.example/ACME"}
	if err := repo.Register(context.Background(), src); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if src.ID != "ACME" {
		t.Errorf("expected ID=ACME, got %q", src.ID)
	}

	expectationsMet(t, mock)
}

func TestPostgresRegistry_RecordUpdate(t *testing.T) {
	repo, mock, cleanup := newPostgresRegistry(t)
	defer cleanup()

	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE feed_sources SET last_updated").
		WithArgs("ACME", updated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordUpdate(context.Background(), &domain.FeedSource{Symbol: "ACME"}, updated)
	if err != nil {
		t.Fatalf("RecordUpdate() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestPostgresRegistry_RecordUpdate_NotFound(t *testing.T) {
	repo, mock, cleanup := newPostgresRegistry(t)
	defer cleanup()

	mock.ExpectExec("UPDATE feed_sources").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordUpdate(context.Background(), &domain.FeedSource{Symbol: "NOPE"}, time.Now())
	if !errors.Is(err, storage.ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}

	expectationsMet(t, mock)
}

func TestPostgresRegistry_DropAllAndSchema(t *testing.T) {
	repo, mock, cleanup := newPostgresRegistry(t)
	defer cleanup()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS feed_sources").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM feed_sources").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := repo.DropAll(context.Background()); err != nil {
		t.Fatalf("DropAll() error = %v", err)
	}

	expectationsMet(t, mock)
}
