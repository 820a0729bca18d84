package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/udisondev/livemap/internal/journal"
)

// LiveSuite: базовый suite, хост с журналом сессии и подключающиеся редакторы.
// Журнал открывается один раз на suite, каждый тест получает свою сессию.
type LiveSuite struct {
	suite.Suite
	ctx   context.Context
	open  func(t *testing.T) journal.Store
	store journal.Store
}

// SetupSuite выполняется один раз перед всеми тестами в suite.
func (s *LiveSuite) SetupSuite() {
	s.ctx = context.Background()
	s.store = s.open(s.T())
}

// TearDownSuite выполняется один раз после всех тестов в suite.
func (s *LiveSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

// TestLiveSuiteSQLite runs the suite against a journal file.
func TestLiveSuiteSQLite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	suite.Run(t, &LiveSuite{open: func(t *testing.T) journal.Store {
		store, err := journal.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
		if err != nil {
			t.Fatalf("opening sqlite journal: %v", err)
		}
		return store
	}})
}

// TestLiveSuitePostgres runs the suite against an isolated PostgreSQL schema.
func TestLiveSuitePostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	if sharedPGBaseDSN == "" {
		t.Skip("no PostgreSQL available")
	}

	suite.Run(t, &LiveSuite{open: func(t *testing.T) journal.Store {
		store, err := journal.OpenPostgres(context.Background(), acquireSchema(t))
		if err != nil {
			t.Fatalf("opening postgres journal: %v", err)
		}
		return store
	}})
}
