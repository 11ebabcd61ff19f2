package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/scbe-labs/gate/pkg/audit"
	"github.com/scbe-labs/gate/pkg/contracts"
)

func TestPostgresDecisionLog_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	log := NewPostgresDecisionLog(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decisions")).
		WithArgs("evt-1", "REJECT", "intent", "route not in allow-list", "openai", "run-1", "dev-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = log.Record(ctx, audit.Event{
		ID:       "evt-1",
		Outcome:  audit.OutcomeReject,
		Reason:   contracts.ReasonIntent,
		Detail:   "route not in allow-list",
		Route:    "openai",
		RunID:    "run-1",
		DeviceID: "dev-1",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDecisionLog_RejectionsByRoute(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	log := NewPostgresDecisionLog(db)
	since := time.Unix(1700000000, 0)

	rows := sqlmock.NewRows([]string{"reason", "count"}).
		AddRow("intent", 4).
		AddRow("trajectory", 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT reason, COUNT(*) FROM decisions")).
		WithArgs("openai", "REJECT", since).
		WillReturnRows(rows)

	counts, err := log.RejectionsByRoute(context.Background(), "openai", since)
	assert.NoError(t, err)
	assert.Equal(t, 4, counts[contracts.ReasonIntent])
	assert.Equal(t, 1, counts[contracts.ReasonTrajectory])
	assert.NoError(t, mock.ExpectationsWereMet())
}
