package sqlxrepos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeded/core/program"
	"github.com/trezcool/feeded/core/survey"
	"github.com/trezcool/feeded/core/user"
)

func TestColumnsFor(t *testing.T) {
	tests := []struct {
		key  program.EmailKey
		want emailColumns
	}{
		{program.EmailKey{FormType: survey.Hot}, emailColumns{"hot_email_sent", "hot_email_sent_date", "hot_claimed_at"}},
		{program.EmailKey{FormType: survey.Cold, Reminder: true}, emailColumns{"cold_reminder_sent", "cold_reminder_sent_date", "cold_claimed_at"}},
	}
	for _, tc := range tests {
		got, err := columnsFor(tc.key)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
	_, err := columnsFor(program.EmailKey{FormType: "hot; DROP TABLE students"})
	assert.Error(t, err)
}

func TestCounterColumn(t *testing.T) {
	col, err := counterColumn(survey.Cold, program.CounterPending)
	require.NoError(t, err)
	assert.Equal(t, "cold_pending", col)

	_, err = counterColumn(survey.Hot, "sent = 0, hot_pending")
	assert.Error(t, err)
}

func TestRows_roundTrip(t *testing.T) {
	now := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)

	st := program.Student{
		ID:        "s1",
		ProgramID: "p1",
		UserID:    "u1",
		FirstName: "Marie",
		LastName:  "Curie",
		Email:     "marie@example.com",
		Cold:      program.EmailState{EmailSent: true, EmailSentDate: now, ClaimedAt: now},
		CreatedAt: now,
	}
	row := toStudentRow(st)
	assert.False(t, row.HotEmailSentDate.Valid)
	assert.True(t, row.ColdEmailSentDate.Valid)
	assert.Equal(t, st, row.student())

	p := program.Program{
		ID:            "p1",
		UserID:        "u1",
		Name:          "Management",
		StartDate:     now,
		EndDate:       now.AddDate(0, 0, 9),
		StudentCount:  2,
		HotResponses:  program.SurveyCounters{Sent: 2, Pending: 1},
		ColdResponses: program.SurveyCounters{Reminded: 1},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	assert.Equal(t, p, toProgramRow(p).program())

	usr := user.User{ID: "u1", Email: "acme@example.com", Name: "Acme", IsActive: true, CreatedAt: now, UpdatedAt: now}
	urow := toUserRow(usr)
	assert.False(t, urow.LastLogin.Valid)
	assert.False(t, urow.PasswordHash.Valid)
	assert.Equal(t, usr, urow.user())
}
