package repository

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"testing"
	"time"

	"clinicnotify/internal/database"
	"clinicnotify/internal/models"
	"clinicnotify/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

func seedAppointment(t *testing.T, db *gorm.DB, at time.Time, status models.AppointmentStatus) models.Appointment {
	t.Helper()
	patient := models.Patient{UserID: "patient-user", FullName: "Ada Lovelace", Phone: "+15550001", Email: "ada@example.com"}
	require.NoError(t, db.Create(&patient).Error)
	appt := models.Appointment{
		PatientID:   patient.ID,
		UserID:      "provider-user",
		ScheduledAt: at,
		Type:        "checkup",
		Status:      status,
	}
	require.NoError(t, db.Create(&appt).Error)
	return appt
}

func reminder(userID, key string, scheduledFor time.Time) *models.Notification {
	return &models.Notification{
		UserID:       userID,
		Type:         models.NotificationTypeAppointmentReminder,
		Title:        "Appointment reminder",
		Message:      "See you soon",
		ScheduledFor: scheduledFor,
		Data:         datatypes.NewJSONType(models.ReminderData{AppointmentID: "a1"}),
		ReminderKey:  &key,
	}
}

func TestFindAwaitingReminders(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewAppointmentRepository(db)
	ctx := context.Background()

	inWindow := seedAppointment(t, db, baseTime.Add(6*time.Hour), models.AppointmentScheduled)
	seedAppointment(t, db, baseTime.Add(25*time.Hour), models.AppointmentScheduled)
	seedAppointment(t, db, baseTime.Add(2*time.Hour), models.AppointmentScheduled)
	seedAppointment(t, db, baseTime.Add(10*time.Hour), models.AppointmentCancelled)
	linked := seedAppointment(t, db, baseTime.Add(12*time.Hour), models.AppointmentScheduled)
	require.NoError(t, db.Model(&linked).Updates(map[string]interface{}{
		"patient_reminder_id":  "r1",
		"provider_reminder_id": "r2",
	}).Error)
	halfLinked := seedAppointment(t, db, baseTime.Add(20*time.Hour), models.AppointmentScheduled)
	require.NoError(t, db.Model(&halfLinked).Update("patient_reminder_id", "r3").Error)

	got, err := repo.FindAwaitingReminders(ctx, baseTime.Add(6*time.Hour), baseTime.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, inWindow.ID, got[0].ID)
	assert.Equal(t, "Ada Lovelace", got[0].Patient.FullName)
	assert.Equal(t, halfLinked.ID, got[1].ID)
}

func TestLinkReminderOnlyOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewAppointmentRepository(db)
	ctx := context.Background()
	appt := seedAppointment(t, db, baseTime.Add(8*time.Hour), models.AppointmentScheduled)

	ok, err := repo.LinkReminder(ctx, appt.ID, models.AudiencePatient, "first")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.LinkReminder(ctx, appt.ID, models.AudiencePatient, "second")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.LinkReminder(ctx, appt.ID, models.Audience("family"), "x")
	assert.Error(t, err)

	stored, err := repo.GetWithPatient(ctx, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PatientReminderID)
	assert.Equal(t, "first", *stored.PatientReminderID)
	assert.Nil(t, stored.ProviderReminderID)

	_, err = repo.GetWithPatient(ctx, "missing")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCreateReminderDeduplicates(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	id, created, err := repo.CreateReminder(ctx, reminder("u1", "a1:patient", baseTime))
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.CreateReminder(ctx, reminder("u1", "a1:patient", baseTime))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, _, err = repo.CreateReminder(ctx, &models.Notification{UserID: "u1"})
	assert.Error(t, err)
}

func TestDueSentAndReadLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	pastID, _, err := repo.CreateReminder(ctx, reminder("u1", "a1:patient", baseTime.Add(-time.Minute)))
	require.NoError(t, err)
	_, _, err = repo.CreateReminder(ctx, reminder("u1", "a2:patient", baseTime.Add(time.Hour)))
	require.NoError(t, err)

	due, err := repo.ListDue(ctx, baseTime, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, pastID, due[0].ID)
	assert.Equal(t, "a1", due[0].Data.Data().AppointmentID)

	sentAt := baseTime.Add(time.Second)
	n, err := repo.MarkSent(ctx, []string{pastID}, sentAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	due, err = repo.ListDue(ctx, baseTime, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	pending, err := repo.ListSentSince(ctx, "u1", baseTime, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].SentAt)
	assert.True(t, pending[0].SentAt.Equal(sentAt))

	pending, err = repo.ListSentSince(ctx, "u1", sentAt, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "since is exclusive")

	require.NoError(t, repo.MarkRead(ctx, pastID, "u1", sentAt))
	require.NoError(t, repo.MarkRead(ctx, pastID, "u1", sentAt.Add(time.Hour)))
	assert.ErrorIs(t, repo.MarkRead(ctx, pastID, "someone-else", sentAt), ErrNotificationNotFound)

	pending, err = repo.ListSentSince(ctx, "u1", baseTime, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListSentSinceOrdersTiesByID(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, _, err := repo.CreateReminder(ctx, reminder("u1", fmt.Sprintf("a%d:patient", i), baseTime))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := repo.MarkSent(ctx, ids, baseTime)
	require.NoError(t, err)
	sort.Strings(ids)

	first, err := repo.ListSentSince(ctx, "u1", baseTime.Add(-time.Second), 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	for i, n := range first {
		assert.Equal(t, ids[i], n.ID)
		require.NoError(t, repo.MarkRead(ctx, n.ID, "u1", baseTime))
	}

	rest, err := repo.ListSentSince(ctx, "u1", baseTime.Add(-time.Second), 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, ids[3], rest[0].ID)
	assert.Equal(t, ids[4], rest[1].ID)
}

func TestSubscriptionUpsertAndDelete(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	original := &models.PushSubscription{UserID: "u1", Endpoint: "https://push.example/a", P256dh: "k1", Auth: "s1"}
	require.NoError(t, repo.Upsert(ctx, original))
	require.NotEmpty(t, original.ID)
	renewed := &models.PushSubscription{UserID: "u1", Endpoint: "https://push.example/a", P256dh: "k2", Auth: "s2", UserAgent: "Firefox"}
	require.NoError(t, repo.Upsert(ctx, renewed))
	assert.Equal(t, original.ID, renewed.ID, "upsert reports the stored row")
	assert.Equal(t, "k2", renewed.P256dh)
	require.NoError(t, repo.Upsert(ctx, &models.PushSubscription{UserID: "u1", Endpoint: "https://push.example/b", P256dh: "k3", Auth: "s3"}))
	require.NoError(t, repo.Upsert(ctx, &models.PushSubscription{UserID: "u2", Endpoint: "https://push.example/a", P256dh: "k4", Auth: "s4"}))

	subs, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	byEndpoint := map[string]models.PushSubscription{}
	for _, s := range subs {
		byEndpoint[s.Endpoint] = s
	}
	assert.Equal(t, "k2", byEndpoint["https://push.example/a"].P256dh)
	assert.Equal(t, "Firefox", byEndpoint["https://push.example/a"].UserAgent)

	n, err := repo.Delete(ctx, "u1", "https://push.example/a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.Delete(ctx, "u1", "https://push.example/a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = repo.DeleteEndpoints(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	others, err := repo.ListByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestDeleteEndpointsIssuesSingleStatement(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	cfg := database.GormConfig(logger.Discard)
	cfg.SkipDefaultTransaction = true
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), cfg)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "push_subscription" WHERE user_id = $1 AND endpoint IN ($2,$3)`)).
		WithArgs("u1", "https://push.example/a", "https://push.example/b").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewSubscriptionRepository(db).DeleteEndpoints(context.Background(), "u1", []string{"https://push.example/a", "https://push.example/b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueWrapsDatabaseErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), database.GormConfig(logger.Discard))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "notification" WHERE sent_at IS NULL`)).
		WillReturnError(assert.AnError)

	_, err = NewNotificationRepository(db).ListDue(context.Background(), baseTime, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
