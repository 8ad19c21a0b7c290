package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/techzone/intervention-manager/models"
	"github.com/techzone/intervention-manager/testutil"
	"gorm.io/gorm"
)

type InterventionServiceSuite struct {
	suite.Suite
	db      *gorm.DB
	svc     *InterventionService
	images  *MockImageService
	ctx     context.Context
	now     time.Time
	admin   Actor
	tech    Actor
	other   Actor
	techID  uint
	client  *models.Client
	retired *models.User
}

func TestInterventionServiceSuite(t *testing.T) {
	suite.Run(t, new(InterventionServiceSuite))
}

func (s *InterventionServiceSuite) SetupTest() {
	t := s.T()
	s.db = testutil.NewTestDB(t)
	s.images = NewMockImageService()
	s.svc = NewInterventionService(s.db, s.images)
	s.now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	s.svc.now = func() time.Time { return s.now }
	s.ctx = context.Background()

	admin := testutil.CreateAdmin(t, s.db)
	tech := testutil.CreateTechnician(t, s.db, "Jean Tech")
	other := testutil.CreateTechnician(t, s.db, "Marie Tech")
	s.retired = testutil.CreateTechnician(t, s.db, "Old Tech")
	testutil.Deactivate(t, s.db, s.retired)

	s.admin = ActorFromUser(admin)
	s.tech = ActorFromUser(tech)
	s.other = ActorFromUser(other)
	s.techID = tech.ID
	s.client = testutil.CreateClient(t, s.db, "Acme")
}

func (s *InterventionServiceSuite) create(title string) *models.Intervention {
	intervention, err := s.svc.Create(s.ctx, s.admin, InterventionInput{
		Title:       title,
		Description: "Something is broken",
		ClientID:    s.client.ID,
	})
	s.Require().NoError(err)
	return intervention
}

func (s *InterventionServiceSuite) assigned(title string) *models.Intervention {
	intervention := s.create(title)
	s.Require().NoError(s.svc.AssignTechnician(s.ctx, s.admin, intervention.ID, s.techID))
	return intervention
}

func (s *InterventionServiceSuite) reload(id uint) *models.Intervention {
	return testutil.LoadIntervention(s.T(), s.db, id)
}

func (s *InterventionServiceSuite) TestCreate() {
	intervention, err := s.svc.Create(s.ctx, s.admin, InterventionInput{
		Title:       "  Fix printer ",
		Description: "Paper jam",
		ClientID:    s.client.ID,
		Priority:    models.PriorityHigh,
		ScheduledAt: "2025-03-20T14:00",
	})
	s.Require().NoError(err)

	stored := s.reload(intervention.ID)
	s.Equal("Fix printer", stored.Title)
	s.Equal(models.StatusPending, stored.Status)
	s.Equal(models.PriorityHigh, stored.Priority)
	s.Nil(stored.TechnicianID)
	s.Nil(stored.StartedAt)
	s.Require().NotNil(stored.ScheduledAt)
	s.Equal(20, stored.ScheduledAt.Day())
}

func (s *InterventionServiceSuite) TestCreateDefaultsPriority() {
	intervention := s.create("Default priority")
	s.Equal(models.PriorityNormal, s.reload(intervention.ID).Priority)
}

func (s *InterventionServiceSuite) TestCreateValidation() {
	valid := InterventionInput{Title: "T", Description: "D", ClientID: s.client.ID}

	tests := []struct {
		name      string
		mutate    func(in *InterventionInput)
		wantField string
	}{
		{"missing title", func(in *InterventionInput) { in.Title = "  " }, "title"},
		{"missing description", func(in *InterventionInput) { in.Description = "" }, "description"},
		{"missing client", func(in *InterventionInput) { in.ClientID = 0 }, "client_id"},
		{"unknown client", func(in *InterventionInput) { in.ClientID = 9999 }, "client_id"},
		{"unknown priority", func(in *InterventionInput) { in.Priority = "critical" }, "priority"},
		{"bad schedule", func(in *InterventionInput) { in.ScheduledAt = "next tuesday" }, "scheduled_at"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			input := valid
			tt.mutate(&input)

			_, err := s.svc.Create(s.ctx, s.admin, input)
			var validationErr *ValidationError
			s.Require().True(errors.As(err, &validationErr), "expected ValidationError, got %v", err)
			s.Equal(tt.wantField, validationErr.Field)
		})
	}

	var count int64
	s.db.Model(&models.Intervention{}).Count(&count)
	s.Zero(count)
}

func (s *InterventionServiceSuite) TestAdminCommandsRequireAdmin() {
	intervention := s.create("Guarded")

	_, err := s.svc.Create(s.ctx, s.tech, InterventionInput{Title: "T", Description: "D", ClientID: s.client.ID})
	s.ErrorIs(err, ErrForbidden)
	s.ErrorIs(s.svc.AssignTechnician(s.ctx, s.tech, intervention.ID, s.techID), ErrForbidden)
	s.ErrorIs(s.svc.Cancel(s.ctx, s.tech, intervention.ID), ErrForbidden)
	s.ErrorIs(s.svc.Cancel(s.ctx, Actor{}, intervention.ID), ErrForbidden)

	s.Equal(models.StatusPending, s.reload(intervention.ID).Status)
}

func (s *InterventionServiceSuite) TestTechnicianCommandsRequireTechnician() {
	intervention := s.assigned("Guarded")

	s.ErrorIs(s.svc.Start(s.ctx, s.admin, intervention.ID), ErrForbidden)
	s.ErrorIs(s.svc.Complete(s.ctx, s.admin, intervention.ID, Outcome{}), ErrForbidden)
	s.ErrorIs(s.svc.UpdateNotes(s.ctx, s.admin, intervention.ID, Outcome{}), ErrForbidden)
}

func (s *InterventionServiceSuite) TestAssignTechnician() {
	intervention := s.create("Assign me")

	s.Require().NoError(s.svc.AssignTechnician(s.ctx, s.admin, intervention.ID, s.techID))

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusInProgress, stored.Status)
	s.Require().NotNil(stored.TechnicianID)
	s.Equal(s.techID, *stored.TechnicianID)
	s.Nil(stored.StartedAt)
}

func (s *InterventionServiceSuite) TestAssignTechnicianRejectsIneligibleUsers() {
	intervention := s.create("Assign me")

	tests := []struct {
		name   string
		userID uint
	}{
		{"no technician", 0},
		{"inactive technician", s.retired.ID},
		{"admin is not a technician", s.admin.ID},
		{"unknown user", 9999},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.svc.AssignTechnician(s.ctx, s.admin, intervention.ID, tt.userID)
			var validationErr *ValidationError
			s.Require().True(errors.As(err, &validationErr))
			s.Equal("technician_id", validationErr.Field)
		})
	}

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusPending, stored.Status)
	s.Nil(stored.TechnicianID)
}

func (s *InterventionServiceSuite) TestAssignTechnicianDeactivatedBeforeWrite() {
	intervention := s.create("Assign me")

	// Deactivate the technician inside the update transaction, after any
	// check the service could have run beforehand
	deactivated := false
	err := s.db.Callback().Update().Before("gorm:update").Register("test:deactivate_technician", func(tx *gorm.DB) {
		if deactivated || tx.Statement.Table != "interventions" {
			return
		}
		deactivated = true
		tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE users SET active = ? WHERE id = ?", false, s.techID)
	})
	s.Require().NoError(err)

	err = s.svc.AssignTechnician(s.ctx, s.admin, intervention.ID, s.techID)
	var validationErr *ValidationError
	s.Require().True(errors.As(err, &validationErr), "got %v", err)
	s.Equal("technician_id", validationErr.Field)

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusPending, stored.Status)
	s.Nil(stored.TechnicianID)
}

func (s *InterventionServiceSuite) TestCheckTechnician() {
	s.NoError(s.svc.CheckTechnician(s.ctx, s.admin, s.techID))
	s.Error(s.svc.CheckTechnician(s.ctx, s.admin, s.retired.ID))
	s.Error(s.svc.CheckTechnician(s.ctx, s.admin, 0))
	s.ErrorIs(s.svc.CheckTechnician(s.ctx, s.tech, s.techID), ErrForbidden)
}

func (s *InterventionServiceSuite) TestAssignTechnicianMissingIntervention() {
	s.ErrorIs(s.svc.AssignTechnician(s.ctx, s.admin, 9999, s.techID), ErrNotFound)
}

func (s *InterventionServiceSuite) TestAssignTechnicianOnTerminalIsNoop() {
	intervention := s.create("Closed")
	s.Require().NoError(s.svc.Cancel(s.ctx, s.admin, intervention.ID))

	s.NoError(s.svc.AssignTechnician(s.ctx, s.admin, intervention.ID, s.techID))

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusCancelled, stored.Status)
	s.Nil(stored.TechnicianID)
}

func (s *InterventionServiceSuite) TestCancelIsIdempotent() {
	intervention := s.create("Cancel me")

	s.Require().NoError(s.svc.Cancel(s.ctx, s.admin, intervention.ID))
	first := s.reload(intervention.ID)

	s.now = s.now.Add(time.Hour)
	s.Require().NoError(s.svc.Cancel(s.ctx, s.admin, intervention.ID))
	second := s.reload(intervention.ID)

	s.Equal(models.StatusCancelled, second.Status)
	s.True(first.UpdatedAt.Equal(second.UpdatedAt), "second cancel must not write")
}

func (s *InterventionServiceSuite) TestCancelDoneIsNoop() {
	intervention := s.assigned("Done")
	s.Require().NoError(s.svc.Complete(s.ctx, s.tech, intervention.ID, Outcome{}))

	s.NoError(s.svc.Cancel(s.ctx, s.admin, intervention.ID))
	s.Equal(models.StatusDone, s.reload(intervention.ID).Status)
}

func (s *InterventionServiceSuite) TestCancelMissing() {
	s.ErrorIs(s.svc.Cancel(s.ctx, s.admin, 9999), ErrNotFound)
}

func (s *InterventionServiceSuite) TestStartRecordsLatestStartTime() {
	intervention := s.assigned("Start me")

	s.Require().NoError(s.svc.Start(s.ctx, s.tech, intervention.ID))
	s.Require().NotNil(s.reload(intervention.ID).StartedAt)

	s.now = s.now.Add(2 * time.Hour)
	s.Require().NoError(s.svc.Start(s.ctx, s.tech, intervention.ID))

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusInProgress, stored.Status)
	s.Require().NotNil(stored.StartedAt)
	s.True(stored.StartedAt.Equal(s.now), "started_at is %v, want %v", stored.StartedAt, s.now)
}

func (s *InterventionServiceSuite) TestLifecycleIsMonotonic() {
	intervention := s.assigned("Fix printer")

	s.Require().NoError(s.svc.Start(s.ctx, s.tech, intervention.ID))
	s.Require().NoError(s.svc.Complete(s.ctx, s.tech, intervention.ID, Outcome{
		ProblemFound:  "Worn roller",
		WorkPerformed: "Replaced roller",
		Comments:      "Client happy",
	}))

	done := s.reload(intervention.ID)
	s.Equal(models.StatusDone, done.Status)
	s.Require().NotNil(done.FinishedAt)
	s.Require().NotNil(done.WorkPerformed)
	s.Equal("Replaced roller", *done.WorkPerformed)

	// Nothing moves a done intervention back
	s.now = s.now.Add(time.Hour)
	s.NoError(s.svc.Start(s.ctx, s.tech, intervention.ID))
	s.NoError(s.svc.Cancel(s.ctx, s.admin, intervention.ID))

	after := s.reload(intervention.ID)
	s.Equal(models.StatusDone, after.Status)
	s.True(done.FinishedAt.Equal(*after.FinishedAt))
	s.True(done.StartedAt.Equal(*after.StartedAt))
}

func (s *InterventionServiceSuite) TestCompleteOnDoneStoresCorrectedOutcome() {
	intervention := s.assigned("Fix printer")
	s.Require().NoError(s.svc.Complete(s.ctx, s.tech, intervention.ID, Outcome{ProblemFound: "first"}))
	done := s.reload(intervention.ID)

	s.now = s.now.Add(time.Hour)
	s.Require().NoError(s.svc.Complete(s.ctx, s.tech, intervention.ID, Outcome{ProblemFound: "corrected"}))

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusDone, stored.Status)
	s.True(done.FinishedAt.Equal(*stored.FinishedAt), "finished_at must not move")
	s.Require().NotNil(stored.ProblemFound)
	s.Equal("corrected", *stored.ProblemFound)
}

func (s *InterventionServiceSuite) TestCompleteAfterCancelKeepsReport() {
	intervention := s.assigned("Cancelled while on site")
	s.Require().NoError(s.svc.Cancel(s.ctx, s.admin, intervention.ID))

	s.Require().NoError(s.svc.Complete(s.ctx, s.tech, intervention.ID, Outcome{
		ProblemFound:  "Loose cable",
		WorkPerformed: "Reseated it",
		Comments:      "Cancelled while I was there",
	}))

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusCancelled, stored.Status)
	s.Nil(stored.FinishedAt)
	s.Require().NotNil(stored.WorkPerformed)
	s.Equal("Reseated it", *stored.WorkPerformed)
	s.Require().NotNil(stored.Comments)
	s.Equal("Cancelled while I was there", *stored.Comments)
}

func (s *InterventionServiceSuite) TestCompleteDirectlyFromAssigned() {
	intervention := s.assigned("Quick fix")

	s.Require().NoError(s.svc.Complete(s.ctx, s.tech, intervention.ID, Outcome{}))

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusDone, stored.Status)
	s.Nil(stored.StartedAt)
	s.NotNil(stored.FinishedAt)
}

func (s *InterventionServiceSuite) TestOwnershipGuardYieldsNotFound() {
	intervention := s.assigned("Not yours")

	s.ErrorIs(s.svc.Start(s.ctx, s.other, intervention.ID), ErrNotFound)
	s.ErrorIs(s.svc.Complete(s.ctx, s.other, intervention.ID, Outcome{}), ErrNotFound)
	s.ErrorIs(s.svc.UpdateNotes(s.ctx, s.other, intervention.ID, Outcome{Comments: "x"}), ErrNotFound)
	s.ErrorIs(s.svc.AttachPhoto(s.ctx, s.other, intervention.ID, testutil.FileHeader(s.T(), "p.png", testutil.PNG)), ErrNotFound)
	_, err := s.svc.Get(s.ctx, s.other, intervention.ID)
	s.ErrorIs(err, ErrNotFound)

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusInProgress, stored.Status)
	s.Nil(stored.StartedAt)
	s.Nil(stored.Comments)
	s.Nil(stored.PhotoKey)
	s.Zero(s.images.Count())
}

func (s *InterventionServiceSuite) TestOwnershipGuardOnUnassigned() {
	intervention := s.create("Unassigned")
	s.ErrorIs(s.svc.Start(s.ctx, s.tech, intervention.ID), ErrNotFound)
}

func (s *InterventionServiceSuite) TestUpdateNotesAtAnyStatus() {
	intervention := s.assigned("Notes")
	s.Require().NoError(s.svc.Complete(s.ctx, s.tech, intervention.ID, Outcome{Comments: "first"}))

	s.Require().NoError(s.svc.UpdateNotes(s.ctx, s.tech, intervention.ID, Outcome{
		ProblemFound: "Loose cable",
		Comments:     "second",
	}))

	stored := s.reload(intervention.ID)
	s.Equal(models.StatusDone, stored.Status)
	s.Equal("second", *stored.Comments)
	s.Equal("Loose cable", *stored.ProblemFound)
}

func (s *InterventionServiceSuite) TestUpdateNotesMissing() {
	s.ErrorIs(s.svc.UpdateNotes(s.ctx, s.tech, 9999, Outcome{}), ErrNotFound)
}

func (s *InterventionServiceSuite) TestAttachPhotoReplacesPrevious() {
	intervention := s.assigned("Photo")

	s.Require().NoError(s.svc.AttachPhoto(s.ctx, s.tech, intervention.ID, testutil.FileHeader(s.T(), "a.png", testutil.PNG)))
	first := *s.reload(intervention.ID).PhotoKey
	s.True(s.images.ImageExists(first))

	s.Require().NoError(s.svc.AttachPhoto(s.ctx, s.tech, intervention.ID, testutil.FileHeader(s.T(), "b.png", testutil.PNG)))
	second := *s.reload(intervention.ID).PhotoKey

	s.NotEqual(first, second)
	s.False(s.images.ImageExists(first))
	s.True(s.images.ImageExists(second))
	s.Equal(1, s.images.Count())

	loaded, err := s.svc.Get(s.ctx, s.tech, intervention.ID)
	s.Require().NoError(err)
	s.Equal("https://images.test/"+second, loaded.PhotoURL)
}

func (s *InterventionServiceSuite) TestAttachPhotoRejectsNonPNG() {
	intervention := s.assigned("Photo")

	err := s.svc.AttachPhoto(s.ctx, s.tech, intervention.ID, testutil.FileHeader(s.T(), "a.jpg", []byte("jpeg")))
	var validationErr *ValidationError
	s.Require().True(errors.As(err, &validationErr))
	s.Equal("photo", validationErr.Field)
	s.Nil(s.reload(intervention.ID).PhotoKey)
}

func (s *InterventionServiceSuite) TestAttachPhotoStorageFailure() {
	intervention := s.assigned("Photo")
	s.images.UploadErr = errors.New("bucket unavailable")

	err := s.svc.AttachPhoto(s.ctx, s.tech, intervention.ID, testutil.FileHeader(s.T(), "a.png", testutil.PNG))
	s.Error(err)
	var validationErr *ValidationError
	s.False(errors.As(err, &validationErr))
}

func (s *InterventionServiceSuite) TestGetAndList() {
	mine := s.assigned("Mine")
	s.now = s.now.Add(time.Minute)
	s.create("Unassigned")
	s.now = s.now.Add(time.Minute)
	theirs := s.create("Theirs")
	s.Require().NoError(s.svc.AssignTechnician(s.ctx, s.admin, theirs.ID, s.other.ID))

	all, err := s.svc.List(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Len(all, 3)
	s.Equal("Theirs", all[0].Title)
	s.Equal("Acme", all[0].Client.Name)
	s.Require().NotNil(all[0].Technician)
	s.Equal("Marie Tech", all[0].Technician.Name)

	own, err := s.svc.List(s.ctx, s.tech)
	s.Require().NoError(err)
	s.Require().Len(own, 1)
	s.Equal(mine.ID, own[0].ID)

	loaded, err := s.svc.Get(s.ctx, s.admin, theirs.ID)
	s.Require().NoError(err)
	s.Equal("Acme", loaded.Client.Name)

	_, err = s.svc.Get(s.ctx, s.admin, 9999)
	s.ErrorIs(err, ErrNotFound)

	_, err = s.svc.List(s.ctx, Actor{ID: 1, Role: "guest"})
	s.ErrorIs(err, ErrForbidden)
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewInterventionService(db, NewMockImageService())
	admin := ActorFromUser(testutil.CreateAdmin(t, db))
	tech := testutil.CreateTechnician(t, db, "Jean Tech")
	client := testutil.CreateClient(t, db, "Acme")
	intervention := testutil.CreateIntervention(t, db, "Race", client.ID, testutil.UintPtr(tech.ID), models.StatusInProgress)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				errs[i] = svc.Cancel(context.Background(), admin, intervention.ID)
			} else {
				errs[i] = svc.Complete(context.Background(), ActorFromUser(tech), intervention.ID, Outcome{Comments: "done"})
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	stored := testutil.LoadIntervention(t, db, intervention.ID)
	require.True(t, models.IsTerminalStatus(stored.Status))
	if stored.Status == models.StatusCancelled {
		assert.Nil(t, stored.FinishedAt)
	} else {
		assert.NotNil(t, stored.FinishedAt)
	}
}
