package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/repository"
	"github.com/noah-isme/readalong-api/pkg/ai"
)

const (
	testParentID  uint = 7
	otherParentID uint = 8
)

var storyParts = []string{
	"Sam found some wood in the garage. He wanted to build a little boat. Grandpa gave him a hammer and nails. They worked together all afternoon.",
	"The next morning Sam painted the boat bright red. His dog Max barked at the wet paint. Sam carried the boat down to the pond. The water was calm and cold.",
	"Sam set the boat on the water and gave it a push. The wind filled the paper sail. The boat sailed across the pond. Grandpa cheered from the bench.",
}

func storyJSON() json.RawMessage {
	payload := map[string]interface{}{
		"title": "The <b>Red</b> Boat",
		"parts": []map[string]string{
			{"text": storyParts[0]},
			{"text": storyParts[1]},
			{"text": storyParts[2]},
		},
		"vocabulary": []map[string]string{
			{"word": "hammer", "definition": "a tool for hitting nails", "example": "Grandpa gave him a hammer."},
			{"word": "pond", "definition": "a small area of still water", "example": "The boat sailed across the pond."},
			{"word": "sail", "definition": "cloth that catches the wind", "example": "The wind filled the sail."},
			{"word": "Hammer", "definition": "duplicate entry"},
		},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

// assessmentPassage has exactly 100 words.
var assessmentPassage = strings.TrimSpace(strings.Repeat("The cat sat on the warm mat by the door. ", 10))

func assessmentJSON() json.RawMessage {
	payload := map[string]interface{}{
		"title":   "The Cat",
		"passage": assessmentPassage,
		"questions": []map[string]interface{}{
			{"prompt": "Who sat on the mat?", "options": []string{"The cat", "The dog", "The bird"}, "answer": "The cat"},
			{"prompt": "Was the mat warm?", "options": []string{"Yes", "No"}, "answer": "Yes"},
			{"prompt": "Where was the mat?", "options": []string{"By the door", "In the car", "On the roof"}, "answer": "By the door"},
		},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

// activityTypeOf recovers the activity type named in an activity prompt.
func activityTypeOf(req ai.Request) (activity.Type, bool) {
	for _, t := range activity.AllTypes() {
		if strings.Contains(req.Prompt, fmt.Sprintf("Create a %s activity", t)) {
			return t, true
		}
	}
	return "", false
}

// scriptedContent answers every request kind with valid content.
func scriptedContent(_ context.Context, req ai.Request) (json.RawMessage, error) {
	switch req.Kind {
	case ai.KindStory:
		return storyJSON(), nil
	case ai.KindAssessment:
		return assessmentJSON(), nil
	case ai.KindActivity:
		t, ok := activityTypeOf(req)
		if !ok {
			return nil, fmt.Errorf("unexpected activity prompt: %s", req.Prompt)
		}
		return json.RawMessage(activity.Example(t)), nil
	}
	return nil, fmt.Errorf("unexpected request kind %q", req.Kind)
}

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type fixture struct {
	db  *gorm.DB
	gen *ai.MockGenerator
	mr  *miniredis.Miniredis

	parentRepo     repository.ParentRepository
	studentRepo    repository.StudentRepository
	planRepo       repository.PlanRepository
	dayRepo        repository.DayRepository
	progressRepo   repository.ProgressRepository
	contentRepo    repository.ActivityContentRepository
	assessmentRepo repository.AssessmentRepository

	events      ProgressEventBus
	students    StudentService
	cache       ContentCacheService
	progression ProgressionService
	ledger      LedgerService
	plans       PlanService
	assessments AssessmentService

	student dto.StudentResponse
}

type fixtureConfig struct {
	cache      ContentCacheConfig
	recordings RecordingStore
	generator  func(*ai.MockGenerator) ai.Generator
}

type fixtureOption func(*fixtureConfig)

func withCacheConfig(cfg ContentCacheConfig) fixtureOption {
	return func(c *fixtureConfig) { c.cache = cfg }
}

func withRecordings(store RecordingStore) fixtureOption {
	return func(c *fixtureConfig) { c.recordings = store }
}

func withGenerator(wrap func(*ai.MockGenerator) ai.Generator) fixtureOption {
	return func(c *fixtureConfig) { c.generator = wrap }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{
		cache: ContentCacheConfig{
			WaitTimeout:     200 * time.Millisecond,
			PollInterval:    10 * time.Millisecond,
			FallbackEnabled: true,
		},
		generator: func(m *ai.MockGenerator) ai.Generator { return m },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := newServiceTestDB(t)
	mr, client := newTestRedis(t)
	log := zerolog.Nop()
	validate := validator.New()

	mock := ai.NewMockGenerator()
	mock.Handler = scriptedContent
	generator := cfg.generator(mock)

	f := &fixture{
		db:             db,
		gen:            mock,
		mr:             mr,
		parentRepo:     repository.NewParentRepository(db),
		studentRepo:    repository.NewStudentRepository(db),
		planRepo:       repository.NewPlanRepository(db),
		dayRepo:        repository.NewDayRepository(db),
		progressRepo:   repository.NewProgressRepository(db),
		contentRepo:    repository.NewActivityContentRepository(db),
		assessmentRepo: repository.NewAssessmentRepository(db),
	}

	f.events = NewProgressEventBus(nil, "", nil, log)
	f.students = NewStudentService(f.parentRepo, f.studentRepo, validate, log)
	f.cache = NewContentCacheService(f.contentRepo, generator, client, cfg.cache, log)
	f.progression = NewProgressionService(f.dayRepo, f.planRepo, f.progressRepo, log)
	f.ledger = NewLedgerService(db, f.planRepo, f.studentRepo, f.progressRepo, f.progression, f.cache, f.events, validate, log)
	f.plans = NewPlanService(f.planRepo, f.assessmentRepo, f.students, f.progression, f.ledger, f.cache, generator, validate, log)
	f.assessments = NewAssessmentService(f.assessmentRepo, f.students, AssessmentDeps{
		Generator:   generator,
		Recordings:  cfg.recordings,
		Events:      f.events,
		MaxUploadMB: 1,
	}, validate, log)

	ctx := context.Background()
	require.NoError(t, f.students.EnsureParent(ctx, ParentIdentity{ID: testParentID, Email: "Parent@Example.com", Name: "Pat"}))
	require.NoError(t, f.students.EnsureParent(ctx, ParentIdentity{ID: otherParentID, Email: "other@example.com"}))

	student, err := f.students.Create(ctx, testParentID, dto.StudentCreateRequest{
		Name:       "Sam",
		Age:        7,
		GradeLevel: 2,
		Interests:  []string{"boats", "dogs"},
	})
	require.NoError(t, err)
	f.student = student
	return f
}

func (f *fixture) createPlan(t *testing.T) dto.PlanResponse {
	t.Helper()
	plan, err := f.plans.Create(context.Background(), testParentID, dto.PlanCreateRequest{
		StudentID: f.student.ID,
		Name:      "Boat week",
		Theme:     "building things",
	})
	require.NoError(t, err)
	return plan
}

func (f *fixture) key(planID uint, dayIndex int, t activity.Type) models.ProgressKey {
	return models.ProgressKey{StudentID: f.student.ID, PlanID: planID, DayIndex: dayIndex, ActivityType: t}
}

// completeDay answers nothing and marks every activity of the day complete.
func (f *fixture) completeDay(t *testing.T, planID uint, dayIndex int) []dto.CompletionResponse {
	t.Helper()
	var out []dto.CompletionResponse
	for _, at := range activity.ScheduleForDay(dayIndex) {
		resp, err := f.ledger.MarkComplete(context.Background(), testParentID, f.key(planID, dayIndex, at), dto.CompleteActivityRequest{TimeSpent: 30})
		require.NoError(t, err)
		out = append(out, resp)
	}
	return out
}

// collect drains a subscription until n events arrived or the timeout passed.
func collect(t *testing.T, ch <-chan ProgressEvent, n int, timeout time.Duration) []ProgressEvent {
	t.Helper()
	var events []ProgressEvent
	deadline := time.After(timeout)
	for len(events) < n {
		select {
		case event, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, event)
		case <-deadline:
			return events
		}
	}
	return events
}

func eventTypes(events []ProgressEvent) []EventType {
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}
