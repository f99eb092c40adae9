package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/middleware"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/service"
)

const testParentID uint = 7

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(body, target))
}

// asParent stands in for the JWT middleware.
func asParent(id uint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, id)
		c.Locals(middleware.LocalUserRole, middleware.RoleParent)
		return c.Next()
	}
}

func jsonBody(raw string) io.Reader {
	return strings.NewReader(raw)
}

type stubStudentService struct {
	ensured []service.ParentIdentity
	student dto.StudentResponse
	err     error
}

func (s *stubStudentService) EnsureParent(_ context.Context, identity service.ParentIdentity) error {
	s.ensured = append(s.ensured, identity)
	if identity.ID == 0 {
		return service.ErrForbidden
	}
	return nil
}

func (s *stubStudentService) Create(_ context.Context, parentID uint, payload dto.StudentCreateRequest) (dto.StudentResponse, error) {
	if s.err != nil {
		return dto.StudentResponse{}, s.err
	}
	return dto.StudentResponse{ID: 1, ParentID: parentID, Name: payload.Name, Age: payload.Age, GradeLevel: payload.GradeLevel}, nil
}

func (s *stubStudentService) List(context.Context, uint) ([]dto.StudentResponse, error) {
	return []dto.StudentResponse{s.student}, s.err
}

func (s *stubStudentService) Get(_ context.Context, _, _ uint) (dto.StudentResponse, error) {
	return s.student, s.err
}

func (s *stubStudentService) Owned(_ context.Context, _, _ uint) (models.Student, error) {
	return models.Student{}, s.err
}

type stubPlanService struct {
	created   dto.PlanResponse
	createErr error
	day       dto.DayViewResponse
	dayErr    error
	ownedErr  error
	status    dto.ContentStatusResponse

	lastParent uint
	lastPlan   uint
	lastDay    int
	lastKey    models.ProgressKey
}

func (s *stubPlanService) Create(_ context.Context, parentID uint, _ dto.PlanCreateRequest) (dto.PlanResponse, error) {
	s.lastParent = parentID
	return s.created, s.createErr
}

func (s *stubPlanService) RegenerateStory(_ context.Context, _, planID uint) (dto.PlanResponse, error) {
	s.lastPlan = planID
	return s.created, s.createErr
}

func (s *stubPlanService) Get(_ context.Context, _, planID uint) (dto.PlanResponse, error) {
	s.lastPlan = planID
	return s.created, nil
}

func (s *stubPlanService) ListByStudent(context.Context, uint, uint) ([]dto.PlanResponse, error) {
	return []dto.PlanResponse{s.created}, nil
}

func (s *stubPlanService) GetDay(_ context.Context, parentID, planID uint, dayIndex int) (dto.DayViewResponse, error) {
	s.lastParent, s.lastPlan, s.lastDay = parentID, planID, dayIndex
	return s.day, s.dayErr
}

func (s *stubPlanService) ContentStatus(_ context.Context, _ uint, key models.ProgressKey) (dto.ContentStatusResponse, error) {
	s.lastKey = key
	return s.status, nil
}

func (s *stubPlanService) Owned(_ context.Context, _, planID uint) (models.Plan, error) {
	if s.ownedErr != nil {
		return models.Plan{}, s.ownedErr
	}
	return models.Plan{ID: planID}, nil
}

type stubLedgerService struct {
	lastKey     models.ProgressKey
	lastParent  uint
	lastRecord  dto.RecordResponseRequest
	lastDone    dto.CompleteActivityRequest
	err         error
	completion  dto.CompletionResponse
	dayProgress []dto.ProgressResponse
}

func (s *stubLedgerService) RecordResponse(_ context.Context, parentID uint, key models.ProgressKey, payload dto.RecordResponseRequest) (dto.ProgressResponse, error) {
	s.lastParent, s.lastKey, s.lastRecord = parentID, key, payload
	if s.err != nil {
		return dto.ProgressResponse{}, s.err
	}
	return dto.ProgressResponse{Key: key.String(), Status: models.ProgressInProgress, Attempts: 1}, nil
}

func (s *stubLedgerService) MarkComplete(_ context.Context, parentID uint, key models.ProgressKey, payload dto.CompleteActivityRequest) (dto.CompletionResponse, error) {
	s.lastParent, s.lastKey, s.lastDone = parentID, key, payload
	return s.completion, s.err
}

func (s *stubLedgerService) GetProgress(_ context.Context, _ uint, key models.ProgressKey) (dto.ProgressResponse, error) {
	s.lastKey = key
	return dto.ProgressResponse{Key: key.String(), Status: models.ProgressNotStarted}, s.err
}

func (s *stubLedgerService) DayProgress(context.Context, uint, uint, int) ([]dto.ProgressResponse, error) {
	return s.dayProgress, s.err
}

func (s *stubLedgerService) LoadProgress(context.Context, uint, uint, int) (map[activity.Type]models.ActivityProgress, error) {
	return nil, nil
}

type stubAssessmentService struct {
	resp       dto.AssessmentResponse
	err        error
	lastSubmit dto.SubmitAssessmentRequest
	lastFile   string
}

func (s *stubAssessmentService) Create(context.Context, uint, dto.AssessmentCreateRequest) (dto.AssessmentResponse, error) {
	return s.resp, s.err
}

func (s *stubAssessmentService) Get(context.Context, uint, uint) (dto.AssessmentResponse, error) {
	return s.resp, s.err
}

func (s *stubAssessmentService) ListByStudent(context.Context, uint, uint) ([]dto.AssessmentResponse, error) {
	return []dto.AssessmentResponse{s.resp}, s.err
}

func (s *stubAssessmentService) SaveReading(context.Context, uint, uint, dto.ReadingRequest) (dto.AssessmentResponse, error) {
	return s.resp, s.err
}

func (s *stubAssessmentService) Submit(_ context.Context, _, _ uint, payload dto.SubmitAssessmentRequest) (dto.AssessmentResponse, error) {
	s.lastSubmit = payload
	return s.resp, s.err
}

func (s *stubAssessmentService) AttachRecording(_ context.Context, _, _ uint, file *multipart.FileHeader) (dto.AssessmentResponse, error) {
	s.lastFile = file.Filename
	return s.resp, s.err
}
