package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/observability"
	"github.com/noah-isme/readalong-api/internal/repository"
	"github.com/noah-isme/readalong-api/internal/scoring"
	"github.com/noah-isme/readalong-api/pkg/ai"
)

const assessmentQuestionCount = 3

// RecordingStore persists reading recordings and returns a public URL.
type RecordingStore interface {
	StoreRecording(ctx context.Context, owner, name string, reader io.Reader) (string, error)
}

// AssessmentService runs timed placement readings.
type AssessmentService interface {
	Create(ctx context.Context, parentID uint, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error)
	Get(ctx context.Context, parentID, id uint) (dto.AssessmentResponse, error)
	ListByStudent(ctx context.Context, parentID, studentID uint) ([]dto.AssessmentResponse, error)
	SaveReading(ctx context.Context, parentID, id uint, payload dto.ReadingRequest) (dto.AssessmentResponse, error)
	Submit(ctx context.Context, parentID, id uint, payload dto.SubmitAssessmentRequest) (dto.AssessmentResponse, error)
	AttachRecording(ctx context.Context, parentID, id uint, file *multipart.FileHeader) (dto.AssessmentResponse, error)
}

type assessmentService struct {
	repo       repository.AssessmentRepository
	students   StudentService
	engine     *scoring.Engine
	generator  ai.Generator
	recordings RecordingStore
	events     ProgressEventBus
	validator  *validator.Validate
	maxUpload  int64
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// AssessmentDeps groups the optional collaborators of the assessment service.
type AssessmentDeps struct {
	Generator    ai.Generator
	Recordings   RecordingStore
	Events       ProgressEventBus
	MaxUploadMB  int
	ScoringTable *scoring.Table
	MinElapsed   float64
}

// NewAssessmentService builds the assessment service.
func NewAssessmentService(repo repository.AssessmentRepository, students StudentService, deps AssessmentDeps, validate *validator.Validate, logger zerolog.Logger) AssessmentService {
	maxMB := deps.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 10
	}
	table := deps.ScoringTable
	if table == nil {
		table = scoring.NewTable(scoring.DefaultBenchmarks)
	}
	return &assessmentService{
		repo:       repo,
		students:   students,
		engine:     scoring.NewEngine(table, deps.MinElapsed),
		generator:  deps.Generator,
		recordings: deps.Recordings,
		events:     deps.Events,
		validator:  validate,
		maxUpload:  int64(maxMB) * 1024 * 1024,
		logger:     logger.With().Str("component", "assessment_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/readalong-api/internal/service/assessment"),
		now:        time.Now,
	}
}

func (s *assessmentService) Create(ctx context.Context, parentID uint, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}
	student, err := s.students.Owned(ctx, parentID, payload.StudentID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if _, ok := s.engine.Table().Lookup(student.GradeLevel); !ok {
		return dto.AssessmentResponse{}, &scoring.Error{Code: scoring.CodeInvalidGradeLevel, Message: fmt.Sprintf("no benchmark for grade %d", student.GradeLevel)}
	}

	ctx, span := s.tracer.Start(ctx, "assessment.create", trace.WithAttributes(
		attribute.Int64("student.id", int64(student.ID)),
		attribute.Int("student.grade", student.GradeLevel),
	))
	defer span.End()

	passage, err := s.generatePassage(context.WithoutCancel(ctx), student)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Err(err).Uint("student_id", student.ID).Msg("assessment generation failed")
		return dto.AssessmentResponse{}, generationFailed(err)
	}

	questions := make([]models.AssessmentQuestion, 0, len(passage.Questions))
	for _, q := range passage.Questions {
		options := make([]string, 0, len(q.Options))
		for _, opt := range q.Options {
			options = append(options, activity.SanitizeText(opt))
		}
		questions = append(questions, models.AssessmentQuestion{
			Prompt:        activity.SanitizeText(q.Prompt),
			Options:       options,
			CorrectAnswer: activity.SanitizeText(q.Answer),
		})
	}
	text := activity.SanitizeText(passage.Passage)

	assessment := models.Assessment{
		StudentID:  student.ID,
		GradeLevel: student.GradeLevel,
		Title:      activity.SanitizeText(passage.Title),
		Passage:    text,
		WordCount:  len(strings.Fields(text)),
		Questions:  datatypes.NewJSONType(questions),
		Answers:    datatypes.NewJSONType(map[int]string{}),
	}
	if err := s.repo.Create(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, fmt.Errorf("store assessment: %w", err)
	}
	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) generatePassage(ctx context.Context, student models.Student) (ai.AssessmentPayload, error) {
	if s.generator == nil {
		return ai.AssessmentPayload{}, ai.ErrNotConfigured
	}
	request := ai.AssessmentRequest(ai.AssessmentInput{
		GradeLevel: student.GradeLevel,
		Age:        student.Age,
		Interests:  student.Interests.Data(),
		Questions:  assessmentQuestionCount,
	})
	request.Validate = func(raw json.RawMessage) error {
		_, err := parseAssessment(raw)
		return err
	}

	resp, err := s.generator.Generate(ctx, request)
	if err != nil {
		return ai.AssessmentPayload{}, err
	}
	return parseAssessment(resp.Content)
}

// parseAssessment adds option checks on top of the generator's structural parse.
func parseAssessment(raw json.RawMessage) (ai.AssessmentPayload, error) {
	payload, err := ai.ParseAssessment(raw)
	if err != nil {
		return ai.AssessmentPayload{}, err
	}
	for i, q := range payload.Questions {
		if len(q.Options) < 2 {
			return ai.AssessmentPayload{}, fmt.Errorf("question %d needs at least two options", i+1)
		}
		seen := make(map[string]struct{}, len(q.Options))
		matched := false
		for _, opt := range q.Options {
			key := strings.ToLower(strings.TrimSpace(opt))
			if key == "" {
				return ai.AssessmentPayload{}, fmt.Errorf("question %d has an empty option", i+1)
			}
			if _, dup := seen[key]; dup {
				return ai.AssessmentPayload{}, fmt.Errorf("question %d repeats option %q", i+1, opt)
			}
			seen[key] = struct{}{}
			if scoring.AnswerMatches(opt, q.Answer) {
				matched = true
			}
		}
		if !matched {
			return ai.AssessmentPayload{}, fmt.Errorf("question %d answer is not one of its options", i+1)
		}
	}
	return payload, nil
}

func (s *assessmentService) Get(ctx context.Context, parentID, id uint) (dto.AssessmentResponse, error) {
	assessment, err := s.loadOwned(ctx, parentID, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) ListByStudent(ctx context.Context, parentID, studentID uint) ([]dto.AssessmentResponse, error) {
	if _, err := s.students.Owned(ctx, parentID, studentID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return dto.NewAssessmentResponseSlice(items), nil
}

func (s *assessmentService) SaveReading(ctx context.Context, parentID, id uint, payload dto.ReadingRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}
	assessment, err := s.loadOwned(ctx, parentID, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if assessment.IsScored() {
		return dto.AssessmentResponse{}, ErrAssessmentFinalized
	}

	affected, err := s.repo.SaveReading(ctx, id, payload.ReadingTimeSeconds, payload.ErrorCount)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if affected == 0 {
		return dto.AssessmentResponse{}, ErrAssessmentFinalized
	}
	return s.Get(ctx, parentID, id)
}

func (s *assessmentService) Submit(ctx context.Context, parentID, id uint, payload dto.SubmitAssessmentRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}
	assessment, err := s.loadOwned(ctx, parentID, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if assessment.IsScored() {
		return dto.NewAssessmentResponse(assessment), nil
	}

	ctx, span := s.tracer.Start(ctx, "assessment.submit", trace.WithAttributes(
		attribute.Int64("assessment.id", int64(id)),
	))
	defer span.End()

	readingTime := assessment.ReadingTimeSeconds
	if payload.ReadingTimeSeconds != nil {
		readingTime = payload.ReadingTimeSeconds
	}
	if readingTime == nil {
		return dto.AssessmentResponse{}, &scoring.Error{Code: scoring.CodeInvalidAttempt, Message: "reading time has not been recorded"}
	}
	errorCount := 0
	if assessment.ErrorCount != nil {
		errorCount = *assessment.ErrorCount
	}
	if payload.ErrorCount != nil {
		errorCount = *payload.ErrorCount
	}

	answers := make(map[int]string, len(payload.Answers))
	for index, answer := range payload.Answers {
		answers[index] = activity.SanitizeText(answer)
	}

	result, err := s.engine.Score(scoring.ReadingSession{
		StudentID:        assessment.StudentID,
		GradeLevel:       assessment.GradeLevel,
		PassageWordCount: assessment.WordCount,
		ElapsedSeconds:   *readingTime,
		ErrorCount:       errorCount,
	}, assessment.ScoringQuestions(), scoring.Answers(answers))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.AssessmentResponse{}, err
	}

	now := s.now().UTC()
	scored := models.Assessment{
		Answers:            datatypes.NewJSONType(answers),
		ReadingTimeSeconds: readingTime,
		ErrorCount:         &errorCount,
		Result:             datatypes.NewJSONType(&result),
		FluencyScore:       &result.FluencyScore,
		CompositeScore:     &result.CompositeScore,
		ReadingLevel:       string(result.Level),
		ReadingLevelLabel:  result.Label,
		ScoredAt:           &now,
	}
	if result.TotalQuestions > 0 {
		scored.ComprehensionScore = &result.ComprehensionScore
	}

	affected, err := s.repo.SaveScore(ctx, id, scored)
	if err != nil {
		return dto.AssessmentResponse{}, fmt.Errorf("store score: %w", err)
	}
	if affected > 0 {
		observability.ScoringResults().WithLabelValues(string(result.Level)).Inc()
		s.logger.Info().
			Uint("assessment_id", id).
			Float64("composite", result.CompositeScore).
			Str("level", string(result.Level)).
			Msg("assessment scored")
		if s.events != nil {
			s.events.Publish(ctx, ProgressEvent{
				Type:         EventAssessmentScored,
				ParentID:     parentID,
				StudentID:    assessment.StudentID,
				AssessmentID: id,
			})
		}
	}
	return s.Get(ctx, parentID, id)
}

// isRecording accepts audio, plus webm which browser recorders emit for audio-only captures.
func isRecording(detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true
		}
	}
	return detected.Is("video/webm")
}

func (s *assessmentService) AttachRecording(ctx context.Context, parentID, id uint, file *multipart.FileHeader) (dto.AssessmentResponse, error) {
	if s.recordings == nil {
		return dto.AssessmentResponse{}, ErrUploadsDisabled
	}
	if file == nil {
		return dto.AssessmentResponse{}, errors.New("file is required")
	}
	if file.Size > s.maxUpload {
		return dto.AssessmentResponse{}, ErrRecordingTooLarge
	}
	assessment, err := s.loadOwned(ctx, parentID, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "assessment.attach_recording", trace.WithAttributes(
		attribute.Int64("assessment.id", int64(id)),
		attribute.Int64("upload.bytes", file.Size),
	))
	defer span.End()

	handle, err := file.Open()
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxUpload+1)); err != nil {
		return dto.AssessmentResponse{}, err
	}
	if int64(buf.Len()) > s.maxUpload {
		return dto.AssessmentResponse{}, ErrRecordingTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	span.SetAttributes(attribute.String("upload.detected_mime", detected.String()))
	if !isRecording(detected) {
		return dto.AssessmentResponse{}, ErrInvalidRecording
	}

	url, err := s.recordings.StoreRecording(ctx, fmt.Sprintf("assessment-%d", assessment.ID), file.Filename, bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return dto.AssessmentResponse{}, err
	}
	if err := s.repo.SetRecording(ctx, assessment.ID, url); err != nil {
		return dto.AssessmentResponse{}, err
	}
	return s.Get(ctx, parentID, id)
}

func (s *assessmentService) loadOwned(ctx context.Context, parentID, id uint) (models.Assessment, error) {
	assessment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	if _, err := s.students.Owned(ctx, parentID, assessment.StudentID); err != nil {
		return models.Assessment{}, err
	}
	return assessment, nil
}
