package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/scoring"
	"github.com/noah-isme/readalong-api/pkg/ai"
)

type memoryRecordings struct {
	mu    sync.Mutex
	owner string
	name  string
	data  []byte
}

func (m *memoryRecordings) StoreRecording(_ context.Context, owner, name string, reader io.Reader) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner, m.name, m.data = owner, name, data
	return "https://cdn.example.com/" + owner + "/" + name, nil
}

func formFile(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func wavBytes() []byte {
	header := []byte("RIFF\x24\x08\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x44\xac\x00\x00\x88\x58\x01\x00\x02\x00\x10\x00data\x00\x08\x00\x00")
	return append(header, make([]byte, 2048)...)
}

func TestAssessmentCreateHidesAnswerKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.assessments.Create(ctx, testParentID, dto.AssessmentCreateRequest{StudentID: f.student.ID})
	require.NoError(t, err)
	require.Equal(t, 2, created.GradeLevel)
	require.Equal(t, "The Cat", created.Title)
	require.Equal(t, 100, created.WordCount)
	require.False(t, created.Scored)
	require.Len(t, created.Questions, 3)
	for _, q := range created.Questions {
		require.Empty(t, q.CorrectAnswer)
		require.NotEmpty(t, q.Options)
	}

	calls := f.gen.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, ai.KindAssessment, calls[0].Kind)
	require.Contains(t, calls[0].Prompt, "grade 2")

	_, err = f.assessments.Get(ctx, otherParentID, created.ID)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.assessments.Get(ctx, testParentID, created.ID+10)
	require.ErrorIs(t, err, ErrAssessmentNotFound)

	list, err := f.assessments.ListByStudent(ctx, testParentID, f.student.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAssessmentCreateRejectsGradeWithoutBenchmark(t *testing.T) {
	f := newFixture(t)
	svc := NewAssessmentService(f.assessmentRepo, f.students, AssessmentDeps{
		Generator:    f.gen,
		ScoringTable: scoring.NewTable([]scoring.Benchmark{{Grade: 1, WPMMin: 40, WPMMax: 60, ComprehensionMin: 60, ComprehensionMax: 80}}),
	}, validator.New(), zerolog.Nop())

	_, err := svc.Create(context.Background(), testParentID, dto.AssessmentCreateRequest{StudentID: f.student.ID})
	require.ErrorIs(t, err, scoring.ErrInvalidGradeLevel)
	require.Zero(t, f.gen.CallCount())
}

func TestAssessmentCreateRetriesInvalidPassage(t *testing.T) {
	f := newFixture(t, withGenerator(func(m *ai.MockGenerator) ai.Generator {
		return ai.WithRetry(m, ai.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond})
	}))
	f.gen.AddResponse(ai.MockResponse{Content: json.RawMessage(`{"title":"Bad","passage":"A short passage.","questions":[{"prompt":"Who?","options":["A","B"],"answer":"C"}]}`)})

	created, err := f.assessments.Create(context.Background(), testParentID, dto.AssessmentCreateRequest{StudentID: f.student.ID})
	require.NoError(t, err)
	require.Equal(t, "The Cat", created.Title)
	require.Equal(t, 2, f.gen.CallCount())
}

func TestAssessmentCreateReportsGenerationFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.Handler = func(context.Context, ai.Request) (json.RawMessage, error) {
		return nil, ai.ErrRejected
	}

	_, err := f.assessments.Create(context.Background(), testParentID, dto.AssessmentCreateRequest{StudentID: f.student.ID})
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.ErrorIs(t, err, ai.ErrRejected)
}

func TestAssessmentSubmitScoresOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scoredEvents := make(chan ProgressEvent, 4)
	f.events.Handle(func(_ context.Context, event ProgressEvent) {
		scoredEvents <- event
	})

	created, err := f.assessments.Create(ctx, testParentID, dto.AssessmentCreateRequest{StudentID: f.student.ID})
	require.NoError(t, err)

	_, err = f.assessments.Submit(ctx, testParentID, created.ID, dto.SubmitAssessmentRequest{})
	require.ErrorIs(t, err, scoring.ErrInvalidAttempt)

	_, err = f.assessments.SaveReading(ctx, testParentID, created.ID, dto.ReadingRequest{ReadingTimeSeconds: 5})
	require.NoError(t, err)
	_, err = f.assessments.Submit(ctx, testParentID, created.ID, dto.SubmitAssessmentRequest{})
	require.ErrorIs(t, err, scoring.ErrInvalidAttempt)

	pending, err := f.assessments.Get(ctx, testParentID, created.ID)
	require.NoError(t, err)
	require.False(t, pending.Scored)

	saved, err := f.assessments.SaveReading(ctx, testParentID, created.ID, dto.ReadingRequest{ReadingTimeSeconds: 60, ErrorCount: 10})
	require.NoError(t, err)
	require.InDelta(t, 60, *saved.ReadingTimeSeconds, 0.001)

	scored, err := f.assessments.Submit(ctx, testParentID, created.ID, dto.SubmitAssessmentRequest{
		Answers: map[int]string{0: "The cat", 1: " yes ", 2: "by the door"},
	})
	require.NoError(t, err)
	require.True(t, scored.Scored)
	require.NotNil(t, scored.ScoredAt)
	require.Equal(t, 10, *scored.ErrorCount)
	require.InDelta(t, 80, *scored.FluencyScore, 0.001)
	require.InDelta(t, 97.5, *scored.ComprehensionScore, 0.001)
	require.InDelta(t, 87, *scored.CompositeScore, 0.001)
	require.Equal(t, string(scoring.LevelAt), scored.ReadingLevel)
	require.Equal(t, "At grade 2 level", scored.ReadingLevelLabel)
	require.NotNil(t, scored.Result)
	require.InDelta(t, 90, scored.Result.WordsCorrectPerMin, 0.001)
	require.Equal(t, 3, scored.Result.CorrectAnswers)
	require.Equal(t, "The cat", scored.Questions[0].CorrectAnswer)

	f.events.Wait()
	select {
	case event := <-scoredEvents:
		require.Equal(t, EventAssessmentScored, event.Type)
		require.Equal(t, created.ID, event.AssessmentID)
		require.Equal(t, testParentID, event.ParentID)
	default:
		t.Fatal("expected an assessment.scored event")
	}

	seconds := 20.0
	again, err := f.assessments.Submit(ctx, testParentID, created.ID, dto.SubmitAssessmentRequest{
		Answers:            map[int]string{0: "The dog"},
		ReadingTimeSeconds: &seconds,
	})
	require.NoError(t, err)
	require.InDelta(t, 87, *again.CompositeScore, 0.001)
	require.Equal(t, *scored.ScoredAt, *again.ScoredAt)

	_, err = f.assessments.SaveReading(ctx, testParentID, created.ID, dto.ReadingRequest{ReadingTimeSeconds: 30})
	require.ErrorIs(t, err, ErrAssessmentFinalized)

	f.events.Wait()
	require.Empty(t, scoredEvents)
}

func TestAssessmentAttachRecording(t *testing.T) {
	store := &memoryRecordings{}
	f := newFixture(t, withRecordings(store))
	ctx := context.Background()
	created, err := f.assessments.Create(ctx, testParentID, dto.AssessmentCreateRequest{StudentID: f.student.ID})
	require.NoError(t, err)

	resp, err := f.assessments.AttachRecording(ctx, testParentID, created.ID, formFile(t, "reading.wav", wavBytes()))
	require.NoError(t, err)
	require.Contains(t, resp.RecordingURL, "reading.wav")
	require.Equal(t, fmt.Sprintf("assessment-%d", created.ID), store.owner)
	require.Equal(t, wavBytes(), store.data)

	_, err = f.assessments.AttachRecording(ctx, testParentID, created.ID, formFile(t, "notes.wav", []byte("this is not audio at all, just text")))
	require.ErrorIs(t, err, ErrInvalidRecording)

	_, err = f.assessments.AttachRecording(ctx, testParentID, created.ID, formFile(t, "long.wav", append(wavBytes(), make([]byte, 1<<20)...)))
	require.ErrorIs(t, err, ErrRecordingTooLarge)

	_, err = f.assessments.AttachRecording(ctx, otherParentID, created.ID, formFile(t, "reading.wav", wavBytes()))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAssessmentAttachRecordingRequiresStore(t *testing.T) {
	f := newFixture(t)
	created, err := f.assessments.Create(context.Background(), testParentID, dto.AssessmentCreateRequest{StudentID: f.student.ID})
	require.NoError(t, err)

	_, err = f.assessments.AttachRecording(context.Background(), testParentID, created.ID, formFile(t, "reading.wav", wavBytes()))
	require.ErrorIs(t, err, ErrUploadsDisabled)
}

func TestParseAssessmentChecksOptions(t *testing.T) {
	cases := map[string]string{
		"single option":    `{"passage":"Text here.","questions":[{"prompt":"Q?","options":["A"],"answer":"A"}]}`,
		"repeated options": `{"passage":"Text here.","questions":[{"prompt":"Q?","options":["A"," a "],"answer":"A"}]}`,
		"answer missing":   `{"passage":"Text here.","questions":[{"prompt":"Q?","options":["A","B"],"answer":"C"}]}`,
		"no questions":     `{"passage":"Text here.","questions":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseAssessment(json.RawMessage(raw))
			require.Error(t, err)
		})
	}

	payload, err := parseAssessment(assessmentJSON())
	require.NoError(t, err)
	require.Len(t, payload.Questions, 3)
}
