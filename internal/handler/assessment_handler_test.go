package handler_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/handler"
	"github.com/noah-isme/readalong-api/internal/middleware"
	"github.com/noah-isme/readalong-api/internal/scoring"
	"github.com/noah-isme/readalong-api/internal/service"
)

func newAssessmentApp(svc *stubAssessmentService, limiter fiber.Handler) *fiber.App {
	app := fiber.New()
	handler.NewAssessmentHandler(svc, limiter, zerolog.Nop()).Register(app.Group("/assessments", asParent(testParentID)))
	return app
}

func TestAssessmentHandler_SubmitScores(t *testing.T) {
	composite := 87.0
	svc := &stubAssessmentService{resp: dto.AssessmentResponse{ID: 4, Scored: true, CompositeScore: &composite, ReadingLevelLabel: "At grade 2 level"}}
	app := newAssessmentApp(svc, nil)

	req := httptest.NewRequest(http.MethodPut, "/assessments/4/submit",
		jsonBody(`{"answers":{"0":"The cat","2":"By the door"},"reading_time_seconds":60,"error_count":10}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, "The cat", svc.lastSubmit.Answers[0])
	require.Equal(t, "By the door", svc.lastSubmit.Answers[2])
	require.InDelta(t, 60, *svc.lastSubmit.ReadingTimeSeconds, 0.001)
	require.Equal(t, 10, *svc.lastSubmit.ErrorCount)

	var body struct {
		Data dto.AssessmentResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "At grade 2 level", body.Data.ReadingLevelLabel)
}

func TestAssessmentHandler_TooShortReading(t *testing.T) {
	app := newAssessmentApp(&stubAssessmentService{err: scoring.ErrInvalidAttempt}, nil)

	req := httptest.NewRequest(http.MethodPut, "/assessments/4/submit", jsonBody(`{"reading_time_seconds":3}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var body envelope
	decodeResponse(t, resp, &body)
	require.Equal(t, scoring.CodeInvalidAttempt, body.Code)
}

func TestAssessmentHandler_FinalizedReading(t *testing.T) {
	app := newAssessmentApp(&stubAssessmentService{err: service.ErrAssessmentFinalized}, nil)

	req := httptest.NewRequest(http.MethodPut, "/assessments/4/reading", jsonBody(`{"reading_time_seconds":30,"error_count":1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestAssessmentHandler_Recording(t *testing.T) {
	svc := &stubAssessmentService{resp: dto.AssessmentResponse{ID: 4, RecordingURL: "https://cdn.example.com/a.wav"}}
	app := newAssessmentApp(svc, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/assessments/4/recording", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "reading.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFF....WAVE"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/assessments/4/recording", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "reading.wav", svc.lastFile)

	svc.err = service.ErrRecordingTooLarge
	body.Reset()
	writer = multipart.NewWriter(body)
	part, err = writer.CreateFormFile("file", "long.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFF....WAVE"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	req = httptest.NewRequest(http.MethodPost, "/assessments/4/recording", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestAssessmentHandler_CreateIsRateLimited(t *testing.T) {
	svc := &stubAssessmentService{resp: dto.AssessmentResponse{ID: 9}}
	app := newAssessmentApp(svc, middleware.RateLimit("generate", 1, 0))

	create := func() *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/assessments", jsonBody(`{"student_id":3}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	require.Equal(t, fiber.StatusCreated, create().StatusCode)
	limited := create()
	require.Equal(t, fiber.StatusTooManyRequests, limited.StatusCode)

	var body envelope
	decodeResponse(t, limited, &body)
	require.Equal(t, "RATE_LIMITED", body.Code)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/assessments/9", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
