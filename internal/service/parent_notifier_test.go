package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/pkg/mailer"
)

type recordingMailer struct {
	enabled bool

	mu   sync.Mutex
	sent []mailer.Message
}

func (m *recordingMailer) Enabled() bool { return m.enabled }

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) PlanCompleted(to, parentName, studentName, planName string) mailer.Message {
	return mailer.Message{To: to, Subject: fmt.Sprintf("%s finished %s", studentName, planName), TextBody: "Hi " + parentName}
}

func (m *recordingMailer) AssessmentScored(to, parentName, studentName, label string, composite float64) mailer.Message {
	return mailer.Message{To: to, Subject: fmt.Sprintf("%s scored %.0f: %s", studentName, composite, label), TextBody: "Hi " + parentName}
}

func (m *recordingMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

func newNotifier(f *fixture, mail ParentMailer) *ParentNotifier {
	return NewParentNotifier(f.parentRepo, f.studentRepo, f.planRepo, f.assessmentRepo, mail, zerolog.Nop())
}

func TestParentNotifierEmailsWhenPlanCompletes(t *testing.T) {
	f := newFixture(t)
	mail := &recordingMailer{enabled: true}
	f.events.Handle(newNotifier(f, mail).Handle)

	plan := f.createPlan(t)
	f.completeDay(t, plan.ID, 1)
	f.completeDay(t, plan.ID, 2)
	f.events.Wait()
	require.Empty(t, mail.messages())

	f.completeDay(t, plan.ID, 3)
	f.events.Wait()

	sent := mail.messages()
	require.Len(t, sent, 1)
	require.Equal(t, "parent@example.com", sent[0].To)
	require.Equal(t, "Sam finished Boat week", sent[0].Subject)
	require.Equal(t, "Hi Pat", sent[0].TextBody)
}

func TestParentNotifierEmailsScoredAssessment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mail := &recordingMailer{enabled: true}
	f.events.Handle(newNotifier(f, mail).Handle)

	created, err := f.assessments.Create(ctx, testParentID, dto.AssessmentCreateRequest{StudentID: f.student.ID})
	require.NoError(t, err)
	seconds, mistakes := 60.0, 10
	_, err = f.assessments.Submit(ctx, testParentID, created.ID, dto.SubmitAssessmentRequest{
		Answers:            map[int]string{0: "The cat", 1: "Yes", 2: "By the door"},
		ReadingTimeSeconds: &seconds,
		ErrorCount:         &mistakes,
	})
	require.NoError(t, err)
	f.events.Wait()

	sent := mail.messages()
	require.Len(t, sent, 1)
	require.Equal(t, "parent@example.com", sent[0].To)
	require.Equal(t, "Sam scored 87: At grade 2 level", sent[0].Subject)
}

func TestParentNotifierSkipsWhenMailDisabled(t *testing.T) {
	f := newFixture(t)
	mail := &recordingMailer{}
	notifier := newNotifier(f, mail)
	plan := f.createPlan(t)

	notifier.Handle(context.Background(), ProgressEvent{Type: EventPlanCompleted, ParentID: testParentID, StudentID: f.student.ID, PlanID: plan.ID})
	require.Empty(t, mail.messages())

	mail.enabled = true
	notifier.Handle(context.Background(), ProgressEvent{Type: EventDayUnlocked, ParentID: testParentID, PlanID: plan.ID})
	notifier.Handle(context.Background(), ProgressEvent{Type: EventAssessmentScored, ParentID: testParentID, AssessmentID: 404})
	require.Empty(t, mail.messages())

	NewParentNotifier(f.parentRepo, f.studentRepo, f.planRepo, f.assessmentRepo, nil, zerolog.Nop()).
		Handle(context.Background(), ProgressEvent{Type: EventPlanCompleted, ParentID: testParentID, PlanID: plan.ID})
}
