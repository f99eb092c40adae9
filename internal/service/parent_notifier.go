package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/readalong-api/internal/repository"
	"github.com/noah-isme/readalong-api/pkg/mailer"
)

// ParentMailer renders and delivers parent emails.
type ParentMailer interface {
	Enabled() bool
	Send(ctx context.Context, msg mailer.Message) error
	PlanCompleted(to, parentName, studentName, planName string) mailer.Message
	AssessmentScored(to, parentName, studentName, label string, composite float64) mailer.Message
}

// ParentNotifier emails parents about finished plans and scored assessments.
type ParentNotifier struct {
	parents     repository.ParentRepository
	students    repository.StudentRepository
	plans       repository.PlanRepository
	assessments repository.AssessmentRepository
	mail        ParentMailer
	logger      zerolog.Logger
}

// NewParentNotifier builds a notifier.
func NewParentNotifier(parents repository.ParentRepository, students repository.StudentRepository, plans repository.PlanRepository, assessments repository.AssessmentRepository, mail ParentMailer, logger zerolog.Logger) *ParentNotifier {
	return &ParentNotifier{
		parents:     parents,
		students:    students,
		plans:       plans,
		assessments: assessments,
		mail:        mail,
		logger:      logger.With().Str("component", "parent_notifier").Logger(),
	}
}

// Handle is a ProgressHandler reacting to plan.completed and assessment.scored.
func (n *ParentNotifier) Handle(ctx context.Context, event ProgressEvent) {
	if n.mail == nil || !n.mail.Enabled() {
		return
	}

	var (
		msg mailer.Message
		ok  bool
	)
	switch event.Type {
	case EventPlanCompleted:
		msg, ok = n.planCompleted(ctx, event)
	case EventAssessmentScored:
		msg, ok = n.assessmentScored(ctx, event)
	default:
		return
	}
	if !ok {
		return
	}
	if err := n.mail.Send(ctx, msg); err != nil {
		n.logger.Error().Err(err).Str("event", string(event.Type)).Uint("parent_id", event.ParentID).Msg("failed to notify parent")
	}
}

func (n *ParentNotifier) planCompleted(ctx context.Context, event ProgressEvent) (mailer.Message, bool) {
	parent, err := n.parents.GetByID(ctx, event.ParentID)
	if err != nil {
		n.logger.Warn().Err(err).Uint("parent_id", event.ParentID).Msg("parent not found for notification")
		return mailer.Message{}, false
	}
	student, err := n.students.GetByID(ctx, event.StudentID)
	if err != nil {
		n.logger.Warn().Err(err).Uint("student_id", event.StudentID).Msg("student not found for notification")
		return mailer.Message{}, false
	}
	plan, err := n.plans.GetByID(ctx, event.PlanID)
	if err != nil {
		n.logger.Warn().Err(err).Uint("plan_id", event.PlanID).Msg("plan not found for notification")
		return mailer.Message{}, false
	}
	return n.mail.PlanCompleted(parent.Email, parent.Name, student.Name, plan.Name), true
}

func (n *ParentNotifier) assessmentScored(ctx context.Context, event ProgressEvent) (mailer.Message, bool) {
	assessment, err := n.assessments.GetByID(ctx, event.AssessmentID)
	if err != nil || !assessment.IsScored() || assessment.CompositeScore == nil {
		n.logger.Warn().Err(err).Uint("assessment_id", event.AssessmentID).Msg("scored assessment not found for notification")
		return mailer.Message{}, false
	}
	parent, err := n.parents.GetByID(ctx, event.ParentID)
	if err != nil {
		n.logger.Warn().Err(err).Uint("parent_id", event.ParentID).Msg("parent not found for notification")
		return mailer.Message{}, false
	}
	student, err := n.students.GetByID(ctx, assessment.StudentID)
	if err != nil {
		n.logger.Warn().Err(err).Uint("student_id", assessment.StudentID).Msg("student not found for notification")
		return mailer.Message{}, false
	}
	return n.mail.AssessmentScored(parent.Email, parent.Name, student.Name, assessment.ReadingLevelLabel, *assessment.CompositeScore), true
}
