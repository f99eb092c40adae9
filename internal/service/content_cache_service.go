package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/observability"
	"github.com/noah-isme/readalong-api/internal/repository"
	"github.com/noah-isme/readalong-api/pkg/ai"
)

// ContentSource tells the caller where served content came from.
type ContentSource string

const (
	SourceCache     ContentSource = "cache"
	SourceGenerated ContentSource = "generated"
	SourceStale     ContentSource = "stale"
	SourceFallback  ContentSource = "fallback"
)

// GenerationStatus is the pollable state of a content key.
type GenerationStatus string

const (
	GenerationPending GenerationStatus = "pending"
	GenerationReady   GenerationStatus = "ready"
	GenerationFailed  GenerationStatus = "failed"
	GenerationUnknown GenerationStatus = "unknown"
)

// ContentRequest carries everything needed to key, hash and generate one activity.
type ContentRequest struct {
	PlanID       uint
	DayIndex     int
	ActivityType activity.Type
	StudentAge   int
	StoryText    string
	Vocabulary   []activity.VocabularyWord
}

// Key is the cache key shared by the row, the lock and the status entry.
func (r ContentRequest) Key() string {
	return fmt.Sprintf("%d:%d:%s", r.PlanID, r.DayIndex, r.ActivityType)
}

// Hash fingerprints the generation inputs.
func (r ContentRequest) Hash() string {
	return activity.Hash(r.StoryText, r.ActivityType, r.StudentAge)
}

// ContentResult is validated content plus its provenance.
type ContentResult struct {
	Content activity.Content
	Source  ContentSource
	Hash    string
	Model   string
}

// ContentCacheConfig tunes cache freshness and cross-instance coordination.
type ContentCacheConfig struct {
	// TTL of zero keeps rows until the inputs change.
	TTL             time.Duration
	LockTTL         time.Duration
	WaitTimeout     time.Duration
	PollInterval    time.Duration
	FallbackEnabled bool
}

// ContentCacheService serves generated activity content with single-flight generation.
type ContentCacheService interface {
	GetOrGenerate(ctx context.Context, req ContentRequest) (ContentResult, error)
	// AnswerKey returns the content answers are checked against: the stored row
	// regardless of freshness, else the fallback template when enabled.
	AnswerKey(ctx context.Context, req ContentRequest) (activity.Content, error)
	Status(ctx context.Context, req ContentRequest) (GenerationStatus, error)
}

const (
	contentLockPrefix   = "content:lock:"
	contentStatusPrefix = "content:status:"
	failedStatusTTL     = 10 * time.Minute
	readyStatusTTL      = 24 * time.Hour
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type contentCacheService struct {
	repo      repository.ActivityContentRepository
	generator ai.Generator
	redis     *redis.Client
	config    ContentCacheConfig
	group     singleflight.Group
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	statusMu    sync.Mutex
	localStatus map[string]GenerationStatus
}

// NewContentCacheService builds the content cache. A nil redis client limits
// coordination to this process.
func NewContentCacheService(repo repository.ActivityContentRepository, generator ai.Generator, cache *redis.Client, cfg ContentCacheConfig, logger zerolog.Logger) ContentCacheService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 90 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 3 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &contentCacheService{
		repo:        repo,
		generator:   generator,
		redis:       cache,
		config:      cfg,
		logger:      logger.With().Str("component", "content_cache").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/readalong-api/internal/service/content_cache"),
		now:         time.Now,
		localStatus: make(map[string]GenerationStatus),
	}
}

func (s *contentCacheService) GetOrGenerate(ctx context.Context, req ContentRequest) (ContentResult, error) {
	ctx, span := s.tracer.Start(ctx, "content_cache.get_or_generate", trace.WithAttributes(
		attribute.Int64("plan.id", int64(req.PlanID)),
		attribute.Int("day.index", req.DayIndex),
		attribute.String("activity.type", string(req.ActivityType)),
	))
	defer span.End()

	hash := req.Hash()
	if result, ok := s.lookupFresh(ctx, req, hash); ok {
		observability.ContentCacheRequests().WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.String("content.source", string(result.Source)))
		return result, nil
	}

	// Generation is detached from the caller so a departing client still fills the cache.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(req.Key()+"#"+hash, func() (interface{}, error) {
		return s.fill(detached, req, hash)
	})

	select {
	case <-ctx.Done():
		return ContentResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			observability.ContentCacheRequests().WithLabelValues(resultLabel(res.Err)).Inc()
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			return ContentResult{}, res.Err
		}
		result := res.Val.(ContentResult)
		observability.ContentCacheRequests().WithLabelValues(string(result.Source)).Inc()
		span.SetAttributes(attribute.String("content.source", string(result.Source)))
		return result, nil
	}
}

func resultLabel(err error) string {
	if errors.Is(err, ErrGenerationPending) {
		return "pending"
	}
	return "failed"
}

func (s *contentCacheService) lookupFresh(ctx context.Context, req ContentRequest, hash string) (ContentResult, bool) {
	row, err := s.repo.Get(ctx, req.PlanID, req.DayIndex, string(req.ActivityType))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(err).Str("key", req.Key()).Msg("content lookup failed")
		}
		return ContentResult{}, false
	}
	if !row.IsFresh(hash, s.now()) {
		return ContentResult{}, false
	}
	content, err := activity.Decode(req.ActivityType, row.Content)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", req.Key()).Msg("cached content is unreadable")
		return ContentResult{}, false
	}
	return ContentResult{Content: content, Source: SourceCache, Hash: row.ContentHash, Model: row.Model}, true
}

func (s *contentCacheService) fill(ctx context.Context, req ContentRequest, hash string) (ContentResult, error) {
	// A flight that finished between the lookup and joining the group already stored the row.
	if result, ok := s.lookupFresh(ctx, req, hash); ok {
		return result, nil
	}

	key := req.Key()
	token, acquired, err := s.reserve(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("content lock unavailable, generating without it")
		acquired = true
	}
	if !acquired {
		return s.awaitPeer(ctx, req, hash)
	}
	defer s.release(ctx, key, token)

	s.setStatus(ctx, key, GenerationPending)
	start := s.now()
	content, model, genErr := s.generate(ctx, req)
	observability.ContentGenerationDuration().WithLabelValues(string(req.ActivityType)).Observe(s.now().Sub(start).Seconds())

	if genErr != nil {
		s.setStatus(ctx, key, GenerationFailed)
		s.logger.Error().Err(genErr).Str("key", key).Msg("content generation failed")
		return s.degrade(ctx, req, genErr)
	}

	payload, err := json.Marshal(content)
	if err != nil {
		s.setStatus(ctx, key, GenerationFailed)
		return s.degrade(ctx, req, err)
	}
	row := models.ActivityContent{
		PlanID:       req.PlanID,
		DayIndex:     req.DayIndex,
		ActivityType: string(req.ActivityType),
		Content:      datatypes.JSON(payload),
		StudentAge:   req.StudentAge,
		ContentHash:  hash,
		Model:        model,
	}
	if s.config.TTL > 0 {
		expires := s.now().Add(s.config.TTL)
		row.ExpiresAt = &expires
	}
	if err := s.repo.Upsert(ctx, &row); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to store generated content")
		s.setStatus(ctx, key, GenerationFailed)
		return ContentResult{Content: content, Source: SourceGenerated, Hash: hash, Model: model}, nil
	}
	s.setStatus(ctx, key, GenerationReady)
	return ContentResult{Content: content, Source: SourceGenerated, Hash: hash, Model: model}, nil
}

func (s *contentCacheService) generate(ctx context.Context, req ContentRequest) (activity.Content, string, error) {
	if s.generator == nil {
		return nil, "", ai.ErrNotConfigured
	}
	request := ai.ActivityRequest(ai.ActivityInput{
		ActivityType: string(req.ActivityType),
		Description:  req.ActivityType.Describe(),
		StoryText:    req.StoryText,
		Age:          req.StudentAge,
		Example:      activity.Example(req.ActivityType),
	})
	request.Validate = func(raw json.RawMessage) error {
		_, err := parseGenerated(req.ActivityType, raw)
		return err
	}

	resp, err := s.generator.Generate(ctx, request)
	if err != nil {
		return nil, "", err
	}
	content, err := parseGenerated(req.ActivityType, resp.Content)
	if err != nil {
		return nil, "", err
	}
	model := resp.Model
	if model == "" {
		model = s.generator.Model()
	}
	return content, model, nil
}

func parseGenerated(t activity.Type, raw []byte) (activity.Content, error) {
	cleaned, err := activity.Sanitize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", activity.ErrInvalidContent, err)
	}
	return activity.Parse(t, cleaned)
}

// degrade serves the previous row, then the fallback template, then fails.
func (s *contentCacheService) degrade(ctx context.Context, req ContentRequest, cause error) (ContentResult, error) {
	if result, ok := s.previous(ctx, req); ok {
		return result, nil
	}
	if s.config.FallbackEnabled {
		if content, ok := activity.Fallback(req.ActivityType, templateInput(req)); ok {
			return ContentResult{Content: content, Source: SourceFallback}, nil
		}
	}
	return ContentResult{}, generationFailed(cause)
}

func (s *contentCacheService) previous(ctx context.Context, req ContentRequest) (ContentResult, bool) {
	row, err := s.repo.Get(ctx, req.PlanID, req.DayIndex, string(req.ActivityType))
	if err != nil {
		return ContentResult{}, false
	}
	content, err := activity.Parse(req.ActivityType, row.Content)
	if err != nil {
		return ContentResult{}, false
	}
	return ContentResult{Content: content, Source: SourceStale, Hash: row.ContentHash, Model: row.Model}, true
}

func templateInput(req ContentRequest) activity.TemplateInput {
	return activity.TemplateInput{StoryText: req.StoryText, Vocabulary: req.Vocabulary}
}

// awaitPeer polls for the row another instance is generating.
func (s *contentCacheService) awaitPeer(ctx context.Context, req ContentRequest, hash string) (ContentResult, error) {
	key := req.Key()
	deadline := s.now().Add(s.config.WaitTimeout)
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		if result, ok := s.lookupFresh(ctx, req, hash); ok {
			return result, nil
		}
		if s.readStatus(ctx, key) == GenerationFailed && !s.locked(ctx, key) {
			return s.degrade(ctx, req, errors.New("generation failed on another instance"))
		}
		if !s.now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ContentResult{}, ctx.Err()
		case <-ticker.C:
		}
	}

	if result, ok := s.previous(ctx, req); ok {
		return result, nil
	}
	return ContentResult{}, ErrGenerationPending
}

func (s *contentCacheService) reserve(ctx context.Context, key string) (string, bool, error) {
	if s.redis == nil {
		return "", true, nil
	}
	token := uuid.NewString()
	ok, err := s.redis.SetNX(ctx, contentLockPrefix+key, token, s.config.LockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (s *contentCacheService) release(ctx context.Context, key, token string) {
	if s.redis == nil || token == "" {
		return
	}
	if err := releaseLockScript.Run(ctx, s.redis, []string{contentLockPrefix + key}, token).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to release content lock")
	}
}

func (s *contentCacheService) locked(ctx context.Context, key string) bool {
	if s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, contentLockPrefix+key).Result()
	return err == nil && n > 0
}

func (s *contentCacheService) setStatus(ctx context.Context, key string, status GenerationStatus) {
	if s.redis == nil {
		s.statusMu.Lock()
		s.localStatus[key] = status
		s.statusMu.Unlock()
		return
	}
	ttl := readyStatusTTL
	switch status {
	case GenerationPending:
		ttl = s.config.LockTTL
	case GenerationFailed:
		ttl = failedStatusTTL
	}
	if err := s.redis.Set(ctx, contentStatusPrefix+key, string(status), ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to store generation status")
	}
}

func (s *contentCacheService) readStatus(ctx context.Context, key string) GenerationStatus {
	if s.redis == nil {
		s.statusMu.Lock()
		defer s.statusMu.Unlock()
		if status, ok := s.localStatus[key]; ok {
			return status
		}
		return GenerationUnknown
	}
	value, err := s.redis.Get(ctx, contentStatusPrefix+key).Result()
	if err != nil {
		return GenerationUnknown
	}
	switch status := GenerationStatus(strings.TrimSpace(value)); status {
	case GenerationPending, GenerationReady, GenerationFailed:
		return status
	default:
		return GenerationUnknown
	}
}

func (s *contentCacheService) Status(ctx context.Context, req ContentRequest) (GenerationStatus, error) {
	if _, ok := s.lookupFresh(ctx, req, req.Hash()); ok {
		return GenerationReady, nil
	}
	status := s.readStatus(ctx, req.Key())
	if status == GenerationReady {
		// The stored row no longer matches the inputs.
		return GenerationUnknown, nil
	}
	return status, nil
}

func (s *contentCacheService) AnswerKey(ctx context.Context, req ContentRequest) (activity.Content, error) {
	row, err := s.repo.Get(ctx, req.PlanID, req.DayIndex, string(req.ActivityType))
	switch {
	case err == nil:
		content, derr := activity.Decode(req.ActivityType, row.Content)
		if derr == nil {
			return content, nil
		}
		s.logger.Warn().Err(derr).Str("key", req.Key()).Msg("stored answer key is unreadable")
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	if s.config.FallbackEnabled {
		if content, ok := activity.Fallback(req.ActivityType, templateInput(req)); ok {
			return content, nil
		}
	}
	return nil, ErrGenerationPending
}
