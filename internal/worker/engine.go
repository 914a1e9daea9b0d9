package worker

import (
	"math/rand"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/avatar"
	"github.com/prospectra/outreach-orchestrator/internal/composer"
	"github.com/prospectra/outreach-orchestrator/internal/config"
	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/notify"
	"github.com/prospectra/outreach-orchestrator/internal/quota"
	"github.com/prospectra/outreach-orchestrator/internal/ratelimit"
	"github.com/prospectra/outreach-orchestrator/internal/social"
	"github.com/prospectra/outreach-orchestrator/internal/store"
	"github.com/prospectra/outreach-orchestrator/internal/strategy"
)

// Engine holds everything the polling loops need. One Engine drives one
// provider account.
type Engine struct {
	cfg       *config.Config
	store     *store.Store
	quota     *quota.Engine
	limiter   *ratelimit.Limiter
	filter    *avatar.Filter
	pipeline  *strategy.Pipeline
	composer  composer.Composer
	client    social.Client
	notifier  notify.Notifier
	accountID int64

	now  func() time.Time
	rand *rand.Rand
}

// Deps bundles the collaborators for NewEngine
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Quota    *quota.Engine
	Limiter  *ratelimit.Limiter
	Filter   *avatar.Filter
	Pipeline *strategy.Pipeline
	Composer composer.Composer
	Client   social.Client
	Notifier notify.Notifier

	AccountID int64
}

// NewEngine wires an engine from its dependencies
func NewEngine(d Deps) *Engine {
	notifier := d.Notifier
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Engine{
		cfg:       d.Config,
		store:     d.Store,
		quota:     d.Quota,
		limiter:   d.Limiter,
		filter:    d.Filter,
		pipeline:  d.Pipeline,
		composer:  d.Composer,
		client:    d.Client,
		notifier:  notifier,
		accountID: d.AccountID,
		now:       time.Now,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Loop names, also the warm-up order: feeders before consumers.
const (
	LoopScan     = "connection_scanner"
	LoopQueue    = "task_queue"
	LoopReply    = "reply_handler"
	LoopExecutor = "action_executor"
	LoopMetrics  = "metrics"
)

// RegisterLoops attaches the engine's loops to a supervisor in warm-up
// order.
func (e *Engine) RegisterLoops(s *Supervisor) {
	w := e.cfg.Workers
	s.Register(LoopScan, w.ScanInterval, e.ScanOnce)
	s.Register(LoopQueue, w.QueueInterval, e.DispatchOnce)
	s.Register(LoopReply, w.ReplyInterval, e.ReplyOnce)
	s.Register(LoopExecutor, w.ExecutorInterval, e.ExecuteOnce)
	s.Register(LoopMetrics, w.MetricsInterval, e.MetricsOnce)
}

// eligibleForOutreach applies the prospect gate, relaxing the avatar
// rule when the deployment does not require a match.
func (e *Engine) eligibleForOutreach(p *domain.Prospect) (bool, string) {
	reason := p.IneligibleReason()
	if reason == "avatar_mismatch" && !e.cfg.Outreach.RequireAvatar {
		return true, ""
	}
	return reason == "", reason
}

// jitter returns a uniform duration in [0, max)
func (e *Engine) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(e.rand.Int63n(int64(max)))
}
