package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/crmforge/agentdesk"
	"github.com/crmforge/agentdesk/agent"
	"github.com/crmforge/agentdesk/approval"
	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
	"github.com/crmforge/agentdesk/logging"
	"github.com/crmforge/agentdesk/model"
	"github.com/crmforge/agentdesk/model/anthropic"
	"github.com/crmforge/agentdesk/model/openai"
	"github.com/crmforge/agentdesk/session"
	"github.com/crmforge/agentdesk/store/sqlite"
)

// app holds the wired pipeline shared by the subcommands. The sqlite handle
// is nil when running fully in memory.
type app struct {
	desk     *agentdesk.AgentDesk
	workflow *approval.Workflow
	domain   domain.Store
	db       *sqlite.Store
	uc       core.UserContext
	logger   logging.Logger
}

func (a *app) wire(cfg *viper.Viper) error {
	a.uc = core.UserContext{
		UserID:         cfg.GetString("user"),
		OrganizationID: cfg.GetString("org"),
		Role:           cfg.GetString("role"),
	}
	if !a.uc.Valid() {
		return fmt.Errorf("both --org and --user are required (or AGENTDESK_ORG / AGENTDESK_USER)")
	}

	if cfg.GetBool("verbose") {
		a.logger = logging.NewJSONLogger(os.Stderr, slog.LevelDebug)
	}

	var (
		domainStore   domain.Store
		sessionStore  session.Store
		approvalStore approval.Store
	)
	if path := cfg.GetString("db"); path != "" {
		db, err := sqlite.Open(path, a.logger)
		if err != nil {
			return err
		}
		a.db = db
		domainStore = db
		sessionStore = db.Sessions()
		approvalStore = db.Approvals()
	} else {
		inMem := domain.NewInMemoryStore()
		domainStore = inMem
		sessionStore = session.NewInMemoryStore()
		approvalStore = approval.NewInMemoryStore(inMem)
	}
	a.domain = domainStore
	a.workflow = approval.NewWorkflow(approvalStore, a.logger)

	mdl, err := buildModel(cfg.GetString("provider"))
	if err != nil {
		return err
	}

	desk, err := agentdesk.New(func(o *agentdesk.Options) {
		o.Model = mdl
		o.DomainStore = domainStore
		o.SessionStore = sessionStore
		o.ApprovalStore = approvalStore
		o.Logger = a.logger
		if name := cfg.GetString("model"); name != "" {
			o.Specialists = map[core.Specialist]agent.Overrides{}
			for _, sp := range core.Specialists() {
				o.Specialists[sp] = agent.Overrides{Model: name}
			}
		}
		if name := cfg.GetString("triage-model"); name != "" {
			o.Triage = agent.Overrides{Model: name}
		}
	})
	if err != nil {
		return err
	}
	a.desk = desk
	return nil
}

func buildModel(provider string) (model.Model, error) {
	switch provider {
	case "openai":
		return openai.NewModel(), nil
	case "anthropic":
		return anthropic.NewModel(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want openai or anthropic)", provider)
	}
}

func (a *app) close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
