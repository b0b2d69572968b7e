package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/logging"
	"github.com/crmforge/agentdesk/session"
)

// HistoryLimit caps how many trailing conversation messages feed the context
// block.
const HistoryLimit = 5

// topicVocabulary is the fixed keyword set driving the heuristic topic
// summary. Matching is substring-based, not semantic.
var topicVocabulary = []string{"customers", "orders", "quotes", "invoices", "analytics"}

// Context is the assembled memory snapshot for one agent turn.
type Context struct {
	Working      core.WorkingMemory
	History      []core.Message
	TopicSummary string
}

// Empty reports whether there is nothing to render.
func (c Context) Empty() bool {
	return c.Working.Empty() && len(c.History) == 0
}

// Assembler builds memory contexts from the working-memory store and the
// conversation store. Both fetches run concurrently; working-memory failures
// degrade to an empty memory rather than failing the turn.
type Assembler struct {
	working  WorkingStore
	sessions session.Store
	scope    Scope
	logger   logging.Logger
}

// NewAssembler constructs an Assembler. scope is the working-memory key shape
// used when Assemble is called with an empty scope; sessions may be nil when
// the caller never passes a conversation id.
func NewAssembler(working WorkingStore, sessions session.Store, scope Scope, logger logging.Logger) *Assembler {
	if scope == "" {
		scope = ScopeUser
	}
	return &Assembler{
		working:  working,
		sessions: sessions,
		scope:    scope,
		logger:   logging.OrNoOp(logger),
	}
}

// Assemble fetches working memory and (when conversationID is given) the last
// messages of the conversation, in parallel, then derives the topic summary.
// scope chooses the working-memory key and must match the scope the caller
// writes under; empty falls back to the assembler's default. Added latency is
// bounded by the slower of the two fetches.
func (a *Assembler) Assemble(ctx context.Context, scope Scope, orgID, userID, conversationID string) Context {
	var (
		wg      sync.WaitGroup
		working *core.WorkingMemory
		history []core.Message
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		working = a.fetchWorking(ctx, scope, orgID, userID, conversationID)
	}()

	if conversationID != "" && a.sessions != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := a.sessions.Get(ctx, orgID, conversationID)
			if err != nil {
				a.logger.Debug("memory.history.unavailable", "conversation_id", conversationID, "error", err.Error())
				return
			}
			history = rec.LastMessages(HistoryLimit)
		}()
	}

	wg.Wait()

	out := Context{History: history}
	if working != nil {
		out.Working = *working
	}
	out.Working.OrganizationID = orgID
	out.Working.UserID = userID
	out.TopicSummary = summarizeTopics(out.Working, history)
	return out
}

// fetchWorking returns nil for both "absent" and "store unavailable" — memory
// is an enhancement, not a correctness requirement for the agent to respond.
func (a *Assembler) fetchWorking(ctx context.Context, scope Scope, orgID, userID, conversationID string) *core.WorkingMemory {
	if a.working == nil {
		return nil
	}
	if scope == "" {
		scope = a.scope
	}
	key := UserKey(orgID, userID)
	if scope == ScopeConversation && conversationID != "" {
		key = ConversationKey(orgID, conversationID)
	}
	wm, err := a.working.Get(ctx, key)
	if err != nil {
		a.logger.Warn("memory.working.unavailable", "org_id", orgID, "error", err.Error())
		return nil
	}
	return wm
}

// summarizeTopics scans recent actions and history for the fixed topic
// vocabulary. Degrades to the empty string when nothing matches.
func summarizeTopics(wm core.WorkingMemory, history []core.Message) string {
	seen := map[string]bool{}
	scan := func(text string) {
		lower := strings.ToLower(text)
		for _, topic := range topicVocabulary {
			// Accept the singular form too ("order" matches "orders").
			if strings.Contains(lower, topic) || strings.Contains(lower, strings.TrimSuffix(topic, "s")) {
				seen[topic] = true
			}
		}
	}
	for _, action := range wm.RecentActions {
		scan(action)
	}
	for _, msg := range history {
		scan(msg.Content)
	}
	if len(seen) == 0 {
		return ""
	}
	topics := make([]string, 0, len(seen))
	for _, topic := range topicVocabulary { // vocabulary order keeps output stable
		if seen[topic] {
			topics = append(topics, topic)
		}
	}
	return "Recent topics: " + strings.Join(topics, ", ")
}

// Format renders the bounded context block injected ahead of the system
// prompt. It returns the empty string when the context is empty so callers
// never inject stray wrapper tags with nothing to say.
func Format(c Context) string {
	if c.Empty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("<session_context>\n")
	if c.Working.CurrentPage != "" {
		fmt.Fprintf(&b, "Current page: %s\n", c.Working.CurrentPage)
	}
	if c.Working.ActiveEntityID != "" {
		fmt.Fprintf(&b, "Active entity: %s\n", c.Working.ActiveEntityID)
	}
	if len(c.Working.RecentActions) > 0 {
		fmt.Fprintf(&b, "Recent actions: %s\n", strings.Join(c.Working.RecentActions, "; "))
	}
	if len(c.Working.PendingApprovalIDs) > 0 {
		sorted := append([]string(nil), c.Working.PendingApprovalIDs...)
		sort.Strings(sorted)
		fmt.Fprintf(&b, "Pending approvals: %s\n", strings.Join(sorted, ", "))
	}
	if c.Working.DraftInProgress != "" {
		fmt.Fprintf(&b, "Draft in progress: %s\n", c.Working.DraftInProgress)
	}
	if c.TopicSummary != "" {
		b.WriteString(c.TopicSummary)
		b.WriteString("\n")
	}
	if n := len(c.History); n > 0 {
		fmt.Fprintf(&b, "Last %d message(s) of this conversation precede the current turn.\n", n)
	}
	b.WriteString("</session_context>")
	return b.String()
}
