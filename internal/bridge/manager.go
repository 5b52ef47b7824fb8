package bridge

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/interact"
	"github.com/taskwire/taskwire/internal/models"
	"github.com/taskwire/taskwire/internal/session"
)

// GatewayClient is the slice of the gateway client the session manager
// needs: conversation lifecycle plus the four poll channels.
type GatewayClient interface {
	CreateConversation(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, contextID, text string) error
	session.Fetcher
}

// SessionManager maps chat threads to live gateway conversations. Each
// active thread carries its own session state, poll engine, inactivity
// monitor, and interaction responder.
type SessionManager struct {
	db       *gorm.DB
	adapter  Adapter
	client   GatewayClient
	timeout  time.Duration
	interval time.Duration
	idle     time.Duration
	clock    session.Clock

	mu      sync.RWMutex
	threads map[string]*activeThread // key: "channelID:threadID"
}

// activeThread pairs a DB conversation with its live polling state.
type activeThread struct {
	conv      *models.Conversation
	sess      *session.Session
	responder *interact.Responder
	cancel    context.CancelFunc

	// pendingInteraction holds the message id of the last unanswered
	// interaction prompt relayed to the thread, or "" when the next user
	// message should go to the gateway as plain text. Guarded by the
	// manager mutex.
	pendingInteraction string
	pendingType        string
	pendingData        []byte
}

// SessionManagerOpts holds parameters for creating a SessionManager.
type SessionManagerOpts struct {
	DB               *gorm.DB
	Adapter          Adapter
	Client           GatewayClient
	HeartbeatTimeout time.Duration // defaults to DefaultHeartbeatTimeout
	PollInterval     time.Duration // defaults to session.DefaultPollInterval
	IdleTimeout      time.Duration // defaults to session.DefaultIdleTimeout
	Clock            session.Clock // defaults to session.SystemClock
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(opts SessionManagerOpts) (*SessionManager, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bridge: session manager: db is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("bridge: session manager: gateway client is required")
	}
	timeout := opts.HeartbeatTimeout
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = session.SystemClock()
	}
	return &SessionManager{
		db:       opts.DB,
		adapter:  opts.Adapter,
		client:   opts.Client,
		timeout:  timeout,
		interval: opts.PollInterval,
		idle:     opts.IdleTimeout,
		clock:    clock,
		threads:  make(map[string]*activeThread),
	}, nil
}

// threadKey builds the map key for a thread.
func threadKey(channelID, threadID string) string {
	return channelID + ":" + threadID
}

// NewSession creates a gateway conversation, claims the thread for it, and
// starts the poll engine and inactivity monitor.
func (sm *SessionManager) NewSession(ctx context.Context, source, userName, threadID, channelID string) (*models.Conversation, error) {
	sessionID, err := sm.client.CreateConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: create gateway conversation: %w", err)
	}

	conv, err := AcquireConversation(sm.db, source, userName, threadID, channelID, sessionID, sm.timeout)
	if err != nil {
		// The gateway conversation is orphaned; it expires server-side.
		return nil, err
	}

	at, err := sm.startThread(ctx, conv, sessionID, channelID, threadID)
	if err != nil {
		ReleaseConversation(sm.db, conv.ID)
		return nil, err
	}

	key := threadKey(channelID, threadID)
	sm.mu.Lock()
	sm.threads[key] = at
	sm.mu.Unlock()

	log.Printf("bridge: conversation %d started [ch=%s thread=%s user=%s session=%s]",
		conv.ID, channelID, threadID, userName, sessionID)
	return conv, nil
}

// startThread builds the per-thread polling state and launches its
// goroutines. The returned thread is not yet registered in the map.
func (sm *SessionManager) startThread(ctx context.Context, conv *models.Conversation, sessionID, channelID, threadID string) (*activeThread, error) {
	sess := session.New(sessionID, sm.clock.Now())

	responder, err := interact.NewResponder(interact.ResponderOpts{
		Send: func(ctx context.Context, text string) error {
			return sm.client.SendMessage(ctx, sessionID, text)
		},
		Store: &gormResponseStore{db: sm.db, conversationID: conv.ID},
	})
	if err != nil {
		return nil, err
	}

	at := &activeThread{
		conv:      conv,
		sess:      sess,
		responder: responder,
	}

	runCtx, cancel := context.WithCancel(ctx)
	at.cancel = cancel

	engine, err := session.NewEngine(session.EngineOpts{
		Client:   sm.client,
		Session:  sess,
		Interval: sm.interval,
		Clock:    sm.clock,
		Sink:     &threadSink{sm: sm, at: at, channelID: channelID, threadID: threadID},
	})
	if err != nil {
		cancel()
		return nil, err
	}

	monitor, err := session.NewInactivityMonitor(session.InactivityOpts{
		Session:     sess,
		IdleTimeout: sm.idle,
		Clock:       sm.clock,
		OnClose: func() {
			if err := sm.closeIdle(channelID, threadID); err != nil {
				log.Printf("bridge: close idle conversation: %v", err)
			}
		},
	})
	if err != nil {
		cancel()
		return nil, err
	}

	go engine.Run(runCtx)
	go monitor.Run(runCtx)
	return at, nil
}

// Route delivers a user message to the active thread's conversation. If an
// interaction prompt is awaiting an answer, the message is routed to the
// responder instead of the gateway message endpoint.
func (sm *SessionManager) Route(ctx context.Context, channelID, threadID, userName, text string) error {
	key := threadKey(channelID, threadID)
	sm.mu.Lock()
	at, ok := sm.threads[key]
	var pendingKey, pendingType string
	var pendingData []byte
	if ok {
		pendingKey, pendingType, pendingData = at.pendingInteraction, at.pendingType, at.pendingData
		at.pendingInteraction, at.pendingType, at.pendingData = "", "", nil
	}
	sm.mu.Unlock()

	if !ok {
		return fmt.Errorf("bridge: no active conversation for %s", key)
	}

	sm.recordMessage(at.conv.ID, "", "user", userName, text)

	if pendingKey != "" {
		if err := sm.answerInteraction(ctx, at, pendingKey, pendingType, pendingData, text); err != nil {
			return err
		}
	} else if err := sm.client.SendMessage(ctx, at.sess.ID(), text); err != nil {
		return fmt.Errorf("bridge: route message: %w", err)
	}

	at.sess.Touch(sm.clock.Now())
	TouchConversation(sm.db, at.conv.ID)
	return nil
}

// answerInteraction maps a chat reply onto the pending interaction.
// Confirmations accept yes/no style answers; everything else sends the
// reply text verbatim.
func (sm *SessionManager) answerInteraction(ctx context.Context, at *activeThread, key, interactionType string, data []byte, text string) error {
	var sent bool
	var err error
	if interactionType == interact.TypeConfirmation {
		approved := isAffirmative(text)
		sent, err = at.responder.RespondConfirmation(ctx, key, data, approved)
	} else {
		sent, err = at.responder.Respond(ctx, key, interactionType, text)
	}
	if err != nil {
		return fmt.Errorf("bridge: answer interaction: %w", err)
	}
	if !sent {
		log.Printf("bridge: interaction %s already answered, reply dropped", key)
	}
	return nil
}

// isAffirmative interprets a chat reply as approval.
func isAffirmative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "approve", "approved", "ok", "confirm":
		return true
	}
	return false
}

// HasSession returns true if there is an active conversation for the
// thread/channel.
func (sm *SessionManager) HasSession(channelID, threadID string) bool {
	key := threadKey(channelID, threadID)
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.threads[key]
	return ok
}

// HasHistoricSession returns true if there is a closed or expired
// conversation in the database for the thread/channel (candidate for Resume).
func (sm *SessionManager) HasHistoricSession(channelID, threadID string) bool {
	var count int64
	sm.db.Model(&models.Conversation{}).
		Where("thread_id = ? AND channel_id = ? AND status IN ?",
			threadID, channelID, []string{"closed", "expired"}).
		Count(&count)
	return count > 0
}

// Resume starts a fresh gateway conversation for a thread with history,
// replaying prior context as the first message. The newMessage is the user
// input that triggered the resume and is appended to the context.
func (sm *SessionManager) Resume(ctx context.Context, channelID, threadID, userName, newMessage string) (*models.Conversation, error) {
	recovery, err := sm.buildRecoveryContext(channelID, threadID)
	if err != nil {
		return nil, fmt.Errorf("bridge: build recovery context: %w", err)
	}

	conv, err := sm.NewSession(ctx, "bridge", userName, threadID, channelID)
	if err != nil {
		return nil, err
	}

	prompt := recovery
	if newMessage != "" {
		if prompt != "" {
			prompt += "\n"
		}
		prompt += fmt.Sprintf("[user] %s: %s", userName, newMessage)
	}
	if prompt == "" {
		return conv, nil
	}

	if newMessage != "" {
		sm.recordMessage(conv.ID, "", "user", userName, newMessage)
	}
	if err := sm.client.SendMessage(ctx, conv.SessionID, prompt); err != nil {
		return conv, fmt.Errorf("bridge: send recovery context: %w", err)
	}

	log.Printf("bridge: conversation %d resumed [ch=%s thread=%s] recovery_len=%d",
		conv.ID, channelID, threadID, len(recovery))
	return conv, nil
}

// CloseSession stops polling and releases the thread.
func (sm *SessionManager) CloseSession(channelID, threadID string) error {
	key := threadKey(channelID, threadID)
	sm.mu.Lock()
	at, ok := sm.threads[key]
	if !ok {
		sm.mu.Unlock()
		return fmt.Errorf("bridge: no active conversation for %s", key)
	}
	delete(sm.threads, key)
	sm.mu.Unlock()

	at.cancel()
	return ReleaseConversation(sm.db, at.conv.ID)
}

// closeIdle is the inactivity monitor callback: close the thread and tell
// the channel why.
func (sm *SessionManager) closeIdle(channelID, threadID string) error {
	log.Printf("bridge: closing idle conversation [ch=%s thread=%s]", channelID, threadID)
	if sm.adapter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sm.adapter.Send(ctx, OutboundMessage{
			ChannelID: channelID,
			ThreadID:  threadID,
			Text:      "Conversation closed after inactivity. Mention me to start a new one.",
		})
	}
	return sm.CloseSession(channelID, threadID)
}

// buildRecoveryContext constructs a recovery prompt from stored transcript
// rows. Fallback: adapter thread history.
func (sm *SessionManager) buildRecoveryContext(channelID, threadID string) (string, error) {
	var msgs []models.ConversationMessage
	result := sm.db.Where("conversation_id IN (?)",
		sm.db.Model(&models.Conversation{}).
			Select("id").
			Where("thread_id = ? AND channel_id = ?", threadID, channelID),
	).Order("conversation_id, sequence").Find(&msgs)

	if result.Error != nil {
		return "", fmt.Errorf("query transcript: %w", result.Error)
	}

	if len(msgs) > 0 {
		return formatTranscript(msgs), nil
	}

	if sm.adapter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		history, err := sm.adapter.ThreadHistory(ctx, channelID, threadID, 50)
		if err == nil && len(history) > 0 {
			return formatThreadHistory(history), nil
		}
	}

	return "", nil
}

// recordMessage appends a transcript row. Best-effort: duplicate message
// ids are skipped silently, other errors are logged.
func (sm *SessionManager) recordMessage(conversationID uint, messageID, role, userName, content string) {
	var maxSeq int
	sm.db.Model(&models.ConversationMessage{}).
		Where("conversation_id = ?", conversationID).
		Select("COALESCE(MAX(sequence), 0)").Scan(&maxSeq)

	row := models.ConversationMessage{
		ConversationID: conversationID,
		MessageID:      messageID,
		Sequence:       maxSeq + 1,
		Role:           role,
		UserName:       userName,
		Content:        content,
	}
	if messageID == "" {
		row.MessageID = fmt.Sprintf("local-%d-%d", conversationID, maxSeq+1)
	}
	if err := sm.db.Create(&row).Error; err != nil {
		log.Printf("bridge: record message for conversation %d: %v", conversationID, err)
	}
}

// formatTranscript builds a recovery prompt from transcript rows.
func formatTranscript(msgs []models.ConversationMessage) string {
	var b strings.Builder
	b.WriteString("Previous conversation context:\n\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}

// formatThreadHistory builds a recovery prompt from adapter thread messages.
func formatThreadHistory(msgs []ThreadMessage) string {
	var b strings.Builder
	b.WriteString("Previous thread context (from chat platform):\n\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.UserName, m.Text)
	}
	return b.String()
}

// threadSink receives merged poll state for one thread: persist assistant
// messages, relay them to chat, surface interaction prompts, and keep the
// conversation row's counters current.
type threadSink struct {
	sm        *SessionManager
	at        *activeThread
	channelID string
	threadID  string

	registry interact.Registry
	once     sync.Once
}

func (s *threadSink) OnMessages(msgs []session.ChatMessage) {
	s.once.Do(func() { s.registry = interact.NewRegistry() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, msg := range msgs {
		role := "user"
		userName := s.at.conv.UserName
		if msg.Role == session.RoleAssistant {
			role = "assistant"
			userName = ""
		}
		s.sm.recordMessage(s.at.conv.ID, msg.ID, role, userName, msg.Content)

		if msg.Role != session.RoleAssistant {
			continue
		}

		text := msg.Content
		if req := interact.Detect(msg.Content); req != nil {
			key := msg.ID
			if req.Type == interact.TypeConfirmation {
				if cid := interact.ConfirmationID(req.Data); cid != "" {
					key = cid
				}
			}
			if prompt, ok := s.registry.RenderPrompt(req); ok && !s.at.responder.Responded(key) {
				text = prompt
				s.sm.mu.Lock()
				s.at.pendingInteraction = key
				s.at.pendingType = req.Type
				s.at.pendingData = req.Data
				s.sm.mu.Unlock()
			}
		}

		if s.sm.adapter == nil {
			continue
		}
		for _, chunk := range chunkMessage(text, 2000) {
			if err := s.sm.adapter.Send(ctx, OutboundMessage{
				ChannelID: s.channelID,
				ThreadID:  s.threadID,
				Text:      chunk,
			}); err != nil {
				log.Printf("bridge: relay conversation %d: send error: %v", s.at.conv.ID, err)
			}
		}
	}
}

func (s *threadSink) OnCounts(pending, tasks, events int) {
	err := s.sm.db.Model(&models.Conversation{}).
		Where("id = ?", s.at.conv.ID).
		Updates(map[string]interface{}{
			"pending_count": pending,
			"task_count":    tasks,
			"event_count":   events,
		}).Error
	if err != nil {
		log.Printf("bridge: update counters for conversation %d: %v", s.at.conv.ID, err)
	}
}

// chunkMessage splits text into chunks of at most maxLen characters.
// It prefers breaking at newlines when possible.
func chunkMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 2000
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		// Look for a newline in the second half of the chunk to break at.
		chunk := text[:maxLen]
		breakAt := -1
		half := maxLen / 2
		for i := maxLen - 1; i >= half; i-- {
			if chunk[i] == '\n' {
				breakAt = i
				break
			}
		}

		if breakAt >= 0 {
			chunks = append(chunks, text[:breakAt])
			text = text[breakAt+1:] // skip the newline
		} else {
			chunks = append(chunks, chunk)
			text = text[maxLen:]
		}
	}
	return chunks
}

// gormResponseStore persists interaction responses so the single-response
// rule survives restarts.
type gormResponseStore struct {
	db             *gorm.DB
	conversationID uint
}

func (s *gormResponseStore) HasResponse(key string) bool {
	var count int64
	s.db.Model(&models.InteractionResponse{}).
		Where("conversation_id = ? AND message_id = ?", s.conversationID, key).
		Count(&count)
	return count > 0
}

func (s *gormResponseStore) SaveResponse(key, interactionType, response string) {
	row := models.InteractionResponse{
		ConversationID:  s.conversationID,
		MessageID:       key,
		InteractionType: interactionType,
		Response:        response,
	}
	if err := s.db.Create(&row).Error; err != nil {
		log.Printf("bridge: save interaction response %s: %v", key, err)
	}
}
