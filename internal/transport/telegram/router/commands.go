package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "castbot/internal/runtime/supervisor"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
	"castbot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdmin
)

type Command struct {
	// Name is the bare command word, e.g. "broadcast".
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackAccess controls who can trigger an inline-button callback. The
// zero value is admin-only.
type CallbackAccess int

const (
	CallbackAccessAdmin CallbackAccess = iota
	CallbackAccessEveryone
)

type CallbackRoute struct {
	Plugin      string
	Action      string
	Description string
	Access      CallbackAccess
	Timeout     time.Duration
	Handle      CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string // command name or callback key
	Args    []string
	Payload string // callback payload (raw string)
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
	IsAdmin bool
}

// Authorizer decides who is an admin. The allow-list may change at runtime.
type Authorizer interface {
	IsAdmin(id int64) bool
}

const (
	textUnknown  = "Unknown command. Try /help"
	textAdmins   = "⛔ Admins only."
	textBusy     = "busy, try again"
	jobQueueSize = 64
)

type CommandManager struct {
	mu       sync.RWMutex
	cmds     map[string]*Command
	alias    map[string]*Command
	fallback HandlerFunc

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute // plugin -> action -> route

	log     logx.Logger
	adapter kit.Adapter
	auth    Authorizer

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// jobs is sharded by chat so one chat's updates run in arrival order.
	jobs []chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, auth Authorizer, workers int) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 2)
	}
	jobs := make([]chan func(), workers)
	for i := range jobs {
		jobs[i] = make(chan func(), jobQueueSize)
	}
	return &CommandManager{
		cmds:      map[string]*Command{},
		alias:     map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       log,
		adapter:   adapter,
		auth:      auth,
		jobs:      jobs,
	}
}

func (m *CommandManager) isAdmin(id int64) bool {
	return m.auth != nil && m.auth.IsAdmin(id)
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue hands fn to the worker owning key. It never blocks and is
// safe after the queues are closed.
func (m *CommandManager) tryEnqueue(key int64, fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if key < 0 {
		key = -key
	}
	select {
	case m.jobs[key%int64(len(m.jobs))] <- fn:
		return true
	default:
		return false
	}
}

// SetFallback installs the handler for non-command messages.
func (m *CommandManager) SetFallback(h HandlerFunc) {
	m.mu.Lock()
	m.fallback = h
	m.mu.Unlock()
}

// SetRegistry replaces every command and callback route. /help is always
// added.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	helper := Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show this help",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			_, err := m.helpMessage(req.IsAdmin).Send(ctx, req.Adapter, req.Chat)
			return err
		},
	}
	cmds = append(cmds, helper)

	byName := map[string]*Command{}
	alias := map[string]*Command{}
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		for _, a := range c.Aliases {
			if sa := sanitizeTelegramCommand(a); sa != "" && sa != name {
				alias[sa] = &cc
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		p := strings.TrimSpace(r.Plugin)
		a := strings.TrimSpace(r.Action)
		if p == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[p] == nil {
			cb[p] = map[string]CallbackRoute{}
		}
		cb[p][a] = r
	}

	m.mu.Lock()
	m.cmds = byName
	m.alias = alias
	m.mu.Unlock()

	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildTelegramMenuCommands(m.commands())
		run := func(parent context.Context) {
			ctx, cancel := context.WithTimeout(parent, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}
		if sup := m.Supervisor(); sup != nil {
			sup.Go0("telegram.menu.update", run)
		} else {
			go run(context.Background())
		}
	}
}

// commands returns the registered commands sorted by name.
func (m *CommandManager) commands() []Command {
	m.mu.RLock()
	out := make([]Command, 0, len(m.cmds))
	for _, c := range m.cmds {
		out = append(out, *c)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", len(m.jobs)), logx.Int("job_queue_cap", jobQueueSize))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setSupervisor(sup, false)
			for _, q := range m.jobs {
				close(q)
			}
		})
	}

	for idx, q := range m.jobs {
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-q:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(root, up)
	case kit.UpdateCallback:
		m.routeCallback(root, up)
	}
}

// parseCommand splits "/name@bot a b" into its lowercase name and args.
func parseCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	name, args, isCmd := parseCommand(msg.Text)
	if !isCmd {
		m.mu.RLock()
		fb := m.fallback
		m.mu.RUnlock()
		if fb != nil {
			m.enqueue(root, up, chat, msg.FromID, "message", nil, "", fb, 0)
		}
		return
	}

	m.mu.RLock()
	cmd, ok := m.cmds[name]
	if !ok {
		cmd, ok = m.alias[name]
	}
	m.mu.RUnlock()
	if !ok {
		_, _ = m.adapter.SendText(root, chat, textUnknown, nil)
		return
	}
	if cmd.Access == AccessAdmin && !m.isAdmin(msg.FromID) {
		_, _ = m.adapter.SendText(root, chat, textAdmins, nil)
		return
	}
	if !m.enqueue(root, up, chat, msg.FromID, cmd.Name, args, "", cmd.Handle, cmd.Timeout) {
		_, _ = m.adapter.SendText(root, chat, textBusy, nil)
	}
}

func (m *CommandManager) enqueue(root context.Context, up kit.Update, chat kit.ChatTarget, from int64, command string, args []string, payload string, h HandlerFunc, timeout time.Duration, after ...func()) bool {
	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		Args:    args,
		Payload: payload,
		ReqID:   rid,
		Adapter: m.adapter,
		IsAdmin: m.isAdmin(from),
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
	final := Chain(h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	return m.tryEnqueue(chat.ChatID, func() {
		_ = final(root, req)
		for _, fn := range after {
			fn()
		}
	})
}

func (m *CommandManager) routeCallback(root context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	plugin, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		return
	}

	m.cbMu.RLock()
	route, ok := m.callbacks[plugin][action]
	m.cbMu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}
	if route.Access == CallbackAccessAdmin && !m.isAdmin(cb.FromID) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "forbidden")
		return
	}

	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	// Always stop the client's loading spinner.
	done := func() { _ = m.adapter.AnswerCallback(root, cb.ID, "") }
	if !m.enqueue(root, up, chat, cb.FromID, "cb:"+plugin+":"+action, nil, payload, h, route.Timeout, done) {
		_ = m.adapter.AnswerCallback(root, cb.ID, textBusy)
	}
}
