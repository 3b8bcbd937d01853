package tui

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dropdeck/dropdeck/internal/api"
	"github.com/dropdeck/dropdeck/internal/config"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/search"
	"github.com/dropdeck/dropdeck/internal/status"
	"github.com/dropdeck/dropdeck/internal/tui/keys"
	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/dropdeck/dropdeck/internal/tui/viewmodel"
	"github.com/dropdeck/dropdeck/internal/tui/views"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	grpcstatus "google.golang.org/grpc/status"
)

const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageDetails       = "details"
	pageSearch        = "search"
	pageNotifications = "notifications"
	pageDiscover      = "discover"
	pageInvite        = "invite"
	pageHelp          = "help"
	pageSignIn        = "signin"

	requestTimeout   = 15 * time.Second
	typingInterval   = 2 * time.Second
	watchRetryDelay  = 2 * time.Second
	statusRefreshGap = 30 * time.Second
)

// Backend is the daemon client the TUI drives.
type Backend interface {
	viewmodel.Backend
	Watch(ctx context.Context, namespaces ...string) (<-chan api.Event, <-chan error, error)
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	backend  Backend
	cfg      *config.Config
	vm       *viewmodel.ViewModel
	registry *keys.Registry
	flash    *ui.FlashModel

	root     *tview.Flex
	pages    *ui.Pages
	crumbs   *ui.Crumbs
	menu     *ui.Menu
	logo     *ui.Logo
	info     *ui.SessionInfo
	prompt   *ui.Prompt
	flashBar *ui.FlashBar

	convList *views.ConversationList
	thread   *views.MessageThread
	details  *views.ConversationInfo
	searchV  *views.SearchView
	notifs   *views.NotificationsView
	discover *views.DiscoverView
	invite   *views.InviteView
	help     *views.HelpView
	signIn   *views.SignInView

	components map[string]ui.Component
	lastTyping time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(b Backend, cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		backend:  b,
		cfg:      cfg,
		vm:       viewmodel.New(b),
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(),
		pages:    ui.NewPages(),
		crumbs:   ui.NewCrumbs(theme),
		menu:     ui.NewMenu(theme),
		logo:     ui.NewLogo(theme),
		info:     ui.NewSessionInfo(theme),
		prompt:   ui.NewPrompt(theme),
		flashBar: ui.NewFlashBar(theme),
		convList: views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		details:  views.NewConversationInfo(theme),
		searchV:  views.NewSearchView(theme),
		notifs:   views.NewNotificationsView(theme),
		discover: views.NewDiscoverView(theme),
		invite:   views.NewInviteView(theme),
		help:     views.NewHelpView(theme),
		signIn:   views.NewSignInView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}

	a.setupLayout()
	a.setupBindings()
	a.setupCallbacks()

	return a
}

func (a *App) setupLayout() {
	a.components = map[string]ui.Component{
		pageConversations: a.convList,
		pageThread:        a.thread,
		pageDetails:       a.details,
		pageSearch:        a.searchV,
		pageNotifications: a.notifs,
		pageDiscover:      a.discover,
		pageInvite:        a.invite,
		pageHelp:          a.help,
		pageSignIn:        a.signIn,
	}
	for name, c := range a.components {
		a.pages.AddPage(name, c.(tview.Primitive), true, false)
		c.Init()
	}
	for name, c := range a.components {
		a.crumbs.SetLabel(name, strings.ToLower(c.Name()))
	}

	header := tview.NewFlex().
		AddItem(a.info, 0, 1, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(a.logo, 26, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)
	a.root.SetBackgroundColor(a.theme.BgColor)

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		if c, ok := a.components[a.pages.Current()]; ok {
			a.menu.Update(c.Hints())
		}
	})

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.captureInput)
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(
		keys.Rune(':', "command", func() { a.showPrompt(ui.PromptCommand) }),
		keys.Rune('?', "help", a.showHelp),
		keys.Rune('q', "quit", a.quitOrBack),
		keys.Rune('n', "notifications", a.showNotifications),
		keys.Rune('s', "search", a.showSearch),
		keys.Key(tcell.KeyEscape, "back", a.back),
	)

	a.registry.AddView(pageConversations,
		keys.Rune('/', "filter", func() { a.showPrompt(ui.PromptFilter) }),
		keys.Rune('0', "clear filter", a.convList.ClearFilter),
		keys.Rune('p', "pin", func() { a.togglePin(a.convList.SelectedID()) }),
		keys.Rune('d', "details", func() { a.showDetails(a.convList.SelectedID()) }),
	)
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageConversations, keys.Rune(rune('0'+n), "jump", func() {
			if id := a.convList.ByIndex(n); id != "" {
				a.openConversation(id)
			}
		}))
	}

	a.registry.AddView(pageThread,
		keys.Rune('i', "compose", func() { a.app.SetFocus(a.thread.Composer()) }),
		keys.Rune('f', "find", func() { a.showPrompt(ui.PromptFind) }),
		keys.Rune('n', "next match", func() { a.navigate(search.Next) }),
		keys.Rune('N', "previous match", func() { a.navigate(search.Prev) }),
		keys.Rune('o', "older", a.loadOlder),
		keys.Rune('d', "details", func() { a.showDetails(a.vm.Active()) }),
		keys.Rune('p', "pin", func() { a.togglePin(a.vm.Active()) }),
	)

	a.registry.AddView(pageNotifications,
		keys.Rune('a', "accept", func() { a.decide(model.Accept) }),
		keys.Rune('x', "decline", func() { a.decide(model.Decline) }),
		keys.Rune('r', "read all", a.markAllRead),
	)

	a.registry.AddView(pageSearch,
		keys.Key(tcell.KeyTab, "results", func() { a.app.SetFocus(a.searchV.Results()) }),
		keys.Key(tcell.KeyBacktab, "query", func() { a.app.SetFocus(a.searchV.Input()) }),
	)
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, _ int) {
		if id := a.convList.ByIndex(row); id != "" {
			a.openConversation(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		a.async("send", func(ctx context.Context) error {
			return a.vm.Send(ctx, text, "")
		}, nil)
	})
	a.thread.SetOnInput(func() {
		if time.Since(a.lastTyping) < typingInterval {
			return
		}
		a.lastTyping = time.Now()
		a.async("typing", a.vm.Typing, nil)
	})

	a.searchV.SetOnQuery(a.runSearch)
	a.searchV.Results().SetSelectedFunc(func(_, _ int) {
		hit, ok := a.searchV.SelectedResult()
		if !ok {
			return
		}
		switch hit.Kind {
		case views.HitMessage, views.HitGroup:
			a.openConversation(hit.ConversationID)
		case views.HitFile:
			a.flash.Info(fmt.Sprintf("file %s (%s)", hit.Label, hit.ID))
		}
	})

	a.notifs.SetSelectedFunc(func(_, _ int) {
		if n, ok := a.notifs.Selected(); ok && n.ConversationID != "" && !n.Actionable() {
			a.openConversation(n.ConversationID)
		}
	})

	a.discover.SetSelectedFunc(func(_, _ int) {
		if g, ok := a.discover.Selected(); ok {
			a.join(g.ID)
		}
	})

	a.signIn.SetOnSubmit(func(c views.Credentials) {
		a.signIn.ShowMessage("Signing in...", false)
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
			defer cancel()
			resp, err := a.vm.SignIn(ctx, c.Email, c.Password, c.CaptchaToken)
			if err == nil {
				err = a.vm.LoadStatus(ctx)
			}
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.signIn.ShowMessage(errorMessage(err), true)
					return
				}
				a.signIn.Reset()
				a.flash.Info("Signed in as " + resp.Username)
				a.apply(viewmodel.ChangeStatus)
			})
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(text)
		case ui.PromptFilter:
			a.convList.SetFilter(text)
		case ui.PromptFind:
			a.find(text)
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) captureInput(ev *tcell.EventKey) *tcell.EventKey {
	current := a.pages.Current()
	focused := a.app.GetFocus()

	if focused == a.prompt.InputField {
		return ev
	}
	if current == pageSignIn {
		return ev
	}
	if focused == a.thread.Composer() {
		if ev.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		return ev
	}
	if focused == a.searchV.Input() {
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyTab:
		default:
			return ev
		}
	}

	if a.registry.HandleEvent(current, ev) {
		return nil
	}
	return ev
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	a.pages.Reset(pageConversations)
	a.focusCurrent()

	go a.bootstrap()
	go a.watchEvents()
	go a.tick()

	defer a.cancel()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) bootstrap() {
	ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
	defer cancel()

	if err := a.vm.LoadStatus(ctx); err != nil {
		a.fail("status", err)
		return
	}
	change := viewmodel.ChangeStatus
	if a.vm.SignedIn() {
		change |= a.loadSignedIn(ctx)
	}
	a.app.QueueUpdateDraw(func() { a.apply(change) })
}

// loadSignedIn fetches what the home page shows. Failures are flashed.
func (a *App) loadSignedIn(ctx context.Context) viewmodel.Change {
	var change viewmodel.Change
	if err := a.vm.LoadConversations(ctx); err != nil {
		a.fail("conversations", err)
	} else {
		change |= viewmodel.ChangeConversations
	}
	if err := a.vm.LoadNotifications(ctx); err != nil {
		a.fail("notifications", err)
	} else {
		change |= viewmodel.ChangeNotifications
	}
	return change
}

func (a *App) watchEvents() {
	for {
		events, errc, err := a.backend.Watch(a.ctx)
		if err == nil {
			for evt := range events {
				change, herr := a.vm.HandleEvent(a.ctx, evt)
				if herr != nil {
					a.fail("refresh", herr)
				}
				if change != 0 {
					a.app.QueueUpdateDraw(func() { a.apply(change) })
				}
			}
			err = <-errc
		}
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.flash.Warn("Lost daemon event stream, reconnecting: " + errorMessage(err))
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(watchRetryDelay):
		}
	}
}

// tick keeps the flash bar and the header uptime current.
func (a *App) tick() {
	flashTicker := time.NewTicker(time.Second)
	defer flashTicker.Stop()
	statusTicker := time.NewTicker(statusRefreshGap)
	defer statusTicker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.flash.Watch():
			a.app.QueueUpdateDraw(a.renderFlash)
		case <-flashTicker.C:
			a.app.QueueUpdateDraw(a.renderFlash)
		case <-statusTicker.C:
			if err := a.vm.LoadStatus(a.ctx); err == nil {
				a.app.QueueUpdateDraw(a.renderStatus)
			}
		}
	}
}

// apply redraws the parts of the screen a change touched. Must run on the
// UI goroutine.
func (a *App) apply(change viewmodel.Change) {
	if change.Has(viewmodel.ChangeStatus) {
		a.renderStatus()
		a.syncSignInPage()
	}
	if change.Has(viewmodel.ChangeConversations) {
		a.convList.Update(a.vm.Conversations())
		if a.pages.Current() == pageDetails {
			a.renderDetails(a.vm.Active())
		}
		a.renderStatus()
	}
	if change.Has(viewmodel.ChangeMessages) {
		a.renderThread()
		if a.vm.Active() == "" && a.pages.Current() == pageThread {
			a.pages.Reset(pageConversations)
			a.focusCurrent()
		}
	}
	if change.Has(viewmodel.ChangeNotifications) {
		a.notifs.Update(a.vm.Notifications())
		a.renderStatus()
	}
	if change.Has(viewmodel.ChangeTyping) {
		a.thread.SetTyping(a.vm.TypingNames())
	}
	if change.Has(viewmodel.ChangeToast) {
		if t, ok := a.vm.TakeToast(); ok {
			a.showToast(t)
		}
	}
}

func (a *App) showToast(t viewmodel.Toast) {
	switch t.Kind {
	case viewmodel.ToastNotice:
		a.flash.Notice(t.Text)
	case viewmodel.ToastSignedOut:
		a.flash.Stick(t.Text, ui.FlashWarn)
	default:
		a.flash.Warn(t.Text)
	}
}

func (a *App) syncSignInPage() {
	st := a.vm.Status()
	onSignIn := a.pages.Current() == pageSignIn
	switch {
	case !st.SignedIn && st.Connection == status.AuthRequired && !onSignIn:
		a.pages.Reset(pageSignIn)
		a.focusCurrent()
	case st.SignedIn && onSignIn:
		a.pages.Reset(pageConversations)
		a.focusCurrent()
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
			defer cancel()
			change := a.loadSignedIn(ctx)
			a.app.QueueUpdateDraw(func() { a.apply(change) })
		}()
	}
}

func (a *App) renderStatus() {
	st := a.vm.Status()
	user := st.Username
	if user == "" {
		user = "-"
	}
	unread := 0
	for _, n := range a.vm.Notifications() {
		if !n.Read {
			unread++
		}
	}
	a.menu.SetConnected(st.Connection == status.Connected)
	a.logo.SetSession(st.Session)
	a.info.Update(&ui.SessionData{
		Session:       st.Session,
		User:          user,
		Connection:    string(st.Connection),
		Conversations: len(a.vm.Conversations()),
		Notifications: max(unread, st.Notifications),
		Pending:       st.Pending,
		Uptime:        st.Uptime,
	})
}

func (a *App) renderThread() {
	find := a.vm.FindState()
	tf := views.ThreadFind{Current: -1}
	if term := a.vm.FindTerm(); term != "" {
		tf = views.ThreadFind{
			Term:    term,
			Current: find.Step.Message,
			Total:   len(find.Matches),
			Cursor:  find.Step.Cursor,
		}
	}
	a.thread.Update(a.vm.Messages(), a.vm.Status().UserID, tf)
}

func (a *App) renderDetails(id string) bool {
	for _, c := range a.vm.Conversations() {
		if c.ID == id {
			a.details.Update(&c, a.cfg.InviteURL(c.ID))
			return true
		}
	}
	return false
}

func (a *App) renderFlash() {
	a.flashBar.Update(a.flash.Current(), a.flash.Queued())
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageSearch:
		a.app.SetFocus(a.searchV.Input())
	default:
		if c, ok := a.components[a.pages.Current()]; ok {
			a.app.SetFocus(c.(tview.Primitive))
		}
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if mode == ui.PromptFind && a.vm.Active() == "" {
		return
	}
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) back() {
	if a.pages.Current() == pageConversations && a.convList.Filter() != "" {
		a.convList.ClearFilter()
		return
	}
	if a.pages.Pop() != "" {
		a.focusCurrent()
	}
}

func (a *App) quitOrBack() {
	if a.pages.Depth() > 1 {
		a.back()
		return
	}
	a.Stop()
}

// async runs fn off the UI goroutine and then, on success, runs then on it.
// Errors go to the flash bar.
func (a *App) async(what string, fn func(ctx context.Context) error, then func()) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.fail(what, err)
			return
		}
		if then != nil {
			a.app.QueueUpdateDraw(then)
		}
	}()
}

func (a *App) fail(what string, err error) {
	if a.ctx.Err() != nil {
		return
	}
	a.flash.Err(fmt.Errorf("%s: %s", what, errorMessage(err)))
}

// errorMessage strips the RPC framing from daemon errors.
func errorMessage(err error) string {
	if s, ok := grpcstatus.FromError(err); ok {
		return s.Message()
	}
	return err.Error()
}

func (a *App) openConversation(id string) {
	a.async("open", func(ctx context.Context) error {
		if err := a.vm.Open(ctx, id); err != nil {
			return err
		}
		return a.vm.LoadTyping(ctx)
	}, func() {
		name := id
		if c, ok := a.vm.ActiveConversation(); ok && c.Name != "" {
			name = c.Name
		}
		a.thread.SetConversation(name)
		a.crumbs.SetLabel(pageThread, name)
		a.renderThread()
		a.thread.SetTyping(a.vm.TypingNames())
		a.pages.SwitchTo(pageThread)
		a.focusCurrent()
	})
}

func (a *App) loadOlder() {
	var n int
	a.async("load older", func(ctx context.Context) error {
		var err error
		if n, err = a.vm.LoadOlder(ctx); err != nil {
			return err
		}
		return a.vm.LoadMessages(ctx)
	}, func() {
		if n == 0 {
			a.flash.Info("No older messages")
		}
		a.renderThread()
	})
}

func (a *App) find(term string) {
	a.async("find", func(ctx context.Context) error {
		return a.vm.Find(ctx, term)
	}, func() {
		if a.vm.FindState().Step.Message < 0 {
			a.flash.Warn(fmt.Sprintf("No matches for %q", term))
		}
		a.renderThread()
	})
}

func (a *App) navigate(dir search.Direction) {
	if a.vm.FindTerm() == "" {
		a.showPrompt(ui.PromptFind)
		return
	}
	a.async("find", func(ctx context.Context) error {
		step, err := a.vm.Navigate(ctx, dir)
		if err == nil && !step.Moved {
			a.flash.Info("No more matches")
		}
		return err
	}, a.renderThread)
}

func (a *App) togglePin(id string) {
	if id == "" {
		return
	}
	var pinned bool
	a.async("pin", func(ctx context.Context) error {
		var err error
		pinned, err = a.vm.TogglePin(ctx, id)
		return err
	}, func() {
		a.convList.Update(a.vm.Conversations())
		if pinned {
			a.flash.Info("Pinned")
		} else {
			a.flash.Info("Unpinned")
		}
	})
}

func (a *App) showDetails(id string) {
	if id == "" || !a.renderDetails(id) {
		return
	}
	a.pages.SwitchTo(pageDetails)
	a.focusCurrent()
}

func (a *App) showHelp() {
	a.pages.SwitchTo(pageHelp)
	a.focusCurrent()
}

func (a *App) showSearch() {
	a.pages.SwitchTo(pageSearch)
	a.focusCurrent()
}

func (a *App) runSearch(query string) {
	a.searchV.SetQuery(query)
	a.async("search", func(ctx context.Context) error {
		_, err := a.vm.Search(ctx, query)
		return err
	}, func() {
		a.searchV.Update(a.vm.Results())
		a.pages.SwitchTo(pageSearch)
		a.app.SetFocus(a.searchV.Results())
	})
}

func (a *App) showNotifications() {
	a.notifs.Update(a.vm.Notifications())
	a.pages.SwitchTo(pageNotifications)
	a.focusCurrent()
	a.async("notifications", a.vm.LoadNotifications, func() {
		a.apply(viewmodel.ChangeNotifications)
	})
}

func (a *App) decide(d model.JoinDecision) {
	n, ok := a.notifs.Selected()
	if !ok || !n.Actionable() {
		return
	}
	a.async("join request", func(ctx context.Context) error {
		if err := a.vm.Decide(ctx, n.ID, d); err != nil {
			return err
		}
		return a.vm.LoadNotifications(ctx)
	}, func() {
		a.apply(viewmodel.ChangeNotifications)
		a.flash.Info(fmt.Sprintf("Join request %s", d.State()))
	})
}

func (a *App) markAllRead() {
	a.async("mark read", func(ctx context.Context) error {
		if err := a.vm.MarkAllNotificationsRead(ctx); err != nil {
			return err
		}
		return a.vm.LoadNotifications(ctx)
	}, func() { a.apply(viewmodel.ChangeNotifications) })
}

func (a *App) showDiscover() {
	var groups []model.Conversation
	a.async("discover", func(ctx context.Context) error {
		var err error
		groups, err = a.vm.Discover(ctx)
		return err
	}, func() {
		a.discover.Update(groups)
		a.pages.SwitchTo(pageDiscover)
		a.focusCurrent()
	})
}

func (a *App) join(groupID string) {
	var joined bool
	a.async("join", func(ctx context.Context) error {
		var err error
		joined, err = a.vm.Join(ctx, groupID)
		return err
	}, func() {
		if joined {
			a.flash.Info("Joined group")
			return
		}
		a.flash.Info("Join request sent")
	})
}

func (a *App) showInvite(id string) {
	if id == "" {
		a.flash.Warn("No conversation selected")
		return
	}
	name := id
	for _, c := range a.vm.Conversations() {
		if c.ID == id && c.Name != "" {
			name = c.Name
		}
	}
	if err := a.invite.Update(name, a.cfg.InviteURL(id)); err != nil {
		a.flash.Err(err)
		return
	}
	a.pages.SwitchTo(pageInvite)
	a.focusCurrent()
}

func (a *App) upload(path string) {
	if a.vm.Active() == "" {
		a.flash.Warn("Open a conversation first")
		return
	}
	a.async("upload", func(ctx context.Context) error {
		content, err := readUpload(path, a.cfg.Uploads.MaxBytes)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		return a.vm.Upload(ctx, name, mime.TypeByExtension(filepath.Ext(name)), content)
	}, func() { a.flash.Info("Uploading " + filepath.Base(path)) })
}

// readUpload reads at most limit bytes of path, failing if it is larger.
func readUpload(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if limit <= 0 {
		return io.ReadAll(f)
	}
	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("%s is larger than %d bytes", filepath.Base(path), limit)
	}
	return content, nil
}

func (a *App) emoji(e string) {
	if e == "" {
		var recent []string
		a.async("emoji", func(ctx context.Context) error {
			var err error
			recent, err = a.vm.RecentEmoji(ctx)
			return err
		}, func() {
			if len(recent) == 0 {
				a.flash.Info("No recent emoji")
				return
			}
			a.flash.Info("Recent: " + strings.Join(recent, " "))
		})
		return
	}
	a.async("emoji", func(ctx context.Context) error {
		_, err := a.vm.UseEmoji(ctx, e)
		return err
	}, func() {
		if a.pages.Current() == pageThread {
			a.thread.InsertText(e)
			a.app.SetFocus(a.thread.Composer())
		}
	})
}

func (a *App) signOut() {
	a.async("sign out", a.vm.SignOut, func() {
		a.apply(viewmodel.ChangeConversations | viewmodel.ChangeMessages | viewmodel.ChangeNotifications)
		a.async("status", a.vm.LoadStatus, func() { a.apply(viewmodel.ChangeStatus) })
	})
}

// selectedOrActive is the conversation a command without arguments acts on.
func (a *App) selectedOrActive() string {
	if a.pages.Current() == pageConversations {
		return a.convList.SelectedID()
	}
	return a.vm.Active()
}

func (a *App) runCommand(input string) {
	cmd := ParseCommand(input)
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.showHelp()
	case "search":
		if cmd.Args == "" {
			a.showSearch()
			return
		}
		a.runSearch(cmd.Args)
	case "open":
		if cmd.Args == "" {
			if id := a.selectedOrActive(); id != "" {
				a.openConversation(id)
			}
			return
		}
		c, ok := a.vm.ConversationByName(cmd.Args)
		if !ok {
			a.flash.Warn(fmt.Sprintf("No conversation matches %q", cmd.Args))
			return
		}
		a.openConversation(c.ID)
	case "find":
		if a.vm.Active() == "" {
			a.flash.Warn("Open a conversation first")
			return
		}
		a.find(cmd.Args)
	case "poll":
		q, opts, err := parsePoll(cmd.Args)
		if err != nil {
			a.flash.Warn(err.Error())
			return
		}
		a.async("poll", func(ctx context.Context) error {
			return a.vm.SendPoll(ctx, q, opts)
		}, nil)
	case "upload":
		a.upload(cmd.Args)
	case "pin":
		a.togglePin(a.selectedOrActive())
	case "read":
		if a.vm.Active() == "" {
			a.flash.Warn("Open a conversation first")
			return
		}
		a.async("mark read", a.vm.MarkRead, func() { a.flash.Info("Marked read") })
	case "notifications":
		a.showNotifications()
	case "discover":
		a.showDiscover()
	case "join":
		if cmd.Args == "" {
			a.showDiscover()
			return
		}
		a.join(cmd.Args)
	case "invite":
		a.showInvite(a.selectedOrActive())
	case "emoji":
		a.emoji(cmd.Args)
	case "signout":
		a.signOut()
	case "":
	default:
		a.flash.Warn("Unknown command: " + cmd.Name)
	}
}
