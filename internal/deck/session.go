package deck

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/dispatch"
	"github.com/dropdeck/dropdeck/internal/prefs"
	"github.com/dropdeck/dropdeck/internal/realtime"
	"github.com/dropdeck/dropdeck/internal/rest"
	"github.com/dropdeck/dropdeck/internal/status"
	intsync "github.com/dropdeck/dropdeck/internal/sync"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// online connects, joins the user scope and runs the initial sync of the
// conversation list and unread notifications in parallel.
func (d *Deck) online(ctx context.Context) error {
	cred := d.auth.Credential()
	if cred.UserID == "" {
		user, err := d.api.Profile(ctx)
		if err != nil {
			if errors.Is(err, rest.ErrUnauthorized) {
				_ = d.checkAuth(err)
				return ErrSignedOut
			}
			d.logger.Warn("profile lookup failed", zap.Error(err))
		} else {
			cred.UserID, cred.Username = user.ID, user.Username
			if err := d.auth.SignIn(ctx, cred); err != nil {
				return err
			}
		}
	}

	d.watchUser(cred.UserID)
	if err := d.conn.Connect(ctx); err != nil {
		if errors.Is(err, realtime.ErrUnauthorized) {
			return ErrSignedOut
		}
		d.logger.Warn("realtime connect failed, retrying in background", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.engine.Sync(gctx, intsync.Conversations()) })
	g.Go(func() error { return d.engine.Sync(gctx, intsync.Notifications()) })
	if err := g.Wait(); err != nil {
		if errors.Is(err, rest.ErrUnauthorized) {
			return ErrSignedOut
		}
		d.logger.Warn("initial sync incomplete", zap.Error(err))
	}
	d.logger.Info("session online",
		zap.String("user_id", cred.UserID),
		zap.Int("conversations", len(d.state.Conversations())),
		zap.Int("notifications", len(d.state.Notifications())))
	return nil
}

// watchUser registers the handlers for events about all of the user's
// conversations and joins the user scope.
func (d *Deck) watchUser(userID string) {
	g := d.dispatcher.Group()
	g.On(dispatch.GroupListUpdate, func(dispatch.Event) {
		d.engine.Refetch(intsync.Conversations())
	})
	g.On(dispatch.NewMessage, func(dispatch.Event) {
		d.engine.Refetch(intsync.Conversations())
	})
	g.On(dispatch.NotificationUpdate, func(evt dispatch.Event) {
		var payload struct {
			Message string `json:"message"`
		}
		if err := evt.Decode(&payload); err == nil && payload.Message != "" {
			d.bus.Emit(bus.KindNotificationToast, Toast{Message: payload.Message})
		}
		d.engine.Refetch(intsync.Notifications())
	})

	join := realtime.UserJoin(userID)
	d.mu.Lock()
	prev, prevJoin := d.userGroup, d.userJoin
	d.userGroup, d.userJoin = g, join
	d.mu.Unlock()
	prev.Close()
	if prevJoin != (realtime.Join{}) && prevJoin != join {
		d.conn.LeaveScope(prevJoin)
	}
	if userID == "" {
		return
	}
	if err := d.conn.JoinScope(context.Background(), join); err != nil {
		d.logger.Warn("join user scope failed", zap.Error(err))
	}
}

// Toast is the payload of bus.KindNotificationToast.
type Toast struct {
	Message string `json:"message"`
}

// SignIn exchanges email and password for a credential and brings the
// session online.
func (d *Deck) SignIn(ctx context.Context, email, password, captchaToken string) (prefs.Credential, error) {
	if email == "" || password == "" {
		return prefs.Credential{}, fmt.Errorf("sign in: email and password are required")
	}
	token, user, err := d.api.Login(ctx, rest.LoginRequest{Email: email, Password: password, CaptchaToken: captchaToken})
	if err != nil {
		return prefs.Credential{}, fmt.Errorf("sign in: %w", err)
	}
	cred := prefs.Credential{Token: token, UserID: user.ID, Username: user.Username}
	if err := d.auth.SignIn(ctx, cred); err != nil {
		return prefs.Credential{}, err
	}
	cred = d.auth.Credential()
	d.bus.Emit(bus.KindSignedIn, cred.UserID)
	d.logger.Info("signed in", zap.String("user_id", cred.UserID))
	return cred, d.online(ctx)
}

// SignOut disconnects and forgets the credential and every fetched record.
func (d *Deck) SignOut(ctx context.Context) error {
	d.teardown()
	if err := d.auth.SignOut(ctx); err != nil {
		return err
	}
	_ = d.machine.Transition(status.AuthRequired)
	d.bus.Emit(bus.KindSignedOut, "user")
	d.logger.Info("signed out")
	return nil
}

// forceSignOut runs when the backend rejects the credential. It can be
// called from the connection or a sync worker, so the work happens on its
// own goroutine.
func (d *Deck) forceSignOut() {
	if !d.signingOut.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer d.signingOut.Store(false)
		d.logger.Warn("credential rejected by backend, signing out")
		d.teardown()
		if err := d.auth.SignOut(context.Background()); err != nil {
			d.logger.Error("clear credential failed", zap.Error(err))
		}
		d.signedOut("credential rejected")
	}()
}

// checkAuth forces sign-out when err says the backend rejected the
// credential. err is returned unchanged.
func (d *Deck) checkAuth(err error) error {
	if err != nil && errors.Is(err, rest.ErrUnauthorized) {
		d.forceSignOut()
	}
	return err
}

func (d *Deck) signedOut(reason string) {
	_ = d.machine.Transition(status.AuthRequired)
	d.bus.Emit(bus.KindSignedOut, reason)
}

// teardown drops the connection, every handler and all fetched state.
func (d *Deck) teardown() {
	d.mu.Lock()
	active, activeGroup, userGroup := d.active, d.activeGroup, d.userGroup
	d.active, d.activeGroup, d.userGroup = "", nil, nil
	d.userJoin = realtime.Join{}
	clear(d.discovered)
	d.mu.Unlock()

	activeGroup.Close()
	userGroup.Close()
	d.conn.Disconnect()
	if active != "" {
		d.engine.Cancel(intsync.Conversation(active))
	}
	d.engine.Cancel(intsync.Conversations())
	d.engine.Cancel(intsync.Notifications())
	d.typing.SwitchScope("")
	d.index.Reset()
	d.state.Reset()
}
