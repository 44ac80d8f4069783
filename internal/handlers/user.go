package handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/themizzi/sitetest/internal/app"
	"github.com/themizzi/sitetest/internal/models"
)

// LoginHandler serves the login form and opens sessions
type LoginHandler struct {
	renderer *Renderer
}

// NewLoginHandler creates a new login handler
func NewLoginHandler(renderer *Renderer) *LoginHandler {
	return &LoginHandler{renderer: renderer}
}

// ServeHTTP handles GET and POST /user/login
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	current := sc.container.CurrentUser.Account()

	if r.Method == http.MethodGet {
		if current.IsAuthenticated() {
			redirect(h.renderer, w, r, app.RouteUserPage, map[string]string{"user": strconv.FormatInt(current.ID, 10)})
			return
		}
		h.render(w, r, "", nil)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	name, pass := r.PostFormValue("name"), r.PostFormValue("pass")
	if name == "" || pass == "" {
		h.render(w, r, name, []string{"Username and password fields are required."})
		return
	}

	ctx := r.Context()
	account, err := authenticate(ctx, sc.container, name, pass)
	switch {
	case errors.Is(err, models.ErrAccountBlocked):
		h.render(w, r, name, []string{fmt.Sprintf("The username %s has not been activated or is blocked.", name)})
		return
	case errors.Is(err, models.ErrInvalidCredentials):
		h.render(w, r, name, []string{"Unrecognized username or password."})
		return
	case err != nil:
		serverError(h.renderer, w, r, err)
		return
	}

	if current.IsAuthenticated() && current.SessionID != "" {
		if err := sc.container.Sessions.Delete(ctx, current.SessionID); err != nil {
			serverError(h.renderer, w, r, err)
			return
		}
	}

	sid := models.NewSessionID()
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	if err := sc.container.Sessions.Create(ctx, sid, account.ID, host); err != nil {
		serverError(h.renderer, w, r, err)
		return
	}
	cookie := &http.Cookie{
		Name:     models.SessionName(r.Host),
		Value:    sid,
		Path:     sc.basePath + "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if lifetime, ok := sc.container.Parameter("session.cookie_lifetime"); ok {
		if seconds, ok := lifetime.(int); ok && seconds > 0 {
			cookie.MaxAge = seconds
		}
	}
	http.SetCookie(w, cookie)
	sc.logger.Info("session opened", "name", account.Name, "uid", account.ID)

	redirect(h.renderer, w, r, app.RouteUserPage, map[string]string{"user": strconv.FormatInt(account.ID, 10)})
}

func (h *LoginHandler) render(w http.ResponseWriter, r *http.Request, name string, errs []string) {
	page := newPage(r, "Log in")
	page.Form["name"] = name
	page.Errors = errs
	if err := h.renderer.Render(w, http.StatusOK, "login", page); err != nil {
		serverError(h.renderer, w, r, err)
	}
}

func authenticate(ctx context.Context, c *app.Container, name, pass string) (*models.Account, error) {
	account, err := c.Users.LoadByName(ctx, name)
	if errors.Is(err, models.ErrAccountNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, models.ErrAccountBlocked
	}
	if !account.CheckPassword(pass) {
		return nil, models.ErrInvalidCredentials
	}
	return account, nil
}

// LogoutHandler closes the current session
type LogoutHandler struct {
	renderer *Renderer
}

// NewLogoutHandler creates a new logout handler
func NewLogoutHandler(renderer *Renderer) *LogoutHandler {
	return &LogoutHandler{renderer: renderer}
}

// ServeHTTP handles GET /user/logout
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	current := sc.container.CurrentUser.Account()
	if current.IsAuthenticated() && current.SessionID != "" {
		if err := sc.container.Sessions.Delete(r.Context(), current.SessionID); err != nil {
			sc.logger.Error("failed to delete session", "uid", current.ID, "err", err)
		}
	}
	sc.container.CurrentUser.SetAccount(nil)
	http.SetCookie(w, &http.Cookie{
		Name:     models.SessionName(r.Host),
		Value:    "",
		Path:     sc.basePath + "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	redirect(h.renderer, w, r, app.RouteFront, nil)
}

// UserPageHandler shows an account
type UserPageHandler struct {
	renderer *Renderer
}

// NewUserPageHandler creates a new user page handler
func NewUserPageHandler(renderer *Renderer) *UserPageHandler {
	return &UserPageHandler{renderer: renderer}
}

// ServeHTTP handles GET /user/{user}
func (h *UserPageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	ctx := r.Context()
	uid, err := strconv.ParseInt(chi.URLParam(r, "user"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	current := sc.container.CurrentUser.Account()
	if current.IsAnonymous() {
		accessDenied(h.renderer, w, r)
		return
	}
	if current.ID != uid {
		allowed, err := sc.container.CurrentUser.HasPermission(ctx, "access user profiles")
		if err != nil {
			serverError(h.renderer, w, r, err)
			return
		}
		if !allowed {
			accessDenied(h.renderer, w, r)
			return
		}
	}

	account, err := sc.container.Users.Load(ctx, uid)
	if errors.Is(err, models.ErrAccountNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		serverError(h.renderer, w, r, err)
		return
	}

	page := newPage(r, account.Name)
	page.Account = account
	if err := h.renderer.Render(w, http.StatusOK, "user", page); err != nil {
		serverError(h.renderer, w, r, err)
	}
}

// RegisterHandler lets visitors create accounts
type RegisterHandler struct {
	renderer *Renderer
}

// NewRegisterHandler creates a new register handler
func NewRegisterHandler(renderer *Renderer) *RegisterHandler {
	return &RegisterHandler{renderer: renderer}
}

// ServeHTTP handles GET and POST /user/register
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	ctx := r.Context()

	settings, err := sc.container.Config.Get(ctx, "user.settings")
	if err != nil {
		serverError(h.renderer, w, r, err)
		return
	}
	if settings.GetString("register") == "admin_only" || sc.container.CurrentUser.IsAuthenticated() {
		accessDenied(h.renderer, w, r)
		return
	}

	page := newPage(r, "Create new account")
	if r.Method == http.MethodGet {
		h.render(w, r, page)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	name, mail := r.PostFormValue("name"), r.PostFormValue("mail")
	page.Form["name"], page.Form["mail"] = name, mail

	if _, err := sc.container.Users.LoadByName(ctx, name); err == nil {
		page.Errors = []string{fmt.Sprintf("The username %s is already taken.", name)}
		h.render(w, r, page)
		return
	}
	account, err := models.NewAccount(name, mail, r.PostFormValue("pass"), sc.container.Settings.PasswordCost)
	if err != nil {
		page.Errors = []string{err.Error()}
		h.render(w, r, page)
		return
	}
	if err := sc.container.Users.Create(ctx, account); err != nil {
		serverError(h.renderer, w, r, err)
		return
	}

	site, err := sc.container.Config.Get(ctx, "system.site")
	if err != nil {
		serverError(h.renderer, w, r, err)
		return
	}
	err = sc.container.Mail.Send(ctx, app.Mail{
		ID:      "user_register_no_approval_required",
		To:      account.Mail,
		Subject: fmt.Sprintf("Account details for %s at %s", account.Name, site.GetString("name")),
		Body:    fmt.Sprintf("%s,\n\nThank you for registering at %s.", account.Name, site.GetString("name")),
		Params:  map[string]string{"uid": strconv.FormatInt(account.ID, 10)},
	})
	if err != nil {
		serverError(h.renderer, w, r, err)
		return
	}

	login := newPage(r, "Log in")
	login.Messages = []string{"Registration successful. You can now log in."}
	login.Form["name"] = account.Name
	if err := h.renderer.Render(w, http.StatusOK, "login", login); err != nil {
		serverError(h.renderer, w, r, err)
	}
}

func (h *RegisterHandler) render(w http.ResponseWriter, r *http.Request, page Page) {
	if err := h.renderer.Render(w, http.StatusOK, "register", page); err != nil {
		serverError(h.renderer, w, r, err)
	}
}
