package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"lendshelf/app"
	"lendshelf/db"
	"lendshelf/models"
	"lendshelf/session"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._@-]{2,63}$`)

const ceremonyTimeout = 3 * time.Second

// ===== registration =====

type registerBeginReq struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"displayName"`
}

// BeginRegistration starts a passkey ceremony for a new username. The member
// is only created when FinishRegistration attests the passkey, so an unused
// begin leaves nothing behind.
func (s *Srv) BeginRegistration(c *gin.Context) {
	var in registerBeginReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if !usernamePattern.MatchString(username) {
		badRequest(c, "username must be 3-64 characters of a-z, 0-9, '.', '_', '@' or '-'")
		return
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	_, err := s.Repo.FindUserByUsername(ctx, username)
	if err == nil {
		usernameTaken(c)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.internal(c, "begin registration", err)
		return
	}

	wUser := &waUser{user: models.User{ID: uuid.NewString(), Username: username, DisplayName: displayName}}
	opts, sd, err := s.WA.BeginRegistration(
		wUser,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationRequired,
		}),
	)
	if err != nil {
		s.internal(c, "begin registration", err)
		return
	}

	regID := uuid.NewString()
	reg := &session.Registration{Session: *sd, UserID: wUser.user.ID, Username: username, DisplayName: displayName}
	if err := s.Ceremonies.SaveRegistration(ctx, regID, reg); err != nil {
		s.internal(c, "save registration ceremony", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts, "registrationId": regID})
}

func usernameTaken(c *gin.Context) {
	c.JSON(http.StatusConflict, app.H{"error": "username_taken", "message": "username already taken"})
}

func (s *Srv) FinishRegistration(c *gin.Context) {
	regID := c.Query("registrationId")
	if regID == "" {
		badRequest(c, "missing registrationId")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	reg, err := s.Ceremonies.TakeRegistration(ctx, regID)
	if err != nil {
		badRequest(c, "registration expired or invalid")
		return
	}
	wUser := &waUser{user: models.User{ID: reg.UserID, Username: reg.Username, DisplayName: reg.DisplayName}}

	cred, err := s.WA.FinishRegistration(wUser, reg.Session, c.Request)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	// Two ceremonies may race for one username; the first to finish keeps it.
	u, err := s.Repo.RegisterMember(ctx, reg.UserID, reg.Username, reg.DisplayName, fromWaCred(reg.UserID, cred))
	if errors.Is(err, db.ErrUsernameTaken) {
		usernameTaken(c)
		return
	}
	if err != nil {
		s.internal(c, "register member", err)
		return
	}
	wUser.user = *u

	// Registering logs the member in.
	if err := s.issueSession(ctx, c.Writer, wUser.user.ID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		s.internal(c, "create app session", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "user": wUser.user})
}

// ===== extra passkeys for a logged-in member =====

func (s *Srv) BeginAddCredential(c *gin.Context) {
	uid := app.CurrentUserID(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, uid)
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "not_authenticated", "message": "login required"})
		return
	}
	opts, sd, err := s.WA.BeginRegistration(
		wUser,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationRequired,
		}),
	)
	if err != nil {
		s.internal(c, "begin add credential", err)
		return
	}
	if err := s.Ceremonies.Save(ctx, session.CeremonyRegister, "add:"+uid, sd); err != nil {
		s.internal(c, "save add-credential ceremony", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishAddCredential(c *gin.Context) {
	uid := app.CurrentUserID(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, uid)
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "not_authenticated", "message": "login required"})
		return
	}
	sd, err := s.Ceremonies.Take(ctx, session.CeremonyRegister, "add:"+uid)
	if err != nil {
		badRequest(c, "ceremony expired or invalid")
		return
	}
	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Repo.AddCredential(ctx, fromWaCred(uid, cred)); err != nil {
		s.internal(c, "store credential", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// ===== login =====

type loginBeginReq struct {
	// Username is optional; without it the browser offers discoverable passkeys.
	Username string `json:"username"`
}

type loginBeginResp struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	SessionID string                        `json:"sessionId"`
}

func (s *Srv) BeginLogin(c *gin.Context) {
	var req loginBeginReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "bad request")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	var (
		opts *protocol.CredentialAssertion
		sd   *webauthn.SessionData
		err  error
	)
	if username := strings.TrimSpace(req.Username); username == "" {
		opts, sd, err = s.WA.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	} else {
		wUser, lerr := s.loadWAUserByUsername(ctx, username)
		if lerr != nil {
			c.JSON(http.StatusNotFound, app.H{"error": "not_found", "message": "member not found"})
			return
		}
		opts, sd, err = s.WA.BeginLogin(wUser, webauthn.WithUserVerification(protocol.VerificationRequired))
	}
	if err != nil {
		s.internal(c, "begin login", err)
		return
	}

	sid := uuid.NewString()
	if err := s.Ceremonies.Save(ctx, session.CeremonyLogin, sid, sd); err != nil {
		s.internal(c, "save login ceremony", err)
		return
	}
	c.JSON(http.StatusOK, loginBeginResp{Options: opts, SessionID: sid})
}

func (s *Srv) FinishLogin(c *gin.Context) {
	sid := c.Query("sessionId")
	if sid == "" {
		badRequest(c, "missing sessionId")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	sd, err := s.Ceremonies.Take(ctx, session.CeremonyLogin, sid)
	if err != nil {
		badRequest(c, "login expired or invalid")
		return
	}

	var (
		wUser *waUser
		cred  *webauthn.Credential
	)
	if len(sd.UserID) > 0 {
		uid, perr := uuid.FromBytes(sd.UserID)
		if perr != nil {
			badRequest(c, "login expired or invalid")
			return
		}
		if wUser, err = s.loadWAUserByID(ctx, uid.String()); err != nil {
			c.JSON(http.StatusNotFound, app.H{"error": "not_found", "message": "member not found"})
			return
		}
		cred, err = s.WA.FinishLogin(wUser, *sd, c.Request)
	} else {
		handler := func(rawID, _ []byte) (webauthn.User, error) {
			u, _, ferr := s.Repo.FindUserByCredentialID(ctx, rawID)
			if ferr != nil {
				return nil, protocol.ErrBadRequest.WithDetails("credential not found")
			}
			w, ferr := s.waUserFor(ctx, u)
			if ferr != nil {
				return nil, ferr
			}
			wUser = w
			return w, nil
		}
		_, cred, err = s.WA.FinishPasskeyLogin(handler, *sd, c.Request)
	}
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "not_authenticated", "message": err.Error()})
		return
	}
	if err := s.Repo.UpdateCredentialCounter(ctx, cred.ID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning); err != nil {
		s.Log.Warn("update credential counter failed", "user_id", wUser.user.ID, "err", err)
	}

	if err := s.issueSession(ctx, c.Writer, wUser.user.ID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		s.internal(c, "create app session", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "user": wUser.user})
}

// Logout ends the current session, or every session of the member with ?all=true.
func (s *Srv) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("all") == "true" {
		if err := s.AppSess.RevokeAllForUser(ctx, app.CurrentUserID(c)); err != nil {
			s.internal(c, "revoke sessions", err)
			return
		}
	} else if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		_ = s.AppSess.Delete(ctx, ck.Value)
	}
	s.clearAppCookie(c.Writer)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

func (s *Srv) internal(c *gin.Context, what string, err error) {
	s.Log.Error(what+" failed", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, app.H{"error": "internal", "message": what + " failed"})
}
