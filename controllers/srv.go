package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"lendshelf/app"
	"lendshelf/db"
	"lendshelf/models"
	"lendshelf/session"
)

// Srv carries what the auth handlers need.
type Srv struct {
	WA         *webauthn.WebAuthn
	Repo       *db.Repo
	Ceremonies *session.CeremonyStore
	AppSess    *session.AppSessionStore
	Cfg        app.Config
	Log        *slog.Logger
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		WA:         a.WA,
		Repo:       a.Repo,
		Ceremonies: a.Ceremonies(),
		AppSess:    a.AppSessions(),
		Cfg:        a.Config,
		Log:        a.Log,
	}
}

func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Cfg.SecureCookies(),
		MaxAge:   int(maxAge / time.Second),
	})
}

func (s *Srv) clearAppCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Cfg.SecureCookies(),
	})
}

// issueSession records the login and sets the session cookie.
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, userID, ip, ua string) error {
	if err := s.Repo.TouchUserLogin(ctx, userID, ip, ua); err != nil {
		s.Log.Warn("record login failed", "user_id", userID, "err", err)
	}
	as, err := s.AppSess.Create(ctx, userID)
	if err != nil {
		return err
	}
	s.setAppCookie(w, as.ID, s.AppSess.TTL())
	return nil
}

// waUser adapts a member and their passkeys to webauthn.User.
type waUser struct {
	user  models.User
	creds []webauthn.Credential
}

func (u *waUser) WebAuthnID() []byte {
	id, err := uuid.Parse(u.user.ID)
	if err != nil {
		return []byte(u.user.ID)
	}
	return id[:]
}
func (u *waUser) WebAuthnName() string                       { return u.user.Username }
func (u *waUser) WebAuthnDisplayName() string                { return u.user.DisplayName }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toWaCred(c models.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
	}
}

func fromWaCred(userID string, cred *webauthn.Credential) *models.Credential {
	return &models.Credential{
		UserID:          userID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}
}

func (s *Srv) waUserFor(ctx context.Context, u *models.User) (*waUser, error) {
	cs, err := s.Repo.LoadUserCredentials(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	ws := make([]webauthn.Credential, 0, len(cs))
	for _, c := range cs {
		ws = append(ws, toWaCred(c))
	}
	return &waUser{user: *u, creds: ws}, nil
}

func (s *Srv) loadWAUserByID(ctx context.Context, id string) (*waUser, error) {
	u, err := s.Repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.waUserFor(ctx, u)
}

func (s *Srv) loadWAUserByUsername(ctx context.Context, username string) (*waUser, error) {
	u, err := s.Repo.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.waUserFor(ctx, u)
}
