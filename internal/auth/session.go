// Package auth holds the signed-in user and the device identity.
// Sign-in is a mock: any well-formed email with a non-empty password is accepted.
package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/logging"
	"github.com/kimhsiao/inventra/internal/models"
	"github.com/kimhsiao/inventra/internal/store"
	"github.com/kimhsiao/inventra/internal/uuid"
)

// Session tracks the current user, persisted under store.KeyUser.
type Session struct {
	store  *store.LocalStore
	issuer *TokenIssuer
	expiry time.Duration

	mu       sync.RWMutex
	user     *models.User
	deviceID string
}

// NewSession restores the persisted user and device ID, creating the device
// ID on first use. issuer may be nil when no bearer tokens are needed.
func NewSession(s *store.LocalStore, issuer *TokenIssuer, expiry time.Duration) (*Session, error) {
	sess := &Session{store: s, issuer: issuer, expiry: expiry}

	var user models.User
	found, err := s.Load(store.KeyUser, &user)
	switch {
	case err != nil:
		logging.Warn("Discarding unreadable user record", map[string]interface{}{"error": err.Error()})
	case found && user.ID != "":
		sess.user = &user
	}

	deviceID := store.Get(s, store.KeyDeviceID, "")
	if !uuid.IsValid(deviceID) {
		deviceID = uuid.New()
		if err := s.Set(store.KeyDeviceID, deviceID); err != nil {
			return nil, err
		}
		logging.Info("Registered new device", map[string]interface{}{"device_id": deviceID})
	}
	sess.deviceID = deviceID

	return sess, nil
}

// DeviceID returns this installation's identifier.
func (s *Session) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (s *Session) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Login signs in as email.
func (s *Session) Login(email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, errors.New(errors.ErrAuthFailed, "email and password are required")
	}

	user := &models.User{
		ID:        models.NewUUID(),
		Email:     email,
		Name:      displayName(email),
		CreatedAt: time.Now().UTC(),
	}
	if err := user.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrAuthFailed, "login rejected", err)
	}
	if err := s.setUser(user); err != nil {
		return nil, err
	}

	logging.Info("User logged in", map[string]interface{}{"user_id": string(user.ID)})
	return s.CurrentUser(), nil
}

// Register creates an account from u and signs in as it.
func (s *Session) Register(u models.User, password string) (*models.User, error) {
	if password == "" {
		return nil, errors.New(errors.ErrValidation, "password is required")
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	u.ID = models.NewUUID()
	u.CreatedAt = time.Now().UTC()
	if err := s.setUser(&u); err != nil {
		return nil, err
	}

	logging.Info("User registered", map[string]interface{}{"user_id": string(u.ID)})
	return s.CurrentUser(), nil
}

// Logout forgets the current user. Logging out twice is not an error.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Remove(store.KeyUser); err != nil {
		return err
	}
	s.user = nil
	return nil
}

// ResetPassword pretends to send a recovery email to a well-formed address.
func (s *Session) ResetPassword(email string) (string, error) {
	probe := models.User{Email: strings.TrimSpace(email), Name: "-"}
	if err := probe.Validate(); err != nil {
		return "", err
	}

	logging.Info("Password recovery requested", nil)
	return "recovery email sent", nil
}

// Token mints a bearer token for the current user on this device.
func (s *Session) Token() (string, error) {
	if s.issuer == nil {
		return "", errors.New(errors.ErrAuthRequired, "no token issuer configured")
	}
	user := s.CurrentUser()
	if user == nil {
		return "", errors.New(errors.ErrAuthRequired, "not logged in")
	}
	return s.issuer.Issue(string(user.ID), s.DeviceID(), s.expiry)
}

// TokenSource returns Token as a function value for transports.
func (s *Session) TokenSource() func() (string, error) {
	return s.Token
}

func (s *Session) setUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(store.KeyUser, u); err != nil {
		return err
	}
	s.user = u
	return nil
}

func displayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return email
	}
	return local
}
