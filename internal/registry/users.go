package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/mmynk/bailago/internal/clock"
	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/notify"
	"github.com/mmynk/bailago/internal/storage"
)

const (
	// MinPasswordLength is the shortest accepted local password.
	MinPasswordLength = 6

	// VerificationTokenTTL is how long an email verification token is valid.
	VerificationTokenTTL = 24 * time.Hour

	// PasswordResetTokenTTL is how long a password reset token is valid.
	PasswordResetTokenTTL = time.Hour
)

// Hasher hashes and verifies credentials. The registry holds no
// cryptographic policy of its own.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// TokenGenerator produces random URL-safe tokens for email verification
// and password reset.
type TokenGenerator interface {
	NewToken() (string, error)
}

// UserRegistry owns User entities.
type UserRegistry struct {
	mu    sync.RWMutex
	users *storage.EntityStore[models.User]

	hasher   Hasher
	tokens   TokenGenerator
	clock    clock.Clock
	notifier notify.Dispatcher
	logger   *slog.Logger
}

// NewUserRegistry creates an empty UserRegistry.
func NewUserRegistry(hasher Hasher, tokens TokenGenerator, deps Deps) *UserRegistry {
	deps = deps.withDefaults()
	return &UserRegistry{
		users:    storage.NewEntityStore[models.User](),
		hasher:   hasher,
		tokens:   tokens,
		clock:    deps.Clock,
		notifier: deps.Notifier,
		logger:   deps.Logger,
	}
}

// Create registers a local account. The password is hashed, a 24-hour
// email verification token is issued and a verification notification is
// sent once the account is stored.
func (r *UserRegistry) Create(ctx context.Context, in models.CreateUserInput) (models.UserView, error) {
	if in.Password == "" {
		return models.UserView{}, ErrPasswordRequired
	}
	if len(in.Password) < MinPasswordLength {
		return models.UserView{}, ErrPasswordTooShort
	}

	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	nickname := strings.TrimSpace(in.Nickname)

	// Fail fast before paying for the hash; re-checked under the write lock.
	r.mu.RLock()
	err := r.conflictLocked(email, username, nickname, "")
	r.mu.RUnlock()
	if err != nil {
		return models.UserView{}, err
	}

	hash, err := r.hasher.Hash(in.Password)
	if err != nil {
		return models.UserView{}, fmt.Errorf("failed to hash password: %w", err)
	}
	token, err := r.tokens.NewToken()
	if err != nil {
		return models.UserView{}, fmt.Errorf("failed to generate verification token: %w", err)
	}

	now := r.clock.Now()
	expires := now.Add(VerificationTokenTTL)
	user := models.User{
		ID:                       uuid.NewString(),
		Email:                    email,
		Username:                 username,
		Nickname:                 nickname,
		FirstName:                strings.TrimSpace(in.FirstName),
		LastName:                 strings.TrimSpace(in.LastName),
		PasswordHash:             hash,
		Provider:                 models.ProviderLocal,
		EmailVerificationToken:   token,
		EmailVerificationExpires: &expires,
		Status:                   models.StatusActive,
		LastActiveAt:             now,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	user.DisplayName = displayNameFor(in.DisplayName, user.FirstName, user.LastName, username)

	r.mu.Lock()
	if err := r.conflictLocked(email, username, nickname, ""); err != nil {
		r.mu.Unlock()
		return models.UserView{}, err
	}
	r.users.Put(user.ID, user)
	r.mu.Unlock()

	r.logger.Info("User registered", "user_id", user.ID, "provider", user.Provider)
	notify.Send(ctx, r.notifier, r.logger, notify.Notification{
		Kind:        notify.KindEmailVerification,
		RecipientID: user.ID,
		Email:       user.Email,
		Payload:     map[string]string{"token": token, "displayName": user.DisplayName},
	})

	return user.View(), nil
}

// CreateFromOAuth creates a pre-verified account with no local credential.
// When no username is supplied a unique one is derived from the email.
func (r *UserRegistry) CreateFromOAuth(ctx context.Context, in models.OAuthInput) (models.UserView, error) {
	mustValid(in.Provider.Valid() && in.Provider != models.ProviderLocal, "oauth provider", in.Provider)

	email := normalizeEmail(in.Email)
	now := r.clock.Now()

	r.mu.Lock()
	if _, ok := r.findLocked(func(u models.User) bool {
		return u.Provider == in.Provider && u.ProviderID == in.ProviderID
	}); ok {
		r.mu.Unlock()
		return models.UserView{}, ErrProviderTaken
	}
	if err := r.conflictLocked(email, "", "", ""); err != nil {
		r.mu.Unlock()
		return models.UserView{}, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" || r.conflictLocked("", username, "", "") != nil {
		username = r.uniqueUsernameLocked(usernameBase(email))
	}

	user := models.User{
		ID:            uuid.NewString(),
		Email:         email,
		Username:      username,
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		AvatarURL:     in.AvatarURL,
		Provider:      in.Provider,
		ProviderID:    in.ProviderID,
		EmailVerified: true,
		Status:        models.StatusActive,
		LastActiveAt:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	user.DisplayName = displayNameFor("", user.FirstName, user.LastName, username)
	r.users.Put(user.ID, user)
	r.mu.Unlock()

	r.logger.Info("User registered", "user_id", user.ID, "provider", user.Provider)
	notify.Send(ctx, r.notifier, r.logger, notify.Notification{
		Kind:        notify.KindWelcome,
		RecipientID: user.ID,
		Email:       user.Email,
		Payload:     map[string]string{"displayName": user.DisplayName},
	})

	return user.View(), nil
}

// FindOrCreateOAuth resolves an OAuth sign-in. It returns the account
// linked to (provider, providerId); otherwise links the non-deleted account
// holding the same email; otherwise creates a new one. created reports the
// last case.
func (r *UserRegistry) FindOrCreateOAuth(ctx context.Context, in models.OAuthInput) (view models.UserView, created bool, err error) {
	mustValid(in.Provider.Valid() && in.Provider != models.ProviderLocal, "oauth provider", in.Provider)
	email := normalizeEmail(in.Email)

	r.mu.Lock()
	if u, ok := r.findLocked(func(u models.User) bool {
		return u.Provider == in.Provider && u.ProviderID == in.ProviderID
	}); ok {
		r.mu.Unlock()
		if u.IsDeleted() {
			return models.UserView{}, false, ErrAccountDeleted
		}
		return u.View(), false, nil
	}
	if u, ok := r.findLocked(func(u models.User) bool { return !u.IsDeleted() && u.Email == email }); ok {
		u.Provider = in.Provider
		u.ProviderID = in.ProviderID
		u.EmailVerified = true
		u.EmailVerificationToken = ""
		u.EmailVerificationExpires = nil
		if u.AvatarURL == "" {
			u.AvatarURL = in.AvatarURL
		}
		u.UpdatedAt = r.clock.Now()
		r.users.Put(u.ID, u)
		r.mu.Unlock()
		r.logger.Info("OAuth identity linked", "user_id", u.ID, "provider", in.Provider)
		return u.View(), false, nil
	}
	r.mu.Unlock()

	view, err = r.CreateFromOAuth(ctx, in)
	if err != nil {
		return models.UserView{}, false, err
	}
	return view, true, nil
}

// Get returns the user with the given id.
func (r *UserRegistry) Get(id string) (models.UserView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users.Get(id)
	if !ok {
		return models.UserView{}, ErrUserNotFound
	}
	return u.View(), nil
}

// FindByEmail returns the non-deleted user with the given email.
func (r *UserRegistry) FindByEmail(email string) (models.UserView, error) {
	email = normalizeEmail(email)
	return r.findView(func(u models.User) bool { return !u.IsDeleted() && u.Email == email })
}

// FindByUsername returns the non-deleted user with the given username.
func (r *UserRegistry) FindByUsername(username string) (models.UserView, error) {
	return r.findView(func(u models.User) bool { return !u.IsDeleted() && strings.EqualFold(u.Username, username) })
}

// FindByNickname returns the non-deleted user with the given nickname.
func (r *UserRegistry) FindByNickname(nickname string) (models.UserView, error) {
	if nickname == "" {
		return models.UserView{}, ErrUserNotFound
	}
	return r.findView(func(u models.User) bool { return !u.IsDeleted() && strings.EqualFold(u.Nickname, nickname) })
}

// FindByProvider returns the user linked to an OAuth identity.
func (r *UserRegistry) FindByProvider(provider models.AuthProvider, providerID string) (models.UserView, error) {
	return r.findView(func(u models.User) bool {
		return !u.IsDeleted() && u.Provider == provider && u.ProviderID == providerID
	})
}

// FindByHandle resolves a handle typed by another user: username first,
// then nickname, then email.
func (r *UserRegistry) FindByHandle(handle string) (models.UserView, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if v, err := r.FindByUsername(handle); err == nil {
		return v, nil
	}
	if v, err := r.FindByNickname(handle); err == nil {
		return v, nil
	}
	return r.FindByEmail(handle)
}

// ValidateCredential reports whether plaintext matches the user's local
// credential. OAuth-only and deleted accounts never validate.
func (r *UserRegistry) ValidateCredential(userID, plaintext string) bool {
	r.mu.RLock()
	u, ok := r.users.Get(userID)
	r.mu.RUnlock()
	if !ok || u.IsDeleted() || u.PasswordHash == "" {
		return false
	}
	return r.hasher.Verify(plaintext, u.PasswordHash)
}

// Authenticate checks an email/password pair. Every failure, including an
// unknown email, returns ErrInvalidCredentials.
func (r *UserRegistry) Authenticate(email, password string) (models.UserView, error) {
	view, err := r.FindByEmail(email)
	if err != nil {
		return models.UserView{}, ErrInvalidCredentials
	}
	if !r.ValidateCredential(view.ID, password) {
		return models.UserView{}, ErrInvalidCredentials
	}
	return view, nil
}

// Update merges the non-nil fields of upd into the user's profile.
func (r *UserRegistry) Update(id string, upd models.UserUpdate) (models.UserView, error) {
	for _, d := range upd.FavoriteDances {
		mustValid(d.Valid(), "dance type", d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users.Get(id)
	if !ok {
		return models.UserView{}, ErrUserNotFound
	}
	if u.IsDeleted() {
		return models.UserView{}, ErrAccountDeleted
	}

	if upd.Nickname != nil {
		nickname := strings.TrimSpace(*upd.Nickname)
		if err := r.conflictLocked("", "", nickname, id); err != nil {
			return models.UserView{}, err
		}
		u.Nickname = nickname
	}
	if upd.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.FirstName != nil {
		u.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		u.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Bio != nil {
		u.Bio = strings.TrimSpace(*upd.Bio)
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.FavoriteDances != nil {
		u.FavoriteDances = dedupeDances(upd.FavoriteDances)
	}
	u.UpdatedAt = r.clock.Now()

	r.users.Put(id, u)
	return u.View(), nil
}

// UpdatePushToken stores the device push token and the opt-in flag.
func (r *UserRegistry) UpdatePushToken(id, token string, enabled bool) (models.UserView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users.Get(id)
	if !ok {
		return models.UserView{}, ErrUserNotFound
	}
	if u.IsDeleted() {
		return models.UserView{}, ErrAccountDeleted
	}
	u.PushToken = token
	u.PushEnabled = enabled && token != ""
	u.UpdatedAt = r.clock.Now()
	r.users.Put(id, u)
	return u.View(), nil
}

// PushTarget returns the user's push token when push is enabled.
func (r *UserRegistry) PushTarget(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users.Get(id)
	if !ok || u.IsDeleted() || !u.PushEnabled || u.PushToken == "" {
		return "", false
	}
	return u.PushToken, true
}

// VerifyEmail marks the email verified when token is known and unexpired,
// then clears the token. Unknown and expired tokens both fail with
// ErrInvalidToken.
func (r *UserRegistry) VerifyEmail(token string) (models.UserView, error) {
	if token == "" {
		return models.UserView{}, ErrInvalidToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	u, ok := r.findLocked(func(u models.User) bool {
		return !u.IsDeleted() && u.EmailVerificationToken == token
	})
	if !ok || tokenExpired(u.EmailVerificationExpires, now) {
		return models.UserView{}, ErrInvalidToken
	}

	u.EmailVerified = true
	u.EmailVerificationToken = ""
	u.EmailVerificationExpires = nil
	u.UpdatedAt = now
	r.users.Put(u.ID, u)
	return u.View(), nil
}

// CreatePasswordResetToken issues a one-hour, single-use reset token for
// the account holding email and sends it by notification.
func (r *UserRegistry) CreatePasswordResetToken(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	token, err := r.tokens.NewToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	r.mu.Lock()
	u, ok := r.findLocked(func(u models.User) bool { return !u.IsDeleted() && u.Email == email })
	if !ok {
		r.mu.Unlock()
		return "", ErrUserNotFound
	}
	now := r.clock.Now()
	expires := now.Add(PasswordResetTokenTTL)
	u.PasswordResetToken = token
	u.PasswordResetExpires = &expires
	u.UpdatedAt = now
	r.users.Put(u.ID, u)
	r.mu.Unlock()

	notify.Send(ctx, r.notifier, r.logger, notify.Notification{
		Kind:        notify.KindPasswordReset,
		RecipientID: u.ID,
		Email:       u.Email,
		Payload:     map[string]string{"token": token, "displayName": u.DisplayName},
	})
	return token, nil
}

// ResetPassword replaces the credential when token is known and unexpired.
// The token is cleared on success.
func (r *UserRegistry) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidToken
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	// Check the token before paying for the hash.
	r.mu.RLock()
	_, ok := r.validResetLocked(token)
	r.mu.RUnlock()
	if !ok {
		return ErrInvalidToken
	}

	hash, err := r.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	r.mu.Lock()
	u, ok := r.validResetLocked(token)
	if !ok {
		r.mu.Unlock()
		return ErrInvalidToken
	}
	u.PasswordHash = hash
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
	u.UpdatedAt = r.clock.Now()
	r.users.Put(u.ID, u)
	r.mu.Unlock()

	r.logger.Info("Password reset", "user_id", u.ID)
	notify.Send(ctx, r.notifier, r.logger, notify.Notification{
		Kind:        notify.KindPasswordChanged,
		RecipientID: u.ID,
		Email:       u.Email,
		Payload:     map[string]string{"displayName": u.DisplayName},
	})
	return nil
}

// AccountState is the part of a User driven by the inactivity state
// machine.
type AccountState struct {
	Status              models.AccountStatus
	LastActiveAt        time.Time
	DeactivatedAt       *time.Time
	ScheduledDeletionAt *time.Time

	// CreatedAt is read-only.
	CreatedAt time.Time

	// Anonymize scrubs the profile and marks the account deleted when set.
	Anonymize bool
}

// UpdateAccountState runs fn on the account state of user id under the
// registry lock and stores the result. Nothing is written when fn returns
// an error or leaves the state unchanged.
func (r *UserRegistry) UpdateAccountState(id string, fn func(*AccountState) error) (models.UserView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users.Get(id)
	if !ok {
		return models.UserView{}, ErrUserNotFound
	}
	u = u.Clone()

	before := AccountState{
		Status:              u.Status,
		LastActiveAt:        u.LastActiveAt,
		DeactivatedAt:       u.DeactivatedAt,
		ScheduledDeletionAt: u.ScheduledDeletionAt,
		CreatedAt:           u.CreatedAt,
	}
	state := before
	if err := fn(&state); err != nil {
		return u.View(), err
	}
	if !state.Anonymize && state.Status == before.Status &&
		state.LastActiveAt.Equal(before.LastActiveAt) &&
		timeEqual(state.DeactivatedAt, before.DeactivatedAt) &&
		timeEqual(state.ScheduledDeletionAt, before.ScheduledDeletionAt) {
		return u.View(), nil
	}

	u.Status = state.Status
	u.LastActiveAt = state.LastActiveAt
	u.DeactivatedAt = state.DeactivatedAt
	u.ScheduledDeletionAt = state.ScheduledDeletionAt
	if state.Anonymize {
		anonymize(&u)
	}
	u.UpdatedAt = r.clock.Now()
	r.users.Put(id, u)
	return u.View(), nil
}

// IDs returns every user id, deleted accounts included, in creation order.
func (r *UserRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users.Keys()
}

// Len returns the number of stored accounts.
func (r *UserRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users.Len()
}

// Snapshot encodes every user for persistence.
func (r *UserRegistry) Snapshot() ([]storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotRecords(r.users)
}

// Restore replaces the registry contents with records.
func (r *UserRegistry) Restore(records []storage.Record) error {
	users, err := restoreRecords[models.User](records)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.users = users
	r.mu.Unlock()
	return nil
}

func (r *UserRegistry) findView(match func(models.User) bool) (models.UserView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.findLocked(match)
	if !ok {
		return models.UserView{}, ErrUserNotFound
	}
	return u.View(), nil
}

func (r *UserRegistry) findLocked(match func(models.User) bool) (models.User, bool) {
	u, ok := r.users.Find(match)
	if !ok {
		return models.User{}, false
	}
	return u.Clone(), true
}

func (r *UserRegistry) validResetLocked(token string) (models.User, bool) {
	u, ok := r.findLocked(func(u models.User) bool {
		return !u.IsDeleted() && u.PasswordResetToken == token
	})
	if !ok || tokenExpired(u.PasswordResetExpires, r.clock.Now()) {
		return models.User{}, false
	}
	return u, true
}

// conflictLocked checks the uniqueness of the non-empty identity fields
// among non-deleted users other than exceptID.
func (r *UserRegistry) conflictLocked(email, username, nickname, exceptID string) error {
	for _, u := range r.users.Values() {
		if u.ID == exceptID || u.IsDeleted() {
			continue
		}
		switch {
		case email != "" && u.Email == email:
			return ErrEmailTaken
		case username != "" && strings.EqualFold(u.Username, username):
			return ErrUsernameTaken
		case nickname != "" && strings.EqualFold(u.Nickname, nickname):
			return ErrNicknameTaken
		}
	}
	return nil
}

func (r *UserRegistry) uniqueUsernameLocked(base string) string {
	candidate := base
	for i := 1; r.conflictLocked("", candidate, "", "") != nil; i++ {
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return candidate
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// usernameBase derives a username stem from the local part of an email.
func usernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, c := range strings.ToLower(local) {
		if c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_') {
			b.WriteRune(c)
		}
	}
	base := b.String()
	if len(base) > 24 {
		base = base[:24]
	}
	if len(base) < 3 {
		base = "dancer"
	}
	return base
}

func displayNameFor(displayName, first, last, username string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	if name := strings.TrimSpace(first + " " + last); name != "" {
		return name
	}
	return username
}

func dedupeDances(in []models.DanceType) []models.DanceType {
	out := make([]models.DanceType, 0, len(in))
	for _, d := range in {
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// anonymize scrubs personal data in place. The record is kept so events
// and groups referencing the id stay consistent.
func anonymize(u *models.User) {
	u.Email = fmt.Sprintf("deleted_%s@deleted.local", u.ID)
	u.Username = "deleted_" + u.ID
	u.Nickname = ""
	u.FirstName = ""
	u.LastName = ""
	u.DisplayName = "Deleted user"
	u.Bio = ""
	u.AvatarURL = ""
	u.FavoriteDances = nil
	u.PasswordHash = ""
	u.ProviderID = ""
	u.EmailVerificationToken = ""
	u.EmailVerificationExpires = nil
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
	u.PushToken = ""
	u.PushEnabled = false
	u.Status = models.StatusDeleted
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func tokenExpired(expires *time.Time, now time.Time) bool {
	return expires == nil || !now.Before(*expires)
}
