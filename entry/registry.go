package entry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Corn-mrb/project/bot"
	"github.com/lmittmann/tint"
)

const (
	minCode = 1
	maxCode = 99
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("store not found")
	ErrNoChange           = errors.New("no changes supplied")
	ErrCodeSpaceExhausted = errors.New("no free store codes")
	ErrPersistence        = errors.New("error saving stores")
	ErrInvalidOptions     = errors.New("invalid options")

	// ErrNotOwner is returned when an authorized caller targets a store
	// owned by someone else. It matches ErrForbidden.
	ErrNotOwner = fmt.Errorf("%w: not the store owner", ErrForbidden)
)

// Caller identifies the user issuing a registry command.
type Caller struct {
	UserID  string
	GuildID string

	// RoleNames are the names of the caller's roles in GuildID.
	RoleNames []string
}

// CreateOptions are the fields of a new store. Empty role IDs and an empty
// passphrase mean "not set".
type CreateOptions struct {
	Name        string `binding:"required,max=100"`
	MinRoleID   string `binding:"omitempty,numeric"`
	GrantRoleID string `binding:"omitempty,numeric"`
	Passphrase  string `binding:"max=100"`
}

// UpdateOptions holds the fields to change. A nil field is left as is.
// Name and the role IDs are also left alone when empty; an empty
// Passphrase clears it.
type UpdateOptions struct {
	Name        *string `binding:"omitempty,max=100"`
	MinRoleID   *string `binding:"omitempty,numeric"`
	GrantRoleID *string `binding:"omitempty,numeric"`
	Passphrase  *string `binding:"omitempty,max=100"`
}

// withoutEmpty drops empty Name and role IDs, which leave those fields as
// they are. An empty Passphrase is kept since it clears the passphrase.
func (o UpdateOptions) withoutEmpty() UpdateOptions {
	for _, field := range []**string{&o.Name, &o.MinRoleID, &o.GrantRoleID} {
		if *field != nil && **field == "" {
			*field = nil
		}
	}
	return o
}

type ChangeKind int

const (
	ChangeName ChangeKind = iota
	ChangeMinRole
	ChangeGrantRole
	ChangePassphraseSet
	ChangePassphraseCleared
)

// Change describes one field modified by Update. Value is the new name or
// role ID, and empty for passphrase changes.
type Change struct {
	Kind  ChangeKind
	Value string
}

// Registry maps two-digit codes to stores. Every mutation persists the
// full set of stores through the backend before returning. If that fails
// the in-memory change is kept and ErrPersistence is returned.
type Registry struct {
	mu           sync.RWMutex
	stores       map[string]*Store
	backend      Backend
	allowedRoles []string
	artifactDir  string
	logger       *slog.Logger

	now  func() time.Time
	intN func(n int) int
}

func NewRegistry(backend Backend, cfg *Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		stores:       map[string]*Store{},
		backend:      backend,
		allowedRoles: slices.Clone(cfg.AllowedRoles),
		artifactDir:  cfg.ArtifactDir,
		logger:       logger,
		now:          time.Now,
		intN:         rand.IntN,
	}
}

// Load replaces the in-memory stores with the backend's.
func (r *Registry) Load(ctx context.Context) error {
	stores, err := r.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("error loading stores: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = stores
	r.logger.InfoContext(ctx, "loaded stores", "count", len(stores))
	return nil
}

// Authorized reports whether the caller holds one of the allowed roles.
func (r *Registry) Authorized(c Caller) bool {
	for _, name := range c.RoleNames {
		if slices.Contains(r.allowedRoles, name) {
			return true
		}
	}
	return false
}

// AllowedRoles returns the role names allowed to manage stores.
func (r *Registry) AllowedRoles() []string {
	return slices.Clone(r.allowedRoles)
}

// Create adds a store owned by the caller under a random free code.
func (r *Registry) Create(ctx context.Context, c Caller, opts CreateOptions) (string, Store, error) {
	if !r.Authorized(c) {
		return "", Store{}, ErrForbidden
	}
	if err := bot.Validate(opts); err != nil {
		return "", Store{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.nextCode()
	if err != nil {
		return "", Store{}, err
	}

	s := &Store{
		Name:          opts.Name,
		MinRoleID:     Snowflake(opts.MinRoleID),
		GrantRoleID:   Snowflake(opts.GrantRoleID),
		Passphrase:    NullableString(opts.Passphrase),
		OwnerID:       Snowflake(c.UserID),
		GuildID:       Snowflake(c.GuildID),
		CreatedAt:     NewTimestamp(r.now()),
		ApprovedUsers: []Snowflake{},
	}
	r.stores[code] = s

	logger := bot.Logger(ctx)
	logger.InfoContext(ctx, "created store", "code", code, "store", *s)

	return code, s.clone(), r.save(ctx)
}

// nextCode picks uniformly among the unused codes.
func (r *Registry) nextCode() (string, error) {
	free := make([]string, 0, maxCode)
	for n := minCode; n <= maxCode; n++ {
		code := fmt.Sprintf("%02d", n)
		if _, taken := r.stores[code]; !taken {
			free = append(free, code)
		}
	}
	if len(free) == 0 {
		return "", ErrCodeSpaceExhausted
	}
	return free[r.intN(len(free))], nil
}

// Update applies opts to the caller's store.
func (r *Registry) Update(
	ctx context.Context,
	c Caller,
	code string,
	opts UpdateOptions,
) (Store, []Change, error) {
	if !r.Authorized(c) {
		return Store{}, nil, ErrForbidden
	}
	opts = opts.withoutEmpty()
	if err := bot.Validate(opts); err != nil {
		return Store{}, nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stores[code]
	if !ok {
		return Store{}, nil, ErrNotFound
	}
	if string(s.OwnerID) != c.UserID {
		return Store{}, nil, ErrNotOwner
	}

	var changes []Change
	if opts.Name != nil {
		changes = append(changes, Change{Kind: ChangeName, Value: *opts.Name})
	}
	if opts.MinRoleID != nil {
		changes = append(changes, Change{Kind: ChangeMinRole, Value: *opts.MinRoleID})
	}
	if opts.GrantRoleID != nil {
		changes = append(changes, Change{Kind: ChangeGrantRole, Value: *opts.GrantRoleID})
	}
	if opts.Passphrase != nil {
		if *opts.Passphrase == "" {
			changes = append(changes, Change{Kind: ChangePassphraseCleared})
		} else {
			changes = append(changes, Change{Kind: ChangePassphraseSet})
		}
	}
	if len(changes) == 0 {
		return s.clone(), nil, ErrNoChange
	}

	for _, ch := range changes {
		switch ch.Kind {
		case ChangeName:
			s.Name = ch.Value
		case ChangeMinRole:
			s.MinRoleID = Snowflake(ch.Value)
		case ChangeGrantRole:
			s.GrantRoleID = Snowflake(ch.Value)
		case ChangePassphraseSet:
			s.Passphrase = NullableString(*opts.Passphrase)
		case ChangePassphraseCleared:
			s.Passphrase = ""
		}
	}
	updated := NewTimestamp(r.now())
	s.UpdatedAt = &updated

	bot.Logger(ctx).InfoContext(ctx, "updated store", "code", code, "store", *s, "changes", len(changes))

	return s.clone(), changes, r.save(ctx)
}

// List returns the caller's stores ordered by code.
func (r *Registry) List(_ context.Context, c Caller) ([]Listing, error) {
	if !r.Authorized(c) {
		return nil, ErrForbidden
	}
	return r.Owned(c.UserID), nil
}

// Owned returns the stores owned by ownerID ordered by code. An empty
// ownerID returns every store.
func (r *Registry) Owned(ownerID string) []Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rv := make([]Listing, 0, len(r.stores))
	for code, s := range r.stores {
		if ownerID != "" && string(s.OwnerID) != ownerID {
			continue
		}
		rv = append(rv, Listing{Code: code, Store: s.clone()})
	}
	slices.SortFunc(
		rv, func(a, b Listing) int {
			return strings.Compare(a.Code, b.Code)
		},
	)
	return rv
}

// Delete removes the caller's store and its generated artifact.
func (r *Registry) Delete(ctx context.Context, c Caller, code string) (Store, error) {
	if !r.Authorized(c) {
		return Store{}, ErrForbidden
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stores[code]
	if !ok {
		return Store{}, ErrNotFound
	}
	if string(s.OwnerID) != c.UserID {
		return Store{}, ErrNotOwner
	}

	logger := bot.Logger(ctx)
	if path := r.ArtifactPath(code); path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.WarnContext(ctx, "error removing store artifact", tint.Err(err), "path", path)
		}
	}

	delete(r.stores, code)
	logger.InfoContext(ctx, "deleted store", "code", code, "store", *s)

	return s.clone(), r.save(ctx)
}

// ArtifactPath is the generated file belonging to the store with code.
func (r *Registry) ArtifactPath(code string) string {
	if r.artifactDir == "" {
		return ""
	}
	return filepath.Join(r.artifactDir, "store_"+code+".png")
}

// Get returns a copy of the store with code.
func (r *Registry) Get(code string) (Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[code]
	if !ok {
		return Store{}, false
	}
	return s.clone(), true
}

// Approve adds userID to the store's approved users. It reports false
// without persisting when the user was already approved.
func (r *Registry) Approve(ctx context.Context, code string, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stores[code]
	if !ok {
		return false, ErrNotFound
	}
	if s.IsApproved(userID) {
		return false, nil
	}
	s.ApprovedUsers = append(s.ApprovedUsers, Snowflake(userID))
	return true, r.save(ctx)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// save persists a snapshot of every store. Callers hold r.mu.
func (r *Registry) save(ctx context.Context) error {
	snapshot := make(map[string]*Store, len(r.stores))
	for code, s := range r.stores {
		c := s.clone()
		snapshot[code] = &c
	}
	if err := r.backend.Save(ctx, snapshot); err != nil {
		bot.Logger(ctx).ErrorContext(ctx, "error saving stores", tint.Err(err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.backend.Close()
}
