package entry

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

const (
	testGuildID   = "100"
	testOwnerID   = "1"
	testVisitorID = "2"

	roleMemberID  = "201"
	roleVIPID     = "202"
	roleVisitorID = "203"
	roleHelperID  = "204"
)

// memoryBackend keeps the last saved snapshot. saveErr fails every Save.
type memoryBackend struct {
	mu      sync.Mutex
	stores  map[string]*Store
	saves   int
	saveErr error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{stores: map[string]*Store{}}
}

func (m *memoryBackend) Load(_ context.Context) (map[string]*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.stores), nil
}

func (m *memoryBackend) Save(_ context.Context, stores map[string]*Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.stores = maps.Clone(stores)
	return nil
}

func (m *memoryBackend) Close() error {
	return nil
}

func (m *memoryBackend) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type directMessage struct {
	UserID string
	Msg    *discordgo.MessageSend
}

// fakePlatform serves members and roles from memory and records role
// grants and DMs.
type fakePlatform struct {
	mu       sync.Mutex
	members  map[string]*discordgo.Member
	roles    []*discordgo.Role
	rolesErr error
	sendErr  error
	addErr   error
	added    []string
	sent     []directMessage
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		members: map[string]*discordgo.Member{},
		roles: []*discordgo.Role{
			{ID: testGuildID, Name: "@everyone", Position: 0},
			{ID: roleMemberID, Name: "Member", Position: 1},
			{ID: roleVisitorID, Name: "Visitor", Position: 1},
			{ID: roleVIPID, Name: "VIP", Position: 2},
			{ID: roleHelperID, Name: "Helper", Position: 3},
		},
	}
}

func (p *fakePlatform) addMember(userID string, roleIDs ...string) *discordgo.Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := &discordgo.Member{
		GuildID: testGuildID,
		User:    &discordgo.User{ID: userID, Username: "user" + userID},
		Roles:   roleIDs,
	}
	p.members[userID] = m
	return m
}

func (p *fakePlatform) Member(_ context.Context, _ string, userID string) (*discordgo.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[userID]
	if !ok {
		return nil, ErrNotMember
	}
	return m, nil
}

func (p *fakePlatform) Roles(_ context.Context, _ string) ([]*discordgo.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roles, p.rolesErr
}

func (p *fakePlatform) AddRole(_ context.Context, _ string, userID string, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addErr != nil {
		return p.addErr
	}
	p.added = append(p.added, userID+":"+roleID)
	if m, ok := p.members[userID]; ok {
		m.Roles = append(m.Roles, roleID)
	}
	return nil
}

func (p *fakePlatform) SendDirect(_ context.Context, userID string, msg *discordgo.MessageSend) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return errors.Join(ErrDeliveryFailed, p.sendErr)
	}
	p.sent = append(p.sent, directMessage{UserID: userID, Msg: msg})
	return nil
}

func (p *fakePlatform) roleGrants() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.added...)
}

func (p *fakePlatform) directMessages() []directMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]directMessage(nil), p.sent...)
}

type notification struct {
	UserID string
	Embeds []*discordgo.MessageEmbed
}

// recordingNotifier records notifications synchronously.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, embeds ...*discordgo.MessageEmbed) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: userID, Embeds: embeds})
}

func (n *recordingNotifier) notifications() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

func newTestEntryConfig(t testing.TB) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StoresFile = ""
	cfg.ArtifactDir = t.TempDir()
	cfg.AllowedRoles = []string{"Helper"}
	return cfg
}

func newTestRegistry(t testing.TB) (*Registry, *memoryBackend) {
	t.Helper()
	backend := newMemoryBackend()
	r := NewRegistry(backend, newTestEntryConfig(t), slog.Default())
	r.now = func() time.Time {
		return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	}
	return r, backend
}

func ownerCaller() Caller {
	return Caller{UserID: testOwnerID, GuildID: testGuildID, RoleNames: []string{"Helper"}}
}

func ptr[T any](v T) *T {
	return &v
}

type verifierFixture struct {
	registry *Registry
	backend  *memoryBackend
	tracker  *ChallengeTracker
	platform *fakePlatform
	notifier *recordingNotifier
	verifier *Verifier
}

func newVerifierFixture(t testing.TB) *verifierFixture {
	t.Helper()
	registry, backend := newTestRegistry(t)
	f := &verifierFixture{
		registry: registry,
		backend:  backend,
		tracker:  NewChallengeTracker(),
		platform: newFakePlatform(),
		notifier: &recordingNotifier{},
	}
	f.verifier = NewVerifier(f.registry, f.tracker, f.platform, f.notifier)
	f.platform.addMember(testOwnerID, roleHelperID)
	return f
}

func (f *verifierFixture) createStore(t testing.TB, opts CreateOptions) string {
	t.Helper()
	code, _, err := f.registry.Create(context.Background(), ownerCaller(), opts)
	require.NoError(t, err)
	return code
}
