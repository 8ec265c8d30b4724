package entry

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"
)

var errInvalidSnowflake = errors.New("invalid snowflake")

// Snowflake is a Discord ID. Stored files written by older deployments
// hold IDs as JSON numbers too large for float64, so the digits are kept
// as text and written back out as a bare number.
type Snowflake string

//goland:noinspection GoMixedReceiverTypes
func (s Snowflake) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	if isDigits(string(s)) {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

//goland:noinspection GoMixedReceiverTypes
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case string(data) == "null":
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = Snowflake(v)
	case isDigits(string(data)):
		*s = Snowflake(data)
	default:
		return fmt.Errorf("%w: %s", errInvalidSnowflake, data)
	}
	return nil
}

//goland:noinspection GoMixedReceiverTypes
func (s *Snowflake) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = ""
	case string:
		*s = Snowflake(v)
	case []byte:
		*s = Snowflake(v)
	case int64:
		*s = Snowflake(strconv.FormatInt(v, 10))
	default:
		return fmt.Errorf("%w: unsupported type %T", errInvalidSnowflake, value)
	}
	return nil
}

//goland:noinspection GoMixedReceiverTypes
func (s Snowflake) Value() (driver.Value, error) {
	if s == "" {
		return nil, nil
	}
	return string(s), nil
}

//goland:noinspection GoMixedReceiverTypes
func (s Snowflake) String() string {
	return string(s)
}

// compareSnowflakes orders IDs numerically, so older IDs sort first.
func compareSnowflakes(a, b string) int {
	ai, aErr := strconv.ParseUint(a, 10, 64)
	bi, bErr := strconv.ParseUint(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// naiveISOLayout matches Python's datetime.isoformat() for naive local
// times, with or without microseconds.
const naiveISOLayout = "2006-01-02T15:04:05.999999999"

// Timestamp reads RFC 3339 or naive ISO-8601 (interpreted as local time)
// and writes RFC 3339.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t Timestamp) MarshalYAML() (any, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.Format(time.RFC3339), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := parseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(naiveISOLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return ts, nil
}

type NullableString string

//goland:noinspection GoMixedReceiverTypes
func (ns *NullableString) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*ns = ""
	case string:
		*ns = NullableString(v)
	case []byte:
		*ns = NullableString(v)
	default:
		return errors.New("failed to cast to string")
	}
	return nil
}

//goland:noinspection GoMixedReceiverTypes
func (ns NullableString) Value() (driver.Value, error) {
	if ns == "" {
		return nil, nil
	}
	return string(ns), nil
}

//goland:noinspection GoMixedReceiverTypes
func (ns NullableString) MarshalJSON() ([]byte, error) {
	if ns == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(ns))
}

//goland:noinspection GoMixedReceiverTypes
func (ns *NullableString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*ns = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*ns = NullableString(s)
	return nil
}

//goland:noinspection GoMixedReceiverTypes
func (ns NullableString) String() string {
	return string(ns)
}

// Store is a virtual venue visitors enter with its two-digit code.
type Store struct {
	Name          string         `json:"store_name" yaml:"store_name"`
	MinRoleID     Snowflake      `json:"min_role_id" yaml:"min_role_id,omitempty"`
	GrantRoleID   Snowflake      `json:"grant_role_id" yaml:"grant_role_id,omitempty"`
	Passphrase    NullableString `json:"passphrase" yaml:"-"`
	OwnerID       Snowflake      `json:"owner_id" yaml:"owner_id"`
	GuildID       Snowflake      `json:"guild_id" yaml:"guild_id"`
	CreatedAt     Timestamp      `json:"created_at" yaml:"created_at"`
	UpdatedAt     *Timestamp     `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	ApprovedUsers []Snowflake    `json:"approved_users" yaml:"approved_users"`
}

func (s Store) HasPassphrase() bool {
	return s.Passphrase != ""
}

// IsApproved reports whether userID has already been let in.
func (s Store) IsApproved(userID string) bool {
	return slices.Contains(s.ApprovedUsers, Snowflake(userID))
}

func (s Store) clone() Store {
	rv := s
	rv.ApprovedUsers = slices.Clone(s.ApprovedUsers)
	if rv.ApprovedUsers == nil {
		rv.ApprovedUsers = []Snowflake{}
	}
	if s.UpdatedAt != nil {
		updated := *s.UpdatedAt
		rv.UpdatedAt = &updated
	}
	return rv
}

func (s Store) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("name", s.Name),
		slog.String("owner_id", s.OwnerID.String()),
		slog.String("guild_id", s.GuildID.String()),
		slog.Bool("passphrase", s.HasPassphrase()),
		slog.Int("approved_users", len(s.ApprovedUsers)),
	}
	if s.MinRoleID != "" {
		attrs = append(attrs, slog.String("min_role_id", s.MinRoleID.String()))
	}
	if s.GrantRoleID != "" {
		attrs = append(attrs, slog.String("grant_role_id", s.GrantRoleID.String()))
	}
	return slog.GroupValue(attrs...)
}

// Listing pairs a store with its code.
type Listing struct {
	Code  string `json:"code" yaml:"code"`
	Store Store  `json:"store" yaml:"store"`
}
