// Package identity maps escalation recipients and department staff to the
// push tokens registered for them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// TokenDirectory answers which device tokens belong to an identity or to the
// members of a department. An unknown identity has no tokens.
type TokenDirectory interface {
	TokensForIdentity(ctx context.Context, identity string) ([]string, error)
	TokensForDepartmentMembers(ctx context.Context, department string) ([]string, error)
}

// Registrar stores and removes tokens.
type Registrar interface {
	Register(ctx context.Context, reg Registration) error
	Unregister(ctx context.Context, reg Registration) error
}

// Registration ties a device token to a user identity and, optionally, the
// departments that user works in.
type Registration struct {
	Identity    string   `json:"identity"`
	Token       string   `json:"token"`
	Departments []string `json:"departments,omitempty"`
}

func (r Registration) Validate() error {
	if strings.TrimSpace(r.Identity) == "" {
		return errors.New("identity is required")
	}
	if strings.TrimSpace(r.Token) == "" {
		return errors.New("token is required")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

const (
	identityKeyPrefix   = "push_tokens:identity:"
	departmentKeyPrefix = "push_tokens:department:"
)

func identityKey(id string) string     { return identityKeyPrefix + id }
func departmentKey(dept string) string { return departmentKeyPrefix + dept }

type setClient interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// RedisDirectory keeps one Redis set of tokens per identity and per department.
type RedisDirectory struct {
	rdb setClient
}

func NewRedisDirectory(rdb setClient) *RedisDirectory {
	return &RedisDirectory{rdb: rdb}
}

func (d *RedisDirectory) TokensForIdentity(ctx context.Context, id string) ([]string, error) {
	return d.members(ctx, identityKey(id))
}

func (d *RedisDirectory) TokensForDepartmentMembers(ctx context.Context, dept string) ([]string, error) {
	return d.members(ctx, departmentKey(dept))
}

func (d *RedisDirectory) members(ctx context.Context, key string) ([]string, error) {
	tokens, err := d.rdb.SMembers(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (d *RedisDirectory) Register(ctx context.Context, reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	if err := d.rdb.SAdd(ctx, identityKey(reg.Identity), reg.Token).Err(); err != nil {
		return fmt.Errorf("register token: %w", err)
	}
	for _, dept := range reg.Departments {
		if err := d.rdb.SAdd(ctx, departmentKey(dept), reg.Token).Err(); err != nil {
			return fmt.Errorf("register token for %s: %w", dept, err)
		}
	}
	return nil
}

func (d *RedisDirectory) Unregister(ctx context.Context, reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	if err := d.rdb.SRem(ctx, identityKey(reg.Identity), reg.Token).Err(); err != nil {
		return fmt.Errorf("unregister token: %w", err)
	}
	for _, dept := range reg.Departments {
		if err := d.rdb.SRem(ctx, departmentKey(dept), reg.Token).Err(); err != nil {
			return fmt.Errorf("unregister token for %s: %w", dept, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory
// ---------------------------------------------------------------------------

// StaticDirectory holds tokens in process memory. Used when no Redis is
// configured and in tests.
type StaticDirectory struct {
	mu          sync.RWMutex
	identities  map[string]map[string]struct{}
	departments map[string]map[string]struct{}
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		identities:  make(map[string]map[string]struct{}),
		departments: make(map[string]map[string]struct{}),
	}
}

func (d *StaticDirectory) TokensForIdentity(_ context.Context, id string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return setMembers(d.identities[id]), nil
}

func (d *StaticDirectory) TokensForDepartmentMembers(_ context.Context, dept string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return setMembers(d.departments[dept]), nil
}

func (d *StaticDirectory) Register(_ context.Context, reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	addMember(d.identities, reg.Identity, reg.Token)
	for _, dept := range reg.Departments {
		addMember(d.departments, dept, reg.Token)
	}
	return nil
}

func (d *StaticDirectory) Unregister(_ context.Context, reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.identities[reg.Identity], reg.Token)
	for _, dept := range reg.Departments {
		delete(d.departments[dept], reg.Token)
	}
	return nil
}

func addMember(sets map[string]map[string]struct{}, key, token string) {
	s, ok := sets[key]
	if !ok {
		s = make(map[string]struct{})
		sets[key] = s
	}
	s[token] = struct{}{}
}

func setMembers(s map[string]struct{}) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
