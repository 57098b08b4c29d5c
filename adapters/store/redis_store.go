package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

const (
	consumeStatusNotFound int64 = 0
	consumeStatusExpired  int64 = 1
	consumeStatusConsumed int64 = 2
	consumeStatusOK       int64 = 3
)

// consumeChallengeScript flips a challenge hash to consumed.
// KEYS[1] challenge key; ARGV[1] now (ms); ARGV[2] retention (ms)
const consumeChallengeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local expires_at = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if not expires_at or expires_at <= tonumber(ARGV[1]) then
  return 1
end
if redis.call("HGET", KEYS[1], "consumed") == "1" then
  return 2
end
redis.call("HSET", KEYS[1], "consumed", "1", "consumed_at", ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 3
`

var consumeChallengeLua = redis.NewScript(consumeChallengeScript)

// markRevokedScript keeps the first entry and only ever extends its TTL.
// KEYS[1] revoked key; ARGV[1] entry; ARGV[2] ttl (ms)
const markRevokedScript = `
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
  return 1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl >= 0 and ttl < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

var markRevokedLua = redis.NewScript(markRevokedScript)

// markSupersededScript records a rotation once. The successor pair lives in
// a second key that expires with the grace window.
// KEYS[1] marker; KEYS[2] successor; ARGV[1] marker; ARGV[2] ttl (ms);
// ARGV[3] successor; ARGV[4] grace (ms)
const markSupersededScript = `
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
  if tonumber(ARGV[4]) > 0 then
    redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[4])
  end
  return {1}
end
local prior = redis.call("GET", KEYS[1]) or ""
local successor = redis.call("GET", KEYS[2]) or ""
return {0, prior, successor}
`

var markSupersededLua = redis.NewScript(markSupersededScript)

// RedisStore is a Redis implementation of the challenge and session stores
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{
		client: client,
		prefix: o.prefix,
		now:    o.now,
	}
}

func (s *RedisStore) challengeKey(id string) string  { return s.prefix + "challenge:" + id }
func (s *RedisStore) revokedKey(id string) string    { return s.prefix + "revoked:" + id }
func (s *RedisStore) supersededKey(id string) string { return s.prefix + "superseded:" + id }
func (s *RedisStore) successorKey(id string) string  { return s.prefix + "successor:" + id }
func (s *RedisStore) familiesKey(sub string) string  { return s.prefix + "families:" + sub }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
}

// SaveChallenge stores the challenge as a hash with ttl
func (s *RedisStore) SaveChallenge(ctx context.Context, c *core.Challenge, ttl time.Duration) error {
	key := s.challengeKey(c.ID)
	fields := map[string]interface{}{
		"nonce":      c.Nonce,
		"address":    c.Address,
		"domain":     c.Domain,
		"uri":        c.URI,
		"statement":  c.Statement,
		"chain_id":   c.ChainID,
		"issued_at":  c.IssuedAt.UnixMilli(),
		"expires_at": c.ExpiresAt.UnixMilli(),
		"consumed":   "0",
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// GetChallenge loads a challenge hash
func (s *RedisStore) GetChallenge(ctx context.Context, id string) (*core.Challenge, error) {
	fields, err := s.client.HGetAll(ctx, s.challengeKey(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, core.ErrChallengeNotFound
	}

	chainID, err := strconv.ParseInt(fields["chain_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt challenge %s: %w", id, err)
	}

	c := &core.Challenge{
		ID:        id,
		Nonce:     fields["nonce"],
		Address:   fields["address"],
		Domain:    fields["domain"],
		URI:       fields["uri"],
		Statement: fields["statement"],
		ChainID:   chainID,
		IssuedAt:  parseMillis(fields["issued_at"]),
		ExpiresAt: parseMillis(fields["expires_at"]),
		Consumed:  fields["consumed"] == "1",
	}
	if v, ok := fields["consumed_at"]; ok {
		c.ConsumedAt = parseMillis(v)
	}
	return c, nil
}

// ConsumeChallenge atomically marks the challenge consumed
func (s *RedisStore) ConsumeChallenge(ctx context.Context, id string, now time.Time, retention time.Duration) error {
	status, err := consumeChallengeLua.Run(
		ctx, s.client,
		[]string{s.challengeKey(id)},
		now.UnixMilli(), retention.Milliseconds(),
	).Int64()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return unavailable(err)
	}

	switch status {
	case consumeStatusOK:
		return nil
	case consumeStatusNotFound:
		return core.ErrChallengeNotFound
	case consumeStatusExpired:
		return core.ErrChallengeExpired
	case consumeStatusConsumed:
		return core.ErrChallengeAlreadyConsumed
	default:
		return fmt.Errorf("unexpected consume status %d", status)
	}
}

// IsRevoked checks if an id is on the denylist
func (s *RedisStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(id)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// MarkRevoked adds an entry to the denylist
func (s *RedisStore) MarkRevoked(ctx context.Context, entry core.RevocationEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode revocation: %w", err)
	}

	ttl := revocationTTL(entry, s.now())
	if err := markRevokedLua.Run(ctx, s.client, []string{s.revokedKey(entry.ID)}, payload, ttl.Milliseconds()).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Revocation returns the stored entry for id
func (s *RedisStore) Revocation(ctx context.Context, id string) (*core.RevocationEntry, error) {
	raw, err := s.client.Get(ctx, s.revokedKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(err)
	}

	var entry core.RevocationEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode revocation: %w", err)
	}
	return &entry, nil
}

type supersededMarker struct {
	FamilyID     string    `json:"family_id"`
	SupersededAt time.Time `json:"superseded_at"`
}

// MarkSuperseded records a rotation unless one was already recorded
func (s *RedisStore) MarkSuperseded(ctx context.Context, sup core.Supersession, ttl, grace time.Duration) (*core.Supersession, error) {
	marker, err := json.Marshal(supersededMarker{FamilyID: sup.FamilyID, SupersededAt: sup.SupersededAt})
	if err != nil {
		return nil, fmt.Errorf("encode supersession: %w", err)
	}
	var successor []byte
	if sup.Successor != nil {
		if successor, err = json.Marshal(sup.Successor); err != nil {
			return nil, fmt.Errorf("encode successor: %w", err)
		}
	}
	if ttl < grace {
		ttl = grace
	}

	res, err := markSupersededLua.Run(
		ctx, s.client,
		[]string{s.supersededKey(sup.RefreshID), s.successorKey(sup.RefreshID)},
		marker, ttl.Milliseconds(), successor, grace.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("unexpected supersede reply")
	}
	if won, _ := res[0].(int64); won == 1 {
		return nil, nil
	}

	prior := &core.Supersession{RefreshID: sup.RefreshID}
	if len(res) > 1 {
		if raw, _ := res[1].(string); raw != "" {
			var m supersededMarker
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				return nil, fmt.Errorf("decode supersession: %w", err)
			}
			prior.FamilyID = m.FamilyID
			prior.SupersededAt = m.SupersededAt
		}
	}
	if len(res) > 2 {
		if raw, _ := res[2].(string); raw != "" {
			var pair core.TokenPair
			if err := json.Unmarshal([]byte(raw), &pair); err != nil {
				return nil, fmt.Errorf("decode successor: %w", err)
			}
			prior.Successor = &pair
		}
	}
	return prior, nil
}

// TrackFamily records a live family of subject until expiresAt
func (s *RedisStore) TrackFamily(ctx context.Context, subject, familyID string, expiresAt time.Time) error {
	key := s.familiesKey(subject)
	now := s.now()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiresAt.UnixMilli()), Member: familyID})
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
		return nil
	})
	if err != nil {
		return unavailable(err)
	}

	// The index lives as long as its longest family
	last, err := s.client.ZRangeWithScores(ctx, key, -1, -1).Result()
	if err != nil {
		return unavailable(err)
	}
	if len(last) == 1 {
		ttl := time.UnixMilli(int64(last[0].Score)).Sub(now)
		if err := s.client.PExpire(ctx, key, ttl).Err(); err != nil {
			return unavailable(err)
		}
	}
	return nil
}

// Families returns the live families of subject
func (s *RedisStore) Families(ctx context.Context, subject string) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.familiesKey(subject), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(s.now().UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
