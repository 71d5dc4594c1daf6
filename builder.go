package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/scriptbay/authcore/internal/rate"
	"github.com/scriptbay/authcore/internal/stores"
	"github.com/scriptbay/authcore/password"
	"github.com/scriptbay/authcore/session"
)

// Builder assembles an [Engine]. Every engine needs an [AccountStore] and
// a Redis client; everything else has working defaults.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     AccountStore
	auditSink AuditSink

	built bool
}

// New returns a [Builder] preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSessionSecret sets the HS256 session signing secret without touching
// the rest of the configuration.
func (b *Builder) WithSessionSecret(secret []byte) *Builder {
	b.config.Session.Secret = secret
	return b
}

// WithRedis sets the Redis client backing challenges, pending setups, and
// rate limiters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the persistence backend for accounts.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires all components, and returns the
// engine. A builder can be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("account store is required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(b.config.Password.Cost)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(session.Config{
		TTL:           b.config.Session.TTL,
		SigningMethod: session.SigningMethod(b.config.Session.SigningMethod),
		Secret:        b.config.Session.Secret,
		PrivateKey:    b.config.Session.PrivateKey,
		PublicKey:     b.config.Session.PublicKey,
		Issuer:        b.config.Session.Issuer,
		Leeway:        b.config.Session.Leeway,
	})
	if err != nil {
		return nil, err
	}

	b.built = true
	return &Engine{
		config:   b.config,
		store:    b.store,
		hasher:   hasher,
		totp:     newTOTPManager(b.config.TOTP),
		sessions: sessions,
		limiter: rate.New(b.redis, rate.Config{
			MaxLoginAttempts: b.config.RateLimit.MaxLoginAttempts,
			LoginCooldown:    b.config.RateLimit.LoginCooldown,
			MaxCodeAttempts:  b.config.RateLimit.MaxCodeAttempts,
			CodeCooldown:     b.config.RateLimit.CodeCooldown,
			EnableIPThrottle: b.config.RateLimit.EnableIPThrottle,
		}),
		pending:   stores.NewPendingSetupStore(b.redis, b.config.Setup.RedisPrefix),
		challenge: stores.NewLoginChallengeStore(b.redis, b.config.Challenge.RedisPrefix),
		audit:     newAuditDispatcher(b.config.Audit, b.auditSink),
	}, nil
}
