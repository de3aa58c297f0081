package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/openrelay/gateway/internal/database"
)

// GormStore implements Store on top of a *gorm.DB, grounded on the
// transactional patterns of internal/database/pool.go.
type GormStore struct {
	db   *gorm.DB
	pool *database.PoolManager
}

// NewGormStore wraps an already-opened, already-migrated *gorm.DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithPool attaches a PoolManager so ApplyUsage and RedeemLoginCode retry
// on transient errors (deadlocks, dropped connections) instead of failing
// the request outright. Without a pool, both fall back to a bare
// transaction/statement against db, which is what every test in this
// package exercises.
func (s *GormStore) WithPool(pool *database.PoolManager) *GormStore {
	s.pool = pool
	return s
}

// transact runs fn in a transaction, retrying on the pool's transient-error
// classification when a pool is attached.
func (s *GormStore) transact(ctx context.Context, fn database.TransactionFunc) error {
	if s.pool != nil {
		const maxRetries = 3
		return s.pool.WithTransactionRetry(ctx, maxRetries, fn)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// AutoMigrate creates/updates every table the gateway depends on, mirroring
// llm/db_init.go's InitDatabase.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Provider{},
		&APIKey{},
		&ModelPrice{},
		&CachedModel{},
		&RequestLog{},
		&AdminToken{},
		&AdminKey{},
		&Challenge{},
		&AdminSession{},
		&LoginCode{},
	)
}

// --- RequestLogStore ---

func (s *GormStore) LogRequest(ctx context.Context, entry *RequestLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) RecentLogs(ctx context.Context, clientToken string, limit int) ([]RequestLog, error) {
	var logs []RequestLog
	err := s.db.WithContext(ctx).
		Where("client_token = ?", clientToken).
		Order("timestamp desc").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	// Spec requires newest last.
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

// --- ModelCache ---

func (s *GormStore) CacheModels(ctx context.Context, providerID uint, models []CachedModel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider_id = ?", providerID).Delete(&CachedModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Create(&models).Error
	})
}

func (s *GormStore) AppendCachedModels(ctx context.Context, providerID uint, models []CachedModel) error {
	if len(models) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses().Create(&models).Error
}

func (s *GormStore) CachedModels(ctx context.Context, providerID uint) ([]CachedModel, error) {
	var models []CachedModel
	err := s.db.WithContext(ctx).Where("provider_id = ?", providerID).Find(&models).Error
	return models, err
}

func (s *GormStore) IsCacheFresh(ctx context.Context, providerID uint, ttl time.Duration) (bool, error) {
	var newest CachedModel
	err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("cached_at desc").
		First(&newest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Since(newest.CachedAt) < ttl, nil
}

func (s *GormStore) RemoveCachedModels(ctx context.Context, providerID uint) error {
	return s.db.WithContext(ctx).Where("provider_id = ?", providerID).Delete(&CachedModel{}).Error
}

// --- ProviderStore ---

func (s *GormStore) CreateProvider(ctx context.Context, p *Provider) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *GormStore) GetProvider(ctx context.Context, name string) (*Provider, error) {
	var p Provider
	err := s.db.WithContext(ctx).Preload("APIKeys").Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) ListProviders(ctx context.Context) ([]Provider, error) {
	var providers []Provider
	err := s.db.WithContext(ctx).Preload("APIKeys").Find(&providers).Error
	return providers, err
}

func (s *GormStore) DeleteProvider(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Provider
		if err := tx.Where("name = ?", name).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		// GORM's OnDelete:CASCADE constraint handles APIKeys/CachedModels on
		// databases that enforce foreign keys; delete explicitly too so the
		// cleanup holds on SQLite connections opened without FK pragma.
		if err := tx.Where("provider_id = ?", p.ID).Delete(&APIKey{}).Error; err != nil {
			return err
		}
		if err := tx.Where("provider_id = ?", p.ID).Delete(&CachedModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&p).Error
	})
}

func (s *GormStore) AddAPIKey(ctx context.Context, providerID uint, key string, priority, weight int) (*APIKey, error) {
	k := &APIKey{ProviderID: providerID, Key: key, Priority: priority, Weight: weight, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(k).Error; err != nil {
		return nil, err
	}
	return k, nil
}

func (s *GormStore) ListAPIKeys(ctx context.Context, providerID uint) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.WithContext(ctx).
		Where("provider_id = ? AND disabled = ?", providerID, false).
		Order("priority asc, id asc").
		Find(&keys).Error
	return keys, err
}

func (s *GormStore) DeleteAPIKey(ctx context.Context, providerID uint, key string) error {
	return s.db.WithContext(ctx).
		Where("provider_id = ? AND key = ?", providerID, key).
		Delete(&APIKey{}).Error
}

func (s *GormStore) SetModelPrice(ctx context.Context, price *ModelPrice) error {
	price.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).
		Where("provider = ? AND model = ?", price.Provider, price.Model).
		Assign(*price).
		FirstOrCreate(&ModelPrice{}).Error
}

func (s *GormStore) GetModelPrice(ctx context.Context, provider, model string) (*ModelPrice, error) {
	var price ModelPrice
	err := s.db.WithContext(ctx).Where("provider = ? AND model = ?", provider, model).First(&price).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &price, nil
}

// --- TokenStore ---

func (s *GormStore) GetToken(ctx context.Context, token string) (*AdminToken, error) {
	var t AdminToken
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *GormStore) CreateToken(ctx context.Context, t *AdminToken) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormStore) UpdateToken(ctx context.Context, t *AdminToken) error {
	return s.db.WithContext(ctx).Save(t).Error
}

func (s *GormStore) DeleteToken(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&AdminToken{}).Error
}

func (s *GormStore) ListTokens(ctx context.Context) ([]AdminToken, error) {
	var tokens []AdminToken
	err := s.db.WithContext(ctx).Find(&tokens).Error
	return tokens, err
}

// ApplyUsage runs inside a transaction so concurrent requests against the
// same client token serialize through the row lock the UPDATE takes,
// satisfying the accounting update's atomicity requirement.
func (s *GormStore) ApplyUsage(ctx context.Context, token string, promptTokens, completionTokens, totalTokens int, amount float64) error {
	return s.transact(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&AdminToken{}).
			Where("token = ?", token).
			Updates(map[string]any{
				"prompt_tokens_spent":     gorm.Expr("prompt_tokens_spent + ?", promptTokens),
				"completion_tokens_spent": gorm.Expr("completion_tokens_spent + ?", completionTokens),
				"total_tokens_spent":      gorm.Expr("total_tokens_spent + ?", totalTokens),
				"amount_spent":            gorm.Expr("amount_spent + ?", amount),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// --- AdminKeyStore ---

func (s *GormStore) GetAdminKey(ctx context.Context, fingerprint string) (*AdminKey, error) {
	var k AdminKey
	err := s.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *GormStore) ListAdminKeys(ctx context.Context) ([]AdminKey, error) {
	var keys []AdminKey
	err := s.db.WithContext(ctx).Find(&keys).Error
	return keys, err
}

func (s *GormStore) CreateAdminKey(ctx context.Context, k *AdminKey) error {
	return s.db.WithContext(ctx).Create(k).Error
}

func (s *GormStore) DeleteAdminKey(ctx context.Context, fingerprint string) error {
	return s.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).Delete(&AdminKey{}).Error
}

func (s *GormStore) TouchLastUsed(ctx context.Context, fingerprint string, when time.Time) error {
	return s.db.WithContext(ctx).Model(&AdminKey{}).
		Where("fingerprint = ?", fingerprint).
		Update("last_used_at", when).Error
}

// --- ChallengeStore ---

func (s *GormStore) CreateChallenge(ctx context.Context, c *Challenge) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *GormStore) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	var c Challenge
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConsumeChallenge performs the compare-and-swap consumed=false -> true in
// a single UPDATE ... WHERE consumed = false, so exactly one concurrent
// verify call observes RowsAffected == 1.
func (s *GormStore) ConsumeChallenge(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&Challenge{}).
		Where("id = ? AND consumed = ?", id, false).
		Update("consumed", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// --- SessionStore ---

func (s *GormStore) CreateSession(ctx context.Context, sess *AdminSession) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *GormStore) GetSession(ctx context.Context, token string) (*AdminSession, error) {
	var sess AdminSession
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *GormStore) DeleteSession(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&AdminSession{}).Error
}

// --- LoginCodeStore ---

func (s *GormStore) CreateLoginCode(ctx context.Context, c *LoginCode) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *GormStore) GetLoginCode(ctx context.Context, code string) (*LoginCode, error) {
	var c LoginCode
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// RedeemLoginCode performs the atomic check-and-increment required by
// RedeemLoginCode's contract: the UPDATE's WHERE clause re-checks every
// usability condition so only the request that actually flips uses<max_uses
// to true gets RowsAffected == 1, even under 50 concurrent callers.
func (s *GormStore) RedeemLoginCode(ctx context.Context, code string, now time.Time) (bool, error) {
	var redeemed bool
	err := s.transact(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&LoginCode{}).
			Where("code = ? AND disabled = ? AND expires_at > ? AND uses < max_uses", code, false, now).
			Update("uses", gorm.Expr("uses + 1"))
		if result.Error != nil {
			return result.Error
		}
		redeemed = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return redeemed, nil
}

func (s *GormStore) LatestLoginCode(ctx context.Context) (*LoginCode, error) {
	var c LoginCode
	err := s.db.WithContext(ctx).Order("created_at desc").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ Store = (*GormStore)(nil)
