// Package apikey maneja el ciclo de vida de las API keys: emisión, validación
// por hash, listado, revocación y borrado.
//
// Formato del plaintext: "rk_" + 64 hex chars minúsculas (32 bytes random).
// En el store solo vive sha256(plaintext) en hex; el plaintext se devuelve una
// única vez, al emitir.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rolekits/core/internal/cache"
	"github.com/rolekits/core/internal/observability/logger"
	"github.com/rolekits/core/internal/store/core"
)

const (
	// Prefix distingue una API key de cualquier otra credencial en el mismo
	// header, así la validación descarta input ajeno sin tocar el store.
	Prefix = "rk_"

	secretBytes  = 32
	plaintextLen = len(Prefix) + secretBytes*2
)

// ErrKeyNotFound cubre por igual hash sin match, key revocada y key vencida.
// Validate no distingue causas: todas significan "esta credencial no sirve".
var ErrKeyNotFound = errors.New("api key not found")

// Service implementa las operaciones de KeyStore sobre un core.APIKeyStore.
// El estado compartido es del store; el Service en sí no tiene locks.
type Service struct {
	store    core.APIKeyStore
	cache    cache.Client
	cacheTTL time.Duration
	now      func() time.Time
}

// Option configura el Service.
type Option func(*Service)

// WithCache habilita el read-through cache de validaciones exitosas.
// TTL corto: una revocación hecha por otra réplica sin cache compartido puede
// tardar hasta ttl en ser visible.
func WithCache(c cache.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithClock reemplaza el reloj. Solo para tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService crea el servicio de API keys.
func NewService(store core.APIKeyStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cacheTTL: 30 * time.Second,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HashSecret devuelve sha256(plaintext) en hex, el formato persistido.
func HashSecret(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// HasPrefix reporta si el candidato tiene pinta de API key. Barato: solo
// mira el prefijo, no valida nada.
func HasPrefix(candidate string) bool {
	return len(candidate) >= len(Prefix) && candidate[:len(Prefix)] == Prefix
}

// Issue genera una key nueva para el owner y devuelve el plaintext junto con
// los metadatos persistidos. expiresInDays <= 0 significa sin vencimiento.
func (s *Service) Issue(ctx context.Context, ownerID, name string, expiresInDays int) (string, *core.APIKey, error) {
	if ownerID == "" {
		return "", nil, core.ErrInvalid
	}

	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	plaintext := Prefix + hex.EncodeToString(buf)

	now := s.now().UTC()
	k := &core.APIKey{
		ID:         uuid.NewString(),
		SecretHash: HashSecret(plaintext),
		OwnerID:    ownerID,
		Name:       name,
		CreatedAt:  now,
		Active:     true,
	}
	if expiresInDays > 0 {
		exp := now.Add(time.Duration(expiresInDays) * 24 * time.Hour)
		k.ExpiresAt = &exp
	}

	if err := s.store.InsertAPIKey(ctx, k); err != nil {
		return "", nil, err
	}

	logger.From(ctx).Info("api key issued",
		logger.Component("apikey"),
		logger.Op("issue"),
		logger.KeyID(k.ID),
		logger.SubjectID(ownerID),
	)
	return plaintext, k, nil
}

// Validate resuelve un candidato a su key persistida.
// Camino rápido: si no tiene el prefijo o el largo esperado, falla sin tocar
// el store. Para un match devuelve la key y toca last_used_at en background;
// ese touch es best-effort y nunca afecta la decisión.
func (s *Service) Validate(ctx context.Context, candidate string) (*core.APIKey, error) {
	if !HasPrefix(candidate) || len(candidate) != plaintextLen {
		return nil, ErrKeyNotFound
	}

	hash := HashSecret(candidate)
	now := s.now().UTC()

	if k, ok := s.cacheGet(ctx, hash); ok {
		if !k.Active || k.Expired(now) {
			return nil, ErrKeyNotFound
		}
		s.touchAsync(k.ID)
		return k, nil
	}

	k, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	if !k.Active || k.Expired(now) {
		return nil, ErrKeyNotFound
	}

	s.cachePut(ctx, hash, k)
	s.touchAsync(k.ID)
	return k, nil
}

// ListByOwner devuelve los metadatos de las keys del owner, más recientes
// primero. Nunca incluye hash ni plaintext.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]core.APIKey, error) {
	keys, err := s.store.ListAPIKeysByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].SecretHash = ""
	}
	return keys, nil
}

// Revoke marca active=false. ErrKeyNotFound si la key no existe o no
// pertenece al owner.
func (s *Service) Revoke(ctx context.Context, id, ownerID string) error {
	hash := s.lookupHash(ctx, id, ownerID)
	if err := s.store.SetAPIKeyActive(ctx, id, ownerID, false); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return ErrKeyNotFound
		}
		return err
	}
	s.invalidate(ctx, hash)
	logger.From(ctx).Info("api key revoked",
		logger.Component("apikey"),
		logger.Op("revoke"),
		logger.KeyID(id),
		logger.SubjectID(ownerID),
	)
	return nil
}

// Delete elimina la key definitivamente. Mismo contrato de ownership que
// Revoke.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	hash := s.lookupHash(ctx, id, ownerID)
	if err := s.store.DeleteAPIKey(ctx, id, ownerID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return ErrKeyNotFound
		}
		return err
	}
	s.invalidate(ctx, hash)
	logger.From(ctx).Info("api key deleted",
		logger.Component("apikey"),
		logger.Op("delete"),
		logger.KeyID(id),
		logger.SubjectID(ownerID),
	)
	return nil
}

// ───────────────────────── internals ─────────────────────────

func (s *Service) touchAsync(id string) {
	when := s.now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchAPIKeyLastUsed(ctx, id, when); err != nil {
			logger.L().Debug("api key last_used touch failed",
				logger.Component("apikey"),
				logger.KeyID(id),
				logger.Err(err),
			)
		}
	}()
}

func (s *Service) cacheKey(hash string) string { return "ak:" + hash }

func (s *Service) cacheGet(ctx context.Context, hash string) (*core.APIKey, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cacheKey(hash))
	if err != nil {
		return nil, false
	}
	var k core.APIKey
	if err := json.Unmarshal([]byte(raw), &k); err != nil {
		return nil, false
	}
	return &k, true
}

func (s *Service) cachePut(ctx context.Context, hash string, k *core.APIKey) {
	if s.cache == nil {
		return
	}
	// ExpiresAt/Active viajan en el valor cacheado (APIKey serializa ambos, el
	// hash no) y se re-chequean en cada hit.
	raw, err := json.Marshal(k)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(hash), string(raw), s.cacheTTL); err != nil {
		logger.From(ctx).Debug("api key cache set failed",
			logger.Component("apikey"),
			logger.Err(err),
		)
	}
}

// lookupHash resuelve el hash de una key del owner para poder invalidar su
// entrada de cache después de mutarla. Vacío si no hay cache o no existe.
func (s *Service) lookupHash(ctx context.Context, id, ownerID string) string {
	if s.cache == nil {
		return ""
	}
	k, err := s.store.GetAPIKeyByID(ctx, id, ownerID)
	if err != nil {
		return ""
	}
	return k.SecretHash
}

// invalidate borra la entrada de cache después de la mutación, para que
// revoke/delete sean visibles de inmediato.
func (s *Service) invalidate(ctx context.Context, hash string) {
	if s.cache == nil || hash == "" {
		return
	}
	_ = s.cache.Delete(ctx, s.cacheKey(hash))
}
