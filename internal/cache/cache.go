// Package cache provee una abstracción chica de cache con backends
// intercambiables:
//
//   - Memory (in-process, dev/testing y single-node)
//   - Redis (compartido, para correr varias réplicas del gateway)
//
// El core la usa solo como read-through cache de validaciones de API key;
// todo lo que está acá es descartable y con TTL corto.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indica que la key no está o ya expiró.
var ErrNotFound = errors.New("cache: not found")

// Client define las operaciones de cache que usa el core.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL. Si ttl es 0 se usa el default del backend.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key. No falla si no existía.
	Delete(ctx context.Context, key string) error

	// Ping verifica la conexión (no-op en memory).
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config para construir un cliente de cache.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string // redis host:port
	Password   string
	DB         int
	Prefix     string // prefijo para todas las keys
	DefaultTTL time.Duration
}

// New construye el backend según cfg.Driver. Driver desconocido o vacío cae a
// memory, que siempre está disponible.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	}
}
