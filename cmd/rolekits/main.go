// rolekits es el binario único del servicio: serve levanta el borde HTTP,
// migrate aplica el esquema, keys administra API keys sin pasar por el
// servidor y token mint emite bearers de desarrollo.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rolekits/core/internal/auth"
	"github.com/rolekits/core/internal/auth/apikey"
	"github.com/rolekits/core/internal/auth/token"
	"github.com/rolekits/core/internal/bus"
	"github.com/rolekits/core/internal/cache"
	"github.com/rolekits/core/internal/config"
	httpserver "github.com/rolekits/core/internal/http"
	"github.com/rolekits/core/internal/http/controllers"
	"github.com/rolekits/core/internal/observability/logger"
	"github.com/rolekits/core/internal/store/core"
	"github.com/rolekits/core/internal/store/memory"
	"github.com/rolekits/core/internal/store/pg"
)

// storage agrupa lo que el wiring necesita del driver elegido.
type storage struct {
	keys    core.APIKeyStore
	resumes core.ResumeStore
	pinger  controllers.Pinger
	close   func()
}

func main() {
	// .env es opcional: en prod las vars vienen del entorno.
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:           "rolekits",
		Short:         "Servicio de auth y actualizaciones en vivo de RoleKits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "ruta del archivo de configuración")

	root.AddCommand(
		serveCmd(&cfgPath),
		migrateCmd(&cfgPath),
		keysCmd(&cfgPath),
		tokenCmd(&cfgPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "rolekits",
	})
	return cfg, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.Storage.Driver {
	case "pg":
		store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime(),
		})
		if err != nil {
			return nil, err
		}
		return &storage{keys: store, resumes: store, pinger: store, close: store.Close}, nil
	case "memory":
		store := memory.New()
		return &storage{keys: store, resumes: store, pinger: store, close: func() {}}, nil
	default:
		return nil, fmt.Errorf("storage driver desconocido: %q", cfg.Storage.Driver)
	}
}

func buildKeyService(cfg *config.Config, store core.APIKeyStore) (*apikey.Service, func(), error) {
	c, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Driver,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.CacheTTL(),
	})
	if err != nil {
		return nil, nil, err
	}
	svc := apikey.NewService(store, apikey.WithCache(c, cfg.CacheTTL()))
	return svc, func() { _ = c.Close() }, nil
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levantar el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			keySvc, closeCache, err := buildKeyService(cfg, st.keys)
			if err != nil {
				return err
			}
			defer closeCache()

			verifier := token.New([]byte(cfg.Auth.MasterSecret), cfg.Auth.Issuer)
			gate := auth.NewGate(verifier, keySvc)

			updates := bus.New(st.resumes,
				bus.WithBufferSize(cfg.Bus.BufferSize),
				bus.WithMaxSubscribers(cfg.Bus.MaxSubscribers),
			)

			srv := httpserver.New(httpserver.Config{
				Addr:               cfg.Server.Addr,
				CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
				RatePerMinute:      cfg.Rate.PerMinute,
			}, httpserver.Deps{
				Gate:    gate,
				Bus:     updates,
				Keys:    controllers.NewKeysController(keySvc),
				Resumes: controllers.NewResumesController(st.resumes, updates),
				Events:  controllers.NewEventsController(st.resumes, updates),
				Health:  controllers.NewHealthController(st.pinger),
			})

			logger.L().Info("service starting",
				logger.Component("main"),
				logger.String("env", cfg.App.Env),
				logger.String("storage", cfg.Storage.Driver),
			)
			return srv.Run(ctx)
		},
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplicar las migraciones de esquema (solo driver pg)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "pg" {
				return errors.New("migrate requiere storage.driver=pg")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{})
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

// keysCmd opera directo contra el store, sin servidor de por medio. Útil para
// bootstrap: la primera key de un owner no puede emitirse vía API porque la
// API misma pide credenciales.
func keysCmd(cfgPath *string) *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Administrar API keys contra el storage",
	}

	withService := func(fn func(ctx context.Context, svc *apikey.Service) error) error {
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		st, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.close()

		// Mismo wiring que serve: una mutación desde acá tiene que invalidar
		// la entrada de cache que las réplicas en vivo comparten.
		svc, closeCache, err := buildKeyService(cfg, st.keys)
		if err != nil {
			return err
		}
		defer closeCache()

		return fn(ctx, svc)
	}

	var issueOwner, issueName string
	var issueDays int
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Emitir una API key nueva (el secreto se muestra UNA sola vez)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if issueOwner == "" || issueName == "" {
				return errors.New("--owner y --name son requeridos")
			}
			return withService(func(ctx context.Context, svc *apikey.Service) error {
				plaintext, key, err := svc.Issue(ctx, issueOwner, issueName, issueDays)
				if err != nil {
					return err
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, plaintext)
				if key.ExpiresAt != nil {
					fmt.Printf("expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	issue.Flags().StringVar(&issueOwner, "owner", "", "id del owner")
	issue.Flags().StringVar(&issueName, "name", "", "nombre descriptivo de la key")
	issue.Flags().IntVar(&issueDays, "expires-in-days", 0, "días hasta expirar (0 = sin expiración)")

	var listOwner string
	list := &cobra.Command{
		Use:   "list",
		Short: "Listar las keys de un owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listOwner == "" {
				return errors.New("--owner es requerido")
			}
			return withService(func(ctx context.Context, svc *apikey.Service) error {
				keys, err := svc.ListByOwner(ctx, listOwner)
				if err != nil {
					return err
				}
				for _, k := range keys {
					status := "active"
					if !k.Active {
						status = "revoked"
					} else if k.Expired(time.Now()) {
						status = "expired"
					}
					fmt.Printf("%s  %-20s  %s\n", k.ID, k.Name, status)
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&listOwner, "owner", "", "id del owner")

	var revokeOwner, revokeID string
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revocar una key (deja de validar, la fila queda)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if revokeOwner == "" || revokeID == "" {
				return errors.New("--owner y --id son requeridos")
			}
			return withService(func(ctx context.Context, svc *apikey.Service) error {
				return svc.Revoke(ctx, revokeID, revokeOwner)
			})
		},
	}
	revoke.Flags().StringVar(&revokeOwner, "owner", "", "id del owner")
	revoke.Flags().StringVar(&revokeID, "id", "", "id de la key")

	var deleteOwner, deleteID string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Borrar una key definitivamente",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deleteOwner == "" || deleteID == "" {
				return errors.New("--owner y --id son requeridos")
			}
			return withService(func(ctx context.Context, svc *apikey.Service) error {
				return svc.Delete(ctx, deleteID, deleteOwner)
			})
		},
	}
	del.Flags().StringVar(&deleteOwner, "owner", "", "id del owner")
	del.Flags().StringVar(&deleteID, "id", "", "id de la key")

	keys.AddCommand(issue, list, revoke, del)
	return keys
}

// tokenCmd emite bearers firmados con el master secret local. Es una
// herramienta de desarrollo: en prod los tokens vienen del identity provider.
func tokenCmd(cfgPath *string) *cobra.Command {
	tok := &cobra.Command{
		Use:   "token",
		Short: "Utilidades de tokens de desarrollo",
	}

	var sub, name, ttl string
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Emitir un bearer token firmado localmente",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sub == "" {
				return errors.New("--sub es requerido")
			}
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			d, err := time.ParseDuration(ttl)
			if err != nil {
				return fmt.Errorf("ttl inválido: %w", err)
			}
			verifier := token.New([]byte(cfg.Auth.MasterSecret), cfg.Auth.Issuer)
			raw, err := verifier.Mint(sub, name, d)
			if err != nil {
				return err
			}
			fmt.Println(raw)
			return nil
		},
	}
	mint.Flags().StringVar(&sub, "sub", "", "subject del token")
	mint.Flags().StringVar(&name, "name", "", "display name (opcional)")
	mint.Flags().StringVar(&ttl, "ttl", "1h", "vigencia del token")

	tok.AddCommand(mint)
	return tok
}
