// Package logger provee un logger Zap singleton con scoping por contexto.
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context scoping: cada request puede llevar un logger con campos propios
//     (request_id, subject_id, ...) sin reconstruir el core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//
// Inicialización (una vez, en main):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// En handlers/services:
//
//	log := logger.From(ctx)
//	log.Info("key issued", logger.KeyID(id), logger.SubjectID(owner))
package logger
