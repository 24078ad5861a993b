// Package logger provee el logger Zap del proceso con scoping por contexto.
//
// # Decisiones
//
//   - Singleton: una instancia global inicializada con Init() desde main.
//   - Context scoping: los middlewares inyectan un logger con request_id/method/path
//     y los servicios lo recuperan con From(ctx).
//   - Entornos: "dev" usa consola con colores, "prod" usa JSON.
//   - Privacidad: los emails se loguean sólo por dominio (EmailDomain).
//
// # Uso
//
//	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx)
//	log.Warn("admission rejected", logger.Reason(string(code)))
package logger
