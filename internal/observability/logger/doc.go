// Package logger expone un logger Zap singleton con scoping por contexto.
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context scoping: cada request lleva su propio logger con request_id, client_ip
//     y user_id sin crear un core nuevo.
//   - Entornos: "dev" usa consola con colores, "prod" usa JSON, "test" descarta todo.
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "cinelog"})
//	defer logger.Sync()
//
// En services:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.login"))
//	log.Info("login ok", logger.UserID(u.ID))
package logger
