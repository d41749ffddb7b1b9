// Package repository define los registros de dominio y las interfaces de repositorio
// del núcleo de autenticación (tokens, recovery codes, trusted devices, auditoría).
//
// Estas interfaces son contratos de negocio independientes del almacenamiento.
// Las implementaciones viven en internal/store/{pg,sqlite,memory}.
//
//	┌─────────────────────────────────────────────────────┐
//	│      auth / mfa / audit (services)                  │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│        domain/repository (interfaces)               │
//	│  Users, AuthTokens, RecoveryCodes, TrustedDevices   │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	         ┌──────────────┼──────────────┐
//	         ▼              ▼              ▼
//	┌─────────────┐  ┌─────────────┐  ┌─────────────┐
//	│  store/pg   │  │ store/sqlite│  │ store/memory│
//	└─────────────┘  └─────────────┘  └─────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - "No existe" se reporta con ErrNotFound
//   - Los tokens se guardan como sha256, nunca en claro
package repository
