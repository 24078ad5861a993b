// Package repository define el modelo persistido (Identity, Session) y el
// contrato del adapter de almacenamiento que usa el orquestador de sesiones.
//
// Los adapters (memory, pg) viven en internal/store y deben garantizar:
//   - Establish confirma identidad y sesión juntas o ninguna.
//   - La sesión se inserta create-if-absent: el perdedor de una carrera recibe ErrConflict.
//   - Nunca existe una Session para una Identity sin AllowListApproved.
package repository
