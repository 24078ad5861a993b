// Package session orquesta el sign-in multi-proveedor como una máquina de estados
// explícita y persiste el resultado a través del adapter (repository.Store).
//
//	unauthenticated -> credential_submitted -> allow_list_checked -> session_established
//	                                       \-> rejected
//	static admin:      credential_submitted -> session_established
//
// Ninguna sesión se crea antes de que la identidad quede aprobada: por el
// allow-list externo o, sólo para el admin estático, por configuración.
package session
