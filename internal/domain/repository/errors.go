package repository

import "errors"

// Errores que todo adapter debe usar (envueltos con %w) para que el
// orquestador los distinga sin conocer el driver.
var (
	ErrNotFound     = errors.New("repository: not found")
	ErrConflict     = errors.New("repository: conflict")      // la sesión ya existe
	ErrInvalidInput = errors.New("repository: invalid input") // viola el modelo (p.ej. identidad no aprobada)
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
