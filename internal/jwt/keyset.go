package jwt

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// SigningKey es una clave pública de firma publicada por el IdP.
// Inmutable: una rotación produce un KeySet nuevo, nunca muta una clave existente.
type SigningKey struct {
	KeyID     string
	Algorithm string // RS256, PS256, ES256, EdDSA, ...
	PublicKey crypto.PublicKey
	FetchedAt time.Time
}

// KeySet es el conjunto de claves vigente, indexado por kid.
// Se publica completo (atomic swap) y nunca se modifica después.
type KeySet struct {
	keys       map[string]SigningKey
	order      []string
	FetchedAt  time.Time
	ValidUntil time.Time
}

// NewKeySet arma un KeySet; ante kids duplicados gana el primero.
func NewKeySet(keys []SigningKey, fetchedAt, validUntil time.Time) *KeySet {
	ks := &KeySet{
		keys:       make(map[string]SigningKey, len(keys)),
		order:      make([]string, 0, len(keys)),
		FetchedAt:  fetchedAt,
		ValidUntil: validUntil,
	}
	for _, k := range keys {
		if _, dup := ks.keys[k.KeyID]; dup {
			continue
		}
		ks.keys[k.KeyID] = k
		ks.order = append(ks.order, k.KeyID)
	}
	return ks
}

// Lookup busca una clave por kid.
func (s *KeySet) Lookup(kid string) (SigningKey, bool) {
	if s == nil {
		return SigningKey{}, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

// Len devuelve la cantidad de claves.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Keys devuelve una copia de las claves en el orden publicado por el IdP.
func (s *KeySet) Keys() []SigningKey {
	if s == nil {
		return nil
	}
	out := make([]SigningKey, 0, len(s.order))
	for _, kid := range s.order {
		out = append(out, s.keys[kid])
	}
	return out
}

// KIDs devuelve los kids en orden.
func (s *KeySet) KIDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// =================================================================================
// PARSING JWKS
// =================================================================================

// SkippedKey describe una entrada del JWKS que no se pudo usar.
type SkippedKey struct {
	Index  int
	KeyID  string
	Reason string
}

// ParseJWKS parsea un documento JWKS en claves de firma utilizables.
// Entradas inválidas, de cifrado (use=enc), privadas o de tipo no soportado se
// descartan sin invalidar el resto del documento.
func ParseJWKS(body []byte, fetchedAt time.Time) ([]SigningKey, []SkippedKey, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("jwks: invalid json: %w", err)
	}

	keys := make([]SigningKey, 0, len(doc.Keys))
	var skipped []SkippedKey
	for i, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := json.Unmarshal(raw, &jwk); err != nil {
			skipped = append(skipped, SkippedKey{Index: i, Reason: err.Error()})
			continue
		}
		skip := func(why string) { skipped = append(skipped, SkippedKey{Index: i, KeyID: jwk.KeyID, Reason: why}) }

		if strings.EqualFold(jwk.Use, "enc") {
			skip("encryption key")
			continue
		}
		if !jwk.Valid() {
			skip("invalid key material")
			continue
		}
		if !jwk.IsPublic() {
			skip("private key material published")
			continue
		}
		alg := jwk.Algorithm
		if alg == "" {
			alg = inferAlgorithm(jwk.Key)
		}
		if !keyMatchesAlgorithm(jwk.Key, alg) {
			skip("unsupported algorithm " + alg)
			continue
		}
		keys = append(keys, SigningKey{
			KeyID:     jwk.KeyID,
			Algorithm: alg,
			PublicKey: jwk.Key,
			FetchedAt: fetchedAt,
		})
	}
	return keys, skipped, nil
}

// inferAlgorithm deduce el algoritmo cuando el JWK no declara "alg".
func inferAlgorithm(key any) string {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return "ES256"
		case elliptic.P384():
			return "ES384"
		case elliptic.P521():
			return "ES512"
		}
	case ed25519.PublicKey:
		return "EdDSA"
	}
	return ""
}

// keyMatchesAlgorithm verifica que el tipo de clave pueda verificar alg.
func keyMatchesAlgorithm(key any, alg string) bool {
	switch k := key.(type) {
	case *rsa.PublicKey:
		switch alg {
		case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
			return true
		}
	case *ecdsa.PublicKey:
		return alg != "" && alg == inferAlgorithm(k)
	case ed25519.PublicKey:
		return alg == "EdDSA"
	}
	return false
}
