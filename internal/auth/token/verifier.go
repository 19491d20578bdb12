// Package token implementa la verificación de bearer tokens firmados.
//
// El verifier es función pura de (token, clave derivada): no hace I/O ni toca
// estado compartido, así que es seguro llamarlo concurrentemente desde
// cualquier cantidad de goroutines.
package token

import (
	"crypto/sha256"
	"errors"
	"io"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidSignature cubre token malformado, alg inesperado o firma rota.
	ErrInvalidSignature = errors.New("invalid_signature")

	// ErrExpired indica firma válida pero exp vencido.
	ErrExpired = errors.New("expired")
)

// Claims son los campos embebidos en un bearer token verificado.
type Claims struct {
	Subject     string
	DisplayName string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Verifier valida bearer tokens HS256 contra la clave de firma del proceso.
type Verifier struct {
	signingKey []byte
	issuer     string
	leeway     time.Duration
}

// derive estira el master secret con HKDF-SHA256 y un label fijo, para que el
// secreto crudo de config nunca firme directamente.
func derive(masterSecret []byte, label string) []byte {
	r := hkdf.New(sha256.New, masterSecret, nil, []byte(label))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf sobre sha256 no puede fallar antes de agotar 255*32 bytes
		panic(err)
	}
	return key
}

// New crea un Verifier a partir del master secret configurado.
// issuer es opcional: si está vacío no se chequea el claim iss.
func New(masterSecret []byte, issuer string) *Verifier {
	return &Verifier{
		signingKey: derive(masterSecret, "rolekits-core/access-token"),
		issuer:     issuer,
		leeway:     30 * time.Second,
	}
}

// Verify parsea y valida un bearer token.
// Devuelve ErrInvalidSignature para cualquier problema de formato o firma y
// ErrExpired cuando la firma es válida pero el token venció.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	keyfunc := func(t *jwtv5.Token) (any, error) { return v.signingKey, nil }

	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithLeeway(v.leeway),
		jwtv5.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(v.issuer))
	}

	tok, err := jwtv5.Parse(raw, keyfunc, opts...)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidSignature
	}
	if !tok.Valid {
		return nil, ErrInvalidSignature
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidSignature
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidSignature
	}

	out := &Claims{Subject: sub}
	if name, _ := claims["name"].(string); name != "" {
		out.DisplayName = name
	}
	if iat, ok := claims["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return out, nil
}

// Mint emite un bearer token firmado con la clave del proceso. El emisor real
// de credenciales es un servicio externo; esto existe para dev y tests.
func (v *Verifier) Mint(sub, displayName string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if displayName != "" {
		claims["name"] = displayName
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return tk.SignedString(v.signingKey)
}
