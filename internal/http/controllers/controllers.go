// Package controllers contiene los handlers HTTP del gateway.
// Cada controller es fino: decodifica, delega en el servicio/ store y mapea
// errores de dominio a AppError. La lógica vive abajo.
package controllers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
