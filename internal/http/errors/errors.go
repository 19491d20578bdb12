// Package errors define la taxonomía de errores del borde HTTP.
//
// Regla del borde: TODA falla de autenticación viaja como el mismo
// UNAUTHENTICATED opaco, sin importar si la firma estaba rota, el token
// vencido o la key no existía. Distinguir causas en la respuesta es regalar
// un oráculo. El resto de los errores sí lleva un code estable y distintivo.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AppError es la estructura estándar de error de la aplicación.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // no se serializa, define el status de la respuesta
	Err        error  `json:"-"` // causa original, solo para logs
}

// Error implementa la interfaz error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder a la causa.
func (e *AppError) Unwrap() error { return e.Err }

// WithDetail agrega detalle. Devuelve una COPIA para no mutar los globales.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause agrega la causa original. Devuelve una COPIA.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// FromError convierte un error genérico en AppError. Lo que no matchea cae a
// error interno genérico conservando la causa.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

// errorResponse controla exactamente qué campos ve el cliente.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe la respuesta HTTP para el error dado.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrUnauthenticated es el fold opaco de toda falla de credenciales.
	ErrUnauthenticated = &AppError{
		Code:       "UNAUTHENTICATED",
		Message:    "No autorizado. Se requiere una credencial válida.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "No tiene permisos para realizar esta acción.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso solicitado no fue encontrado.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "La solicitud entra en conflicto con el estado actual.",
		HTTPStatus: http.StatusConflict,
	}

	ErrBusUnavailable = &AppError{
		Code:       "BUS_UNAVAILABLE",
		Message:    "El bus de actualizaciones no está disponible. Reintente.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrInternal = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error interno en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}
)
