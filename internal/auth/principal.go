package auth

// Principal es la identidad resuelta de una credencial entrante. Se construye
// fresca por request y no se persiste.
type Principal struct {
	SubjectID   string `json:"subject_id"`
	DisplayName string `json:"display_name,omitempty"`
}
