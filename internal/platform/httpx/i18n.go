package httpx

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	supported = []language.Tag{language.English, language.Spanish}
	matcher   = language.NewMatcher(supported)
)

var spanishTitles = map[string]string{
	"Not Found":          "No encontrado",
	"Unauthorized":       "No autenticado",
	"Forbidden":          "No autorizado",
	"Duplicate":          "Solicitud duplicada",
	"Bad Request":        "Solicitud inválida",
	"Validation Failed":  "Validación fallida",
	"Try Again":          "Intente de nuevo",
	"Internal Error":     "Error interno",
	"Invalid State":      "Estado inválido",
	"Already Finalized":  "Documento ya facturado",
	"Already Annulled":   "Documento ya anulado",
	"Missing Handoff":    "Documento no enviado a caja",
	"Totals Mismatch":    "Totales no cuadran",
	"Empty Document":     "Documento sin líneas",
	"Insufficient Stock": "Stock insuficiente",
	"Inconsistent State": "Estado inconsistente",
	"Already Converted":  "Remisión ya facturada",
	"Quantity Limit":     "Cantidad fuera de rango",
	"Already Billed":     "Orden ya facturada",
}

func init() {
	for key, msg := range spanishTitles {
		_ = message.SetString(language.Spanish, key, msg)
	}
}

// Language picks the best supported language for the request's Accept-Language header.
func Language(r *http.Request) language.Tag {
	if r == nil {
		return language.English
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Localize translates a problem title for the request.
func Localize(r *http.Request, key string) string {
	return message.NewPrinter(Language(r)).Sprintf(key)
}
