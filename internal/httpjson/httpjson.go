// Package httpjson concentra a escrita de respostas JSON e texto puro.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// Write escreve v como JSON com o status informado.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error escreve {"error": msg}.
func Error(w http.ResponseWriter, status int, msg string) {
	Write(w, status, map[string]any{"error": msg})
}

// Fail escreve {"ok": false, "error": msg}, o envelope das rotas de presença.
func Fail(w http.ResponseWriter, status int, msg string) {
	Write(w, status, map[string]any{"ok": false, "error": msg})
}

// Text escreve uma resposta text/plain.
func Text(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
