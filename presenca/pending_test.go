package presenca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novaeuropa-gateway/middleware/cors"
)

type fakeWriter struct {
	calls int
	got   PendingBatch
	err   error
}

func (f *fakeWriter) InsertPending(_ context.Context, b PendingBatch) (int64, error) {
	f.calls++
	f.got = b
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(b.Rows)), nil
}

var fixedNow = time.Date(2025, 1, 15, 12, 30, 0, 0, time.UTC)

func newPending(w PendingWriter) *PendingHandler {
	return &PendingHandler{Writer: w, Now: func() time.Time { return fixedNow }}
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/presenca/pending", strings.NewReader(body)))
	return w
}

func TestValidRow(t *testing.T) {
	cases := []struct {
		name string
		row  RawRow
		ok   bool
	}{
		{"valida", RawRow{CPF: "12345678901", Nome: "A", Telefone: "11987654321"}, true},
		{"cpf com mascara", RawRow{CPF: "123.456.789-01", Nome: " Ana ", Telefone: "(11) 98765-4321"}, true},
		{"fixo 10 digitos com 9", RawRow{CPF: "12345678901", Nome: "A", Telefone: "1191234567"}, true},
		{"cpf curto", RawRow{CPF: "123", Nome: "A", Telefone: "11987654321"}, false},
		{"nome vazio", RawRow{CPF: "12345678901", Nome: "   ", Telefone: "11987654321"}, false},
		{"telefone curto", RawRow{CPF: "12345678901", Nome: "A", Telefone: "119876543"}, false},
		{"telefone longo", RawRow{CPF: "12345678901", Nome: "A", Telefone: "119876543210"}, false},
		{"sem 9", RawRow{CPF: "12345678901", Nome: "A", Telefone: "1133334444"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := ValidRow(tc.row)
			assert.Equal(t, tc.ok, ok)
		})
	}

	row, _ := ValidRow(RawRow{CPF: "123.456.789-01", Nome: " Ana ", Telefone: "(11) 98765-4321"})
	assert.Equal(t, PendingRow{CPF: "12345678901", Nome: "Ana", Telefone: "11987654321"}, row)
}

func TestRawRow_AcceptsNumbers(t *testing.T) {
	var rows []RawRow
	require.NoError(t, json.Unmarshal([]byte(`[{"cpf":12345678901,"nome":"A","telefone":11987654321},{"cpf":null}]`), &rows))
	clean := CleanRows(rows)
	require.Len(t, clean, 1)
	assert.Equal(t, "12345678901", clean[0].CPF)
}

func TestPendingHandler_InsertsOnlyValidRows(t *testing.T) {
	fw := &fakeWriter{}
	w := post(newPending(fw), `{
		"loginP": " op1 ",
		"fileName": "lote-janeiro.csv",
		"rows": [
			{"cpf":"123","nome":"A","telefone":"11987654321"},
			{"cpf":"12345678901","nome":"A","telefone":"11987654321"}
		]
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 1, body["insertedRows"])
	assert.Equal(t, "2025-01-15T12:30:00.000Z", body["createdAt"])

	assert.Equal(t, 1, fw.calls)
	assert.Equal(t, "op1", fw.got.LoginP)
	assert.Equal(t, "lote-janeiro.csv", fw.got.TipoConsulta)
	assert.Equal(t, fixedNow, fw.got.CreatedAt)
	assert.Equal(t, []PendingRow{{CPF: "12345678901", Nome: "A", Telefone: "11987654321"}}, fw.got.Rows)
}

func TestPendingHandler_NullTipoConsultaFallsBackToFileName(t *testing.T) {
	fw := &fakeWriter{}
	w := post(newPending(fw), `{"loginP":"a","tipoConsulta":null,"fileName":" b.csv ","rows":[{"cpf":"12345678901","nome":"A","telefone":"11987654321"}]}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "b.csv", fw.got.TipoConsulta)
}

func TestPendingHandler_InputErrors(t *testing.T) {
	many := make([]string, MaxRows+1)
	for i := range many {
		many[i] = `{"cpf":"12345678901","nome":"A","telefone":"11987654321"}`
	}

	cases := []struct {
		name, body string
		status     int
		msg        string
	}{
		{"sem login", `{"tipoConsulta":"x","rows":[{}]}`, http.StatusBadRequest, "loginP obrigatório."},
		{"sem tipo", `{"loginP":"a","rows":[{}]}`, http.StatusBadRequest, "tipoConsulta (nome do arquivo) obrigatório."},
		{"tipo vazio ignora fileName", `{"loginP":"a","tipoConsulta":"","fileName":"a.csv","rows":[{}]}`, http.StatusBadRequest, "tipoConsulta (nome do arquivo) obrigatório."},
		{"zero linhas", `{"loginP":"a","tipoConsulta":"x","rows":[]}`, http.StatusBadRequest, "rows vazio."},
		{"rows nao e array", `{"loginP":"a","tipoConsulta":"x","rows":"abc"}`, http.StatusBadRequest, "rows vazio."},
		{"2001 linhas", fmt.Sprintf(`{"loginP":"a","tipoConsulta":"x","rows":[%s]}`, strings.Join(many, ",")), http.StatusRequestEntityTooLarge, "Arquivo grande demais. Envie no máximo 2000 linhas por vez."},
		{"nenhuma valida", `{"loginP":"a","tipoConsulta":"x","rows":[{"cpf":"1"}]}`, http.StatusBadRequest, "Nenhuma linha válida para inserir."},
		{"json quebrado", `{"loginP":`, http.StatusBadRequest, "JSON invalido."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fw := &fakeWriter{}
			w := post(newPending(fw), tc.body)

			assert.Equal(t, tc.status, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tc.msg, body["error"])
			assert.Zero(t, fw.calls)
		})
	}
}

func TestPendingHandler_DatabaseError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("Violation of PRIMARY KEY constraint")}
	w := post(newPending(fw), `{"loginP":"a","tipoConsulta":"x","rows":[{"cpf":"12345678901","nome":"A","telefone":"11987654321"}]}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Violation of PRIMARY KEY constraint")
}

func TestPendingHandler_NotConfigured(t *testing.T) {
	for _, h := range []*PendingHandler{newPending(nil), newPending(Unavailable(nil))} {
		w := post(h, `{}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "host_king/user_king/pass_king/database_king")
	}
}

func TestPendingHandler_MethodNotAllowed(t *testing.T) {
	h := cors.Middleware(PendingPolicy())(newPending(&fakeWriter{}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/presenca/pending", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST,OPTIONS", w.Header().Get("Allow"))
	assert.JSONEq(t, `{"ok":false,"error":"Method Not Allowed"}`, w.Body.String())
}
