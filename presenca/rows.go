// Package presenca implementa as duas rotas do gateway que falam direto com o SQL Server:
// a exclusão em lotes de consultas (consulta-presenca/.../consultas) e a inserção em massa
// de linhas pendentes (presenca/pending).
package presenca

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const (
	// MaxRows é o limite de linhas por envio em /api/presenca/pending.
	MaxRows = 2000

	StatusPendente = "Pendente"
)

// looseString aceita string, número ou null no JSON, como o front envia.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(b)
	return nil
}

func (s looseString) trimmed() string { return strings.TrimSpace(string(s)) }

// RawRow é uma linha como chega do upload CSV.
type RawRow struct {
	CPF      looseString `json:"cpf"`
	Nome     looseString `json:"nome"`
	Telefone looseString `json:"telefone"`
}

// PendingRow é uma linha já validada e normalizada.
type PendingRow struct {
	CPF      string
	Nome     string
	Telefone string
}

// PendingBatch é o lote gravado numa única carga em massa.
type PendingBatch struct {
	LoginP       string
	TipoConsulta string
	CreatedAt    time.Time
	Rows         []PendingRow
}

// OnlyDigits remove tudo que não for dígito ASCII.
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ValidRow normaliza r e diz se ela pode ser inserida:
// CPF com 11 dígitos, nome não vazio e celular com 10 ou 11 dígitos e '9' na terceira posição.
func ValidRow(r RawRow) (PendingRow, bool) {
	cpf := OnlyDigits(string(r.CPF))
	nome := r.Nome.trimmed()
	tel := OnlyDigits(string(r.Telefone))

	switch {
	case len(cpf) != 11:
		return PendingRow{}, false
	case nome == "":
		return PendingRow{}, false
	case len(tel) < 10 || len(tel) > 11:
		return PendingRow{}, false
	case tel[2] != '9':
		return PendingRow{}, false
	}
	return PendingRow{CPF: cpf, Nome: nome, Telefone: tel}, true
}

// CleanRows descarta silenciosamente as linhas inválidas.
func CleanRows(rows []RawRow) []PendingRow {
	out := make([]PendingRow, 0, len(rows))
	for _, r := range rows {
		if row, ok := ValidRow(r); ok {
			out = append(out, row)
		}
	}
	return out
}
