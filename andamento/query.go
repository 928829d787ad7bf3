package andamento

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"novaeuropa-gateway/internal/sqlserver"
)

// Query traz a última linha de cada proposta_id_banco no período, para as empresas e
// status acompanhados. franquia_nome_tratada é calculado em Go (FranchiseName).
const Query = `
WITH x AS (
  SELECT
    c.*,
    ROW_NUMBER() OVER (
      PARTITION BY c.proposta_id_banco
      ORDER BY c.data_status_api DESC
    ) AS rn
  FROM cadastrados c
  WHERE c.data_status_api >= CAST(@startDate AS date)
    AND c.data_status_api < DATEADD(DAY, 1, CAST(@finalDate AS date))
    AND c.empresa IN ('vieira','abbcred','gmpromotora','impacto','diascredsolucoes')
    AND (
      c.status_api  IN ('ANDAMENTO','AGUARDANDO CIP','CONTRATO ASSINADO','BENEFICIO BLOQUEADO')
      OR c.status_nome IN ('ANDAMENTO','AGUARDANDO CIP','CONTRATO ASSINADO','BENEFICIO BLOQUEADO')
    )
)
SELECT *
FROM x
WHERE rn = 1;
`

const FranchiseColumn = "franquia_nome_tratada"

// Row é uma linha do relatório. Serializa as colunas na ordem do SELECT.
type Row struct {
	cols []string
	vals []any
}

func NewRow(cols []string, vals []any) Row { return Row{cols: cols, vals: vals} }

// Get devolve o valor da coluna (nil se não existir).
func (r Row) Get(col string) any {
	for i, c := range r.cols {
		if c == col {
			return r.vals[i]
		}
	}
	return nil
}

func (r *Row) set(col string, v any) {
	for i, c := range r.cols {
		if c == col {
			r.vals[i] = v
			return
		}
	}
	r.cols = append(r.cols, col)
	r.vals = append(r.vals, v)
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.vals[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// withFranchise acrescenta franquia_nome_tratada a partir de empresa e franquia_nome.
func (r Row) withFranchise() Row {
	empresa, _ := r.Get("empresa").(string)
	nome, _ := r.Get("franquia_nome").(string)
	if name, ok := FranchiseName(empresa, nome); ok {
		r.set(FranchiseColumn, name)
	} else {
		r.set(FranchiseColumn, nil)
	}
	return r
}

// Store é a fonte do relatório.
type Store interface {
	Andamento(ctx context.Context, startDate, finalDate string) ([]Row, error)
	Ping(ctx context.Context) error
}

type SQLStore struct {
	src          sqlserver.Source
	queryTimeout time.Duration
}

func NewSQLStore(db *sql.DB, queryTimeout time.Duration) *SQLStore {
	return NewSQLStoreFrom(sqlserver.Fixed(db), queryTimeout)
}

// NewSQLStoreFrom usa um pool aberto sob demanda (sqlserver.Pool).
func NewSQLStoreFrom(src sqlserver.Source, queryTimeout time.Duration) *SQLStore {
	return &SQLStore{src: src, queryTimeout: queryTimeout}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	db, err := s.src.DB(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *SQLStore) Andamento(ctx context.Context, startDate, finalDate string) ([]Row, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	db, err := s.src.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	rows, err := db.QueryContext(ctx, Query,
		sql.Named("startDate", startDate),
		sql.Named("finalDate", finalDate),
	)
	if err != nil {
		return nil, fmt.Errorf("query andamento: %w", err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan andamento: %w", err)
	}
	for i := range out {
		out[i] = out[i].withFranchise()
	}
	return out, nil
}

// scanRows lê qualquer conjunto de colunas. []byte vira string.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		names := make([]string, len(cols))
		copy(names, cols)
		out = append(out, NewRow(names, vals))
	}
	return out, rows.Err()
}
