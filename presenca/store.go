package presenca

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"novaeuropa-gateway/internal/sqlserver"
)

const (
	Table            = "dbo.consulta_presenca"
	DefaultBatchSize = 1000
)

// ErrNotConfigured indica que o gateway subiu sem credenciais do banco.
var ErrNotConfigured = errors.New("presenca: database not configured")

const notConfiguredMsg = "Credenciais do banco (host_king/user_king/pass_king/database_king) não configuradas."

// errorMessage é o texto devolvido ao cliente para falhas de banco.
func errorMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return notConfiguredMsg
	case err != nil && err.Error() != "":
		return err.Error()
	default:
		return fallback
	}
}

// BatchExecutor executa um único DELETE TOP (n) e devolve quantas linhas saíram.
type BatchExecutor interface {
	DeleteBatch(ctx context.Context, f DeleteFilter, size int) (int64, error)
}

// PendingWriter grava um lote validado numa única carga em massa.
type PendingWriter interface {
	InsertPending(ctx context.Context, b PendingBatch) (int64, error)
}

// SQLStore implementa BatchExecutor e PendingWriter sobre o pool injetado.
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

func (s *SQLStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.queryTimeout)
}

const deleteBatchSQL = `DELETE TOP (@batch) FROM ` + Table + `
WHERE id_user = @id_user
  AND equipe_id = @equipe_id
  AND id_consulta_presenca = @id_consulta_presenca
  AND tipoConsulta = @tipoConsulta`

func (s *SQLStore) DeleteBatch(ctx context.Context, f DeleteFilter, size int) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	db, err := s.src.DB(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, deleteBatchSQL,
		sql.Named("batch", size),
		sql.Named("id_user", f.IDUser),
		sql.Named("equipe_id", f.EquipeID),
		sql.Named("id_consulta_presenca", f.IDConsultaPresenca),
		sql.Named("tipoConsulta", f.TipoConsulta),
	)
	if err != nil {
		return 0, fmt.Errorf("delete batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete batch rows affected: %w", err)
	}
	return n, nil
}

var pendingColumns = []string{
	"cpf", "nome", "telefone", "loginP", "created_at", "updated_at", "tipoConsulta", "status",
}

// InsertPending usa bulk copy (INSERT BULK) dentro de uma transação.
func (s *SQLStore) InsertPending(ctx context.Context, b PendingBatch) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	db, err := s.src.DB(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(Table, mssql.BulkOptions{}, pendingColumns...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range b.Rows {
		if _, err := stmt.ExecContext(ctx, r.CPF, r.Nome, r.Telefone, b.LoginP, b.CreatedAt, b.CreatedAt, b.TipoConsulta, StatusPendente); err != nil {
			return 0, fmt.Errorf("bulk insert row: %w", err)
		}
	}
	// Exec sem argumentos descarrega o buffer do bulk copy.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("flush bulk insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk insert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		n = int64(len(b.Rows))
	}
	return n, nil
}

// Unavailable devolve um store cujas operações falham sempre com err. Usado quando o
// pool não pôde ser aberto na subida; as rotas de relay continuam funcionando.
func Unavailable(err error) *UnavailableStore {
	if err == nil {
		err = ErrNotConfigured
	}
	return &UnavailableStore{err: err}
}

type UnavailableStore struct{ err error }

func (u *UnavailableStore) DeleteBatch(context.Context, DeleteFilter, int) (int64, error) {
	return 0, u.err
}

func (u *UnavailableStore) InsertPending(context.Context, PendingBatch) (int64, error) {
	return 0, u.err
}

func (u *UnavailableStore) Err() error { return u.err }
