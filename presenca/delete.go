package presenca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"novaeuropa-gateway/internal/httpjson"
	"novaeuropa-gateway/middleware/accesslog"
)

const maxDeleteBody = 64 << 10

// DeleteFilter identifica o lote a excluir. Os quatro campos são obrigatórios.
type DeleteFilter struct {
	IDUser             int64  `json:"id_user" validate:"gt=0"`
	EquipeID           int64  `json:"equipe_id" validate:"gt=0"`
	IDConsultaPresenca string `json:"id_consulta_presenca" validate:"digits"`
	TipoConsulta       string `json:"tipoConsulta" validate:"required"`
}

type deleteInput struct {
	IDUser             looseString `json:"id_user"`
	EquipeID           looseString `json:"equipe_id"`
	IDConsultaPresenca looseString `json:"id_consulta_presenca"`
	TipoConsulta       looseString `json:"tipoConsulta"`
}

// ParseDeleteFilter lê o filtro do corpo JSON; campos ausentes no corpo vêm da query.
func ParseDeleteFilter(body []byte, q url.Values) (DeleteFilter, error) {
	var in deleteInput
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			return DeleteFilter{}, fmt.Errorf("corpo JSON invalido: %w", err)
		}
	}
	pick := func(v looseString, key string) string {
		if s := v.trimmed(); s != "" {
			return s
		}
		return strings.TrimSpace(q.Get(key))
	}

	return DeleteFilter{
		IDUser:             parseID(pick(in.IDUser, "id_user")),
		EquipeID:           parseID(pick(in.EquipeID, "equipe_id")),
		IDConsultaPresenca: pick(in.IDConsultaPresenca, "id_consulta_presenca"),
		TipoConsulta:       pick(in.TipoConsulta, "tipoConsulta"),
	}, nil
}

// parseID devolve 0 para valores que não são inteiros; a validação reprova depois.
func parseID(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// DeleteAll repete DELETE TOP (size) até um lote não apagar nada e devolve o total.
// Não há transação entre os lotes: uma falha no meio deixa a exclusão parcial e o total
// apagado até ali é devolvido junto com o erro.
func DeleteAll(ctx context.Context, exec BatchExecutor, f DeleteFilter, size int) (int64, error) {
	if exec == nil {
		return 0, ErrNotConfigured
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := exec.DeleteBatch(ctx, f, size)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
}

// DeleteHandler executa a exclusão em lotes de consulta_presenca.
type DeleteHandler struct {
	Exec      BatchExecutor
	BatchSize int
	Log       *zap.Logger
	Validate  *validator.Validate
}

func (h *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	v := h.Validate
	if v == nil {
		v = NewValidator()
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDeleteBody))
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, "corpo da requisicao invalido")
		return
	}
	f, err := ParseDeleteFilter(body, r.URL.Query())
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := v.Struct(f); err != nil {
		msg := "filtro invalido"
		if fe, ok := firstFieldError(err); ok {
			msg = fe.Field() + " invalido"
		}
		httpjson.Write(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "error": msg, "message": msg})
		return
	}

	deleted, err := DeleteAll(r.Context(), h.Exec, f, h.BatchSize)
	accesslog.Annotate(r.Context(), zap.Int64("deleted_count", deleted))
	if err != nil {
		log.Error("consulta_presenca batch delete failed",
			zap.String("request_id", accesslog.RequestID(r.Context())),
			zap.Int64("id_user", f.IDUser),
			zap.Int64("equipe_id", f.EquipeID),
			zap.String("tipoConsulta", f.TipoConsulta),
			zap.Int64("deleted_before_error", deleted),
			zap.Error(err),
		)
		msg := errorMessage(err, "Falha ao excluir lote.")
		httpjson.Write(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": msg, "message": msg})
		return
	}

	httpjson.Write(w, http.StatusOK, map[string]any{
		"ok":            true,
		"deleted_count": deleted,
		"message":       deletedMessage(deleted),
	})
}

func deletedMessage(n int64) string {
	switch n {
	case 0:
		return "Nenhum registro encontrado para remover."
	case 1:
		return "1 registro removido."
	default:
		return fmt.Sprintf("%d registros removidos.", n)
	}
}

// IsConsultasDelete reconhece POST/DELETE cujo último segmento do path é "consultas".
func IsConsultasDelete(r *http.Request) bool {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		return false
	}
	p := strings.TrimRight(r.URL.Path, "/")
	return p != "" && path.Base(p) == "consultas"
}

// InterceptConsultas desvia a exclusão de lotes para del; o resto segue para o relay.
func InterceptConsultas(del http.Handler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsConsultasDelete(r) {
				del.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
