package presenca

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"novaeuropa-gateway/internal/httpjson"
	"novaeuropa-gateway/middleware/accesslog"
	"novaeuropa-gateway/middleware/cors"
)

const maxPendingBody = 8 << 20

type pendingRequest struct {
	LoginP       looseString     `json:"loginP"`
	TipoConsulta *looseString    `json:"tipoConsulta"`
	FileName     looseString     `json:"fileName"`
	Rows         json.RawMessage `json:"rows"`
}

// pendingInput é o que passa pela validação, já com os campos aparados.
type pendingInput struct {
	LoginP       string   `json:"loginP" validate:"required"`
	TipoConsulta string   `json:"tipoConsulta" validate:"required"`
	Rows         []RawRow `json:"rows" validate:"min=1,max=2000"`
}

// PendingHandler recebe o CSV de consulta de presença e grava as linhas válidas como Pendente.
type PendingHandler struct {
	Writer   PendingWriter
	Log      *zap.Logger
	Validate *validator.Validate
	Now      func() time.Time
}

// PendingPolicy aceita só POST; o 405 sai no envelope JSON das rotas de presença.
func PendingPolicy() cors.Policy {
	return cors.Policy{
		Methods: []string{http.MethodPost},
		MethodNotAllowed: func(w http.ResponseWriter, r *http.Request) {
			httpjson.Fail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		},
	}
}

func (h *PendingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httpjson.Fail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	if h.Writer == nil {
		httpjson.Fail(w, http.StatusInternalServerError, notConfiguredMsg)
		return
	}
	if u, ok := h.Writer.(*UnavailableStore); ok && errors.Is(u.Err(), ErrNotConfigured) {
		httpjson.Fail(w, http.StatusInternalServerError, notConfiguredMsg)
		return
	}

	var req pendingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPendingBody)).Decode(&req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, "JSON invalido.")
		return
	}

	in := pendingInput{LoginP: req.LoginP.trimmed()}
	// fileName só entra quando tipoConsulta está ausente ou null; "" continua vazio
	if req.TipoConsulta != nil {
		in.TipoConsulta = req.TipoConsulta.trimmed()
	} else {
		in.TipoConsulta = req.FileName.trimmed()
	}
	// rows que não for array conta como vazio
	_ = json.Unmarshal(req.Rows, &in.Rows)

	if status, msg, ok := h.check(in); !ok {
		httpjson.Fail(w, status, msg)
		return
	}

	clean := CleanRows(in.Rows)
	if len(clean) == 0 {
		httpjson.Fail(w, http.StatusBadRequest, "Nenhuma linha válida para inserir.")
		return
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	batch := PendingBatch{
		LoginP:       in.LoginP,
		TipoConsulta: in.TipoConsulta,
		CreatedAt:    now().UTC(),
		Rows:         clean,
	}

	inserted, err := h.Writer.InsertPending(r.Context(), batch)
	accesslog.Annotate(r.Context(),
		zap.Int("rows_received", len(in.Rows)),
		zap.Int("rows_valid", len(clean)),
	)
	if err != nil {
		if h.Log != nil {
			h.Log.Error("presenca pending bulk insert failed",
				zap.String("request_id", accesslog.RequestID(r.Context())),
				zap.String("loginP", batch.LoginP),
				zap.Int("rows", len(clean)),
				zap.Error(err),
			)
		}
		httpjson.Fail(w, http.StatusInternalServerError, errorMessage(err, "Falha ao inserir no banco."))
		return
	}

	httpjson.Write(w, http.StatusOK, map[string]any{
		"ok":           true,
		"insertedRows": inserted,
		"createdAt":    batch.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// check traduz a primeira falha de validação no status e mensagem da rota.
func (h *PendingHandler) check(in pendingInput) (int, string, bool) {
	v := h.Validate
	if v == nil {
		v = NewValidator()
	}
	err := v.Struct(in)
	if err == nil {
		return 0, "", true
	}
	fe, ok := firstFieldError(err)
	if !ok {
		return http.StatusBadRequest, err.Error(), false
	}
	switch fe.Field() {
	case "loginP":
		return http.StatusBadRequest, "loginP obrigatório.", false
	case "tipoConsulta":
		return http.StatusBadRequest, "tipoConsulta (nome do arquivo) obrigatório.", false
	case "rows":
		if fe.Tag() == "max" {
			return http.StatusRequestEntityTooLarge, "Arquivo grande demais. Envie no máximo 2000 linhas por vez.", false
		}
		return http.StatusBadRequest, "rows vazio.", false
	}
	return http.StatusBadRequest, fe.Field() + " invalido", false
}
