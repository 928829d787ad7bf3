package relay

import (
	"net/http"
	"time"

	"novaeuropa-gateway/middleware/cors"
)

// HeaderMode define quais headers da request seguem para o upstream.
type HeaderMode int

const (
	// ForwardAll repassa todos os headers, exceto os hop-by-hop.
	ForwardAll HeaderMode = iota
	// ForwardFixed envia apenas Route.FixedHeaders.
	ForwardFixed
)

// ResponseMode define quais headers do upstream voltam ao cliente.
type ResponseMode int

const (
	// ResponseAll copia todos os headers do upstream (menos Content-Length e hop-by-hop).
	ResponseAll ResponseMode = iota
	// ResponseContentType copia apenas Content-Type (ou DefaultContentType).
	ResponseContentType
)

// QueryMode define como a query string chega ao upstream.
type QueryMode int

const (
	QueryAll QueryMode = iota
	QueryNone
	// QuerySelected repassa só Route.QueryParams (com aliases).
	QuerySelected
)

// FixedHeader é um header que a rota sempre envia.
// Com FromRequest, o valor recebido do cliente tem prioridade sobre Value.
type FixedHeader struct {
	Name        string
	Value       string
	FromRequest bool
}

// QueryParam repassa o primeiro alias presente com o nome Name.
type QueryParam struct {
	Name    string
	Aliases []string
}

// Route é a configuração de uma rota de relay.
type Route struct {
	// Name identifica a rota em logs e métricas.
	Name string
	// Path é o prefixo montado no gateway (ex.: /api/consulta-v8). Com AppendPath,
	// o que vier depois dele é acrescentado à URL do upstream.
	Path       string
	AppendPath bool

	Upstream string
	// UpstreamEnv nomeia a variável de ambiente do upstream, usada na mensagem de erro
	// quando Upstream está vazio.
	UpstreamEnv string

	Methods      []string
	AllowHeaders string
	Timeout      time.Duration

	Forward      HeaderMode
	FixedHeaders []FixedHeader

	Response           ResponseMode
	DefaultContentType string

	Query       QueryMode
	QueryParams []QueryParam
}

// Policy retorna a política CORS/métodos da rota.
func (rt Route) Policy() cors.Policy {
	return cors.Policy{
		Methods:      rt.Methods,
		AllowHeaders: rt.AllowHeaders,
	}
}

// AllMethods é a lista das rotas genéricas (consulta-presenca, consulta-v8).
var AllMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}
