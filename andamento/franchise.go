package andamento

import "strings"

// FranchiseName devolve franquia_nome_tratada. ok=false vira null no JSON.
// empresa é comparada sem caixa e sem espaços nas pontas, como o filtro do SQL Server.
//
//	abbcred          -> PARCEIRO ADAPTA
//	gmpromotora      -> Expande
//	diascredsolucoes -> Dias Cred
//	impacto          -> nome informado ou Inpacto
//	vieira           -> nome informado ou Matriz
//	demais           -> nome informado ou null
func FranchiseName(empresa, franquiaNome string) (string, bool) {
	name := strings.TrimSpace(franquiaNome)
	switch strings.ToLower(strings.TrimSpace(empresa)) {
	case "abbcred":
		return "PARCEIRO ADAPTA", true
	case "gmpromotora":
		return "Expande", true
	case "diascredsolucoes":
		return "Dias Cred", true
	case "impacto":
		if name == "" {
			return "Inpacto", true
		}
	case "vieira":
		if name == "" {
			return "Matriz", true
		}
	}
	return name, name != ""
}
