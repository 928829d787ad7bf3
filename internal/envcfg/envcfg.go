// Package envcfg lê configuração a partir de variáveis de ambiente.
//
// Os binários (cmd/gateway, cmd/andamento) não têm arquivo de configuração: tudo vem
// do ambiente, opcionalmente complementado por um arquivo .env carregado com godotenv.
// Valores já presentes no ambiente do processo sempre vencem os do arquivo.
package envcfg

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadFiles carrega os arquivos .env informados, na ordem, ignorando os que não existem.
// Retorna a lista de arquivos efetivamente carregados.
func LoadFiles(paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		// godotenv.Load não sobrescreve variáveis já definidas.
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, err
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// Lookup procura a chave como foi escrita, depois em MAIÚSCULAS e depois em minúsculas.
// Algumas credenciais do banco são publicadas em minúsculas (host_king) e outras não.
func Lookup(k string) (string, bool) {
	for _, cand := range []string{k, strings.ToUpper(k), strings.ToLower(k)} {
		if v, ok := os.LookupEnv(cand); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Get retorna o valor (já com TrimSpace) ou "" se ausente.
func Get(k string) string {
	v, _ := Lookup(k)
	return strings.TrimSpace(v)
}

// First retorna o primeiro valor não vazio entre as chaves.
func First(keys ...string) string {
	for _, k := range keys {
		if v := Get(k); v != "" {
			return v
		}
	}
	return ""
}

func IsSet(k string) bool {
	_, ok := Lookup(k)
	return ok
}

func Default(k, def string) string {
	if v := Get(k); v != "" {
		return v
	}
	return def
}

func IntDefault(k string, def int) int {
	v := Get(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Int retorna (valor, true) apenas quando a variável existe e é um inteiro válido.
func Int(k string) (int, bool) {
	v := Get(k)
	if v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func FloatDefault(k string, def float64) float64 {
	v := Get(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func BoolDefault(k string, def bool) bool {
	v := Get(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func DurationDefault(k string, def time.Duration) time.Duration {
	v := Get(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// MillisDefault lê um inteiro em milissegundos (ex.: CONSULTA_PRESENCA_PROXY_TIMEOUT_MS=45000).
func MillisDefault(k string, def time.Duration) time.Duration {
	ms, ok := Int(k)
	if !ok {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
