package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ParseOsID aceita tanto uuids quanto ids numéricos legados. Ids
// numéricos viram uuids determinísticos com os dígitos no último bloco
// (ex.: "42" -> 00000000-0000-0000-0000-000000000042), para que o mesmo
// id legado resolva sempre a mesma OS.
func ParseOsID(raw string) (uuid.UUID, error) {
	if id, err := uuid.Parse(raw); err == nil {
		return id, nil
	}
	if raw == "" || len(raw) > 12 {
		return uuid.Nil, fmt.Errorf("osId inválido: %q", raw)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return uuid.Nil, fmt.Errorf("osId inválido: %q", raw)
		}
	}
	return uuid.Parse(fmt.Sprintf("00000000-0000-0000-0000-%012s", raw))
}
