package cartas

import (
	"fmt"
	"strings"

	"github.com/noel-cartinhas/noel/internal/models"
	"github.com/noel-cartinhas/noel/internal/textutil"
)

// ParseStatus maps free text, in English or Portuguese, onto a status.
// Matching ignores case and accents and looks for a keyword anywhere in
// the text, so "Entregue ontem" is delivered.
func ParseStatus(raw string) (models.CartaStatus, error) {
	s := textutil.Fold(strings.TrimSpace(raw))
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}

	switch {
	case s == "":
		return "", fmt.Errorf("%w: status is empty", ErrValidation)
	case has("entregue", "delivered"):
		return models.StatusDelivered, nil
	case has("cancel"):
		return models.StatusCancelled, nil
	case has("adotad", "adopted"):
		return models.StatusAdopted, nil
	case has("disponiv", "available"):
		return models.StatusAvailable, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}

// ListStatus selects a letter listing.
type ListStatus string

const (
	ListAll       ListStatus = ""
	ListAvailable ListStatus = "available"
	ListAdopted   ListStatus = "adopted"
	ListDelivered ListStatus = "delivered"
	ListMine      ListStatus = "mine"
)

// ParseListStatus accepts the English names and the legacy query values.
// Unknown values select everything.
func ParseListStatus(raw string) ListStatus {
	switch textutil.Fold(strings.TrimSpace(raw)) {
	case "available", "disponivel", "disponiveis":
		return ListAvailable
	case "adopted", "adotada", "adotadas":
		return ListAdopted
	case "delivered", "entregue", "entregues":
		return ListDelivered
	case "mine", "minhas":
		return ListMine
	}
	return ListAll
}
