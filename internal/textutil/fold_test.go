package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Disponível":     "disponivel",
		"BICICLETA":      "bicicleta",
		"Boneca Açúcar":  "boneca acucar",
		"entregue ontem": "entregue ontem",
		"":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Fold(in), in)
	}
}
