package cartas

import (
	"testing"

	"github.com/noel-cartinhas/noel/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want models.CartaStatus
	}{
		{"disponível", models.StatusAvailable},
		{"Available", models.StatusAvailable},
		{"adotada", models.StatusAdopted},
		{"ADOPTED", models.StatusAdopted},
		{"entregue", models.StatusDelivered},
		{"entregue ontem", models.StatusDelivered},
		{"delivered", models.StatusDelivered},
		{"cancelada", models.StatusCancelled},
		{"cancelled", models.StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "   ", "perdida"} {
		_, err := ParseStatus(in)
		assert.ErrorIs(t, err, ErrValidation, in)
	}
}

func TestParseListStatus(t *testing.T) {
	assert.Equal(t, ListAvailable, ParseListStatus("disponivel"))
	assert.Equal(t, ListAdopted, ParseListStatus("adotadas"))
	assert.Equal(t, ListDelivered, ParseListStatus("entregues"))
	assert.Equal(t, ListMine, ParseListStatus("minhas"))
	assert.Equal(t, ListMine, ParseListStatus("mine"))
	assert.Equal(t, ListAll, ParseListStatus("whatever"))
}
