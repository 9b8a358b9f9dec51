package cartas

import (
	"context"
	"testing"

	"github.com/noel-cartinhas/noel/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImport(t *testing.T) {
	items, err := ParseImport([]byte(`{"cartas":[
		{"name":"Ana","sex":"F","gift_description":"boneca","age":8},
		{"letter_number":12,"name":"Bia","sex":"f","gift_description":"livro","note":null}
	]}`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Ana", items[0].Name)
	assert.Equal(t, 8, *items[0].Age)
	assert.Equal(t, 12, *items[1].LetterNumber)
}

func TestParseImportRejectsInvalidDocuments(t *testing.T) {
	for name, raw := range map[string]string{
		"malformed":     `{"cartas":[`,
		"empty list":    `{"cartas":[]}`,
		"missing name":  `{"cartas":[{"sex":"F","gift_description":"x"}]}`,
		"bad sex":       `{"cartas":[{"name":"A","sex":"X","gift_description":"x"}]}`,
		"unknown field": `{"cartas":[{"name":"A","sex":"F","gift_description":"x","status":"adopted"}]}`,
		"zero number":   `{"cartas":[{"letter_number":0,"name":"A","sex":"F","gift_description":"x"}]}`,
	} {
		_, err := ParseImport([]byte(raw))
		assert.ErrorIs(t, err, ErrValidation, name)
	}
}

func TestImportContinuesPastFailures(t *testing.T) {
	rec := &memRecorder{}
	svc := NewService(newRepo(t), rec)

	res := svc.Import(context.Background(), "admin@x.com", []CreateInput{
		{LetterNumber: intPtr(10), Name: "Ana", Sex: "F", GiftDescription: "boneca"},
		{LetterNumber: intPtr(10), Name: "Bia", Sex: "F", GiftDescription: "livro"},
		{Name: "Caio", Sex: "M", GiftDescription: "bola"},
	})

	assert.Equal(t, []int{10, 11}, res.Created)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].Index)
	require.Len(t, rec.events, 2)
	assert.Equal(t, "import", rec.events[0].Payload["source"])
}

func transitionCount(t *testing.T, op, outcome string) float64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "noel_cartas_transitions_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["op"] == op && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestImportCountsCreates(t *testing.T) {
	svc := NewService(newRepo(t), nil)
	okBefore := transitionCount(t, OpCreate, "ok")
	invalidBefore := transitionCount(t, OpCreate, "invalid")

	svc.Import(context.Background(), "admin@x.com", []CreateInput{
		{LetterNumber: intPtr(20), Name: "Ana", Sex: "F", GiftDescription: "boneca"},
		{LetterNumber: intPtr(20), Name: "Bia", Sex: "F", GiftDescription: "livro"},
		{Name: "Caio", Sex: "M", GiftDescription: "bola"},
	})

	assert.Equal(t, okBefore+2, transitionCount(t, OpCreate, "ok"))
	assert.Equal(t, invalidBefore+1, transitionCount(t, OpCreate, "invalid"))
}
