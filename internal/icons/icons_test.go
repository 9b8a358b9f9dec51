package icons

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/noel-cartinhas/noel/internal/dbtest"
	"github.com/noel-cartinhas/noel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
icons:
  - keywords: [bola, futebol]
    icon: fa-solid fa-futbol
  - keywords: ["boneca, bonecas"]
    icon: fa-solid fa-person-dress
  - keywords: [bicicleta, bike]
    icon: fa-bicycle
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(sample))
	require.NoError(t, err)
	require.Len(t, cat.Icons, 3)
	assert.Equal(t, "boneca,bonecas", cat.Icons[1].keywordList())

	_, err = ParseCatalog([]byte("icons:\n  - keyword: [x]\n    icon: fa-x\n"))
	assert.Error(t, err, "unknown field must be rejected")

	_, err = ParseCatalog([]byte("icons:\n  - keywords: [' ']\n    icon: fa-x\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("icons:\n  - keywords: [x]\n    icon: ''\n"))
	assert.Error(t, err)
}

func TestIconName(t *testing.T) {
	assert.Equal(t, "futbol", IconName("fa-solid fa-futbol"))
	assert.Equal(t, "gift", IconName("  fa-gift "))
	assert.Equal(t, "star", IconName("star"))
	assert.Equal(t, "", IconName(""))
}

func TestMatch(t *testing.T) {
	rows := []models.GiftIcon{
		{Keyword: "bola,futebol", IconCode: "fa-solid fa-futbol"},
		{Keyword: "boneca", IconCode: "fa-solid fa-person-dress"},
		{Keyword: "chuteira", IconCode: "fa-futbol"},
		{Keyword: "", IconCode: "fa-x"},
		{Keyword: "avião", IconCode: "fa-plane"},
	}

	assert.Equal(t, []string{"futbol"}, Match(rows, "Bola e chuteira de FUTEBOL"))
	assert.Equal(t, []string{"person-dress", "plane"}, Match(rows, "uma Bonéca e um aviao"))
	assert.Empty(t, Match(rows, "livro"))
}

func TestInitSyncsAndSuggests(t *testing.T) {
	db := dbtest.Open(t)
	path := filepath.Join(t.TempDir(), "icons.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	require.NoError(t, Init(db, path))
	require.NoError(t, Init(db, path))

	var n int64
	require.NoError(t, db.Model(&models.GiftIcon{}).Count(&n).Error)
	assert.EqualValues(t, 3, n)

	updated := `
icons:
  - keywords: [bola, futebol]
    icon: fa-solid fa-baseball
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.NoError(t, Init(db, path))

	got, err := NewSuggester(db).Suggest(context.Background(), "Uma BOLA nova e uma bike")
	require.NoError(t, err)
	assert.Equal(t, []string{"baseball", "bicycle"}, got)

	got, err = NewSuggester(db).Suggest(context.Background(), " ")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Error(t, Init(db, filepath.Join(t.TempDir(), "missing.yaml")))
}
