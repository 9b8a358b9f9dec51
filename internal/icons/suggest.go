package icons

import (
	"context"
	"fmt"
	"strings"

	"github.com/noel-cartinhas/noel/internal/models"
	"github.com/noel-cartinhas/noel/internal/textutil"
	"gorm.io/gorm"
)

// Suggester matches gift descriptions against the gift_icons table.
type Suggester struct {
	db *gorm.DB
}

func NewSuggester(db *gorm.DB) *Suggester {
	return &Suggester{db: db}
}

// Suggest returns the icon names whose keywords occur in text, ignoring
// case and accents, in table order and without duplicates. Each mapping
// contributes at most once.
func (s *Suggester) Suggest(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	var rows []models.GiftIcon
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load gift icons: %w", err)
	}
	return Match(rows, text), nil
}

// Match runs the suggestion over already loaded mappings.
func Match(rows []models.GiftIcon, text string) []string {
	folded := textutil.Fold(text)
	out := []string{}
	seen := make(map[string]bool)
	for _, row := range rows {
		if row.Keyword == "" || row.IconCode == "" {
			continue
		}
		for _, kw := range strings.Split(row.Keyword, ",") {
			k := textutil.Fold(strings.TrimSpace(kw))
			if k == "" || !strings.Contains(folded, k) {
				continue
			}
			if name := IconName(row.IconCode); name != "" && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
			break
		}
	}
	return out
}

// IconName reduces a Font Awesome class list such as "fa-solid fa-futbol"
// to the bare icon name "futbol".
func IconName(code string) string {
	fields := strings.Fields(code)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[len(fields)-1], "fa-")
}
