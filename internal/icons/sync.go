package icons

import (
	"errors"
	"log"

	"github.com/noel-cartinhas/noel/internal/models"
	"gorm.io/gorm"
)

// Init loads the catalog at path and syncs it into gift_icons.
func Init(db *gorm.DB, path string) error {
	cat, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	n := Sync(db, cat)
	log.Printf("Synced %d of %d gift icon mapping(s) from %s", n, len(cat.Icons), path)
	return nil
}

// Sync upserts every catalog entry by keyword list and returns how many
// were written. Failures are logged and skipped.
func Sync(db *gorm.DB, cat *Catalog) int {
	synced := 0
	for _, e := range cat.Icons {
		if err := syncEntry(db, e); err != nil {
			log.Printf("Warning: failed to sync gift icon %s: %v", e.Icon, err)
			continue
		}
		synced++
	}
	return synced
}

func syncEntry(db *gorm.DB, e Entry) error {
	keywords := e.keywordList()

	var row models.GiftIcon
	err := db.Where("keyword = ?", keywords).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&models.GiftIcon{Keyword: keywords, IconCode: e.Icon}).Error
	}
	if err != nil {
		return err
	}
	if row.IconCode == e.Icon {
		return nil
	}
	return db.Model(&row).Update("icon_code", e.Icon).Error
}
