package database

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/notes"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillFileSizeLabels = "2026-09-20_backfill_file_size_labels"
	migrationLowercaseNoteBranches  = "2026-09-28_lowercase_note_branches"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillFileSizeLabels, apply: backfillFileSizeLabels},
		{name: migrationLowercaseNoteBranches, apply: lowercaseNoteBranches},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillFileSizeLabels fills the human-readable size of notes stored before labels existed.
func backfillFileSizeLabels(db *gorm.DB) error {
	var pending []notes.Note
	if err := db.Select("note_id", "file_size").Where("file_size_label = ''").Find(&pending).Error; err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, note := range pending {
			label := humanize.Bytes(uint64(note.FileSize))
			if err := tx.Model(&notes.Note{}).Where("note_id = ?", note.NoteID).UpdateColumn("file_size_label", label).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func lowercaseNoteBranches(db *gorm.DB) error {
	var mixed []notes.Note
	if err := db.Select("note_id", "branch").Where("branch <> lower(branch)").Find(&mixed).Error; err != nil {
		return err
	}
	for _, note := range mixed {
		if err := db.Model(&notes.Note{}).Where("note_id = ?", note.NoteID).UpdateColumn("branch", strings.ToLower(note.Branch)).Error; err != nil {
			return err
		}
	}
	return nil
}
