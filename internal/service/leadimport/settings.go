package leadimport

import (
	"fmt"

	"github.com/ignite/lead-import/internal/config"
	"github.com/ignite/lead-import/internal/datanorm"
)

// SettingsFromConfig converts the import section of the config file.
func SettingsFromConfig(c config.ImportConfig) Settings {
	return Settings{
		DefaultStatus:      c.DefaultStatus,
		DefaultTemperature: c.DefaultTemperature,
		FollowUpDays:       c.FollowUpDays,
		Policy:             Policy{SkipDuplicates: c.SkipDuplicates, UpdateExisting: c.UpdateExisting},
		PreviewRows:        c.PreviewRows,
		MaxFileBytes:       c.MaxFileBytes(),
		MaxReportedErrors:  c.MaxReportedErrors,
		ProgressEvery:      c.ProgressEvery,
		CommitLockTTL:      c.CommitLockTTL(),
	}
}

// MapperFromConfig builds the column mapper, reading the keyword dictionary
// from KeywordsFile when one is set and using the embedded one otherwise.
func MapperFromConfig(c config.ImportConfig) (*datanorm.Mapper, error) {
	dict, err := datanorm.LoadDictionary(c.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("load keywords %s: %w", c.KeywordsFile, err)
	}
	return datanorm.NewMapper(dict), nil
}
