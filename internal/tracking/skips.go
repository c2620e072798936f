package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alvarorichard/Gostream/internal/models"
)

// Where a resolved skip marker came from
const (
	SkipFromSeries  = "series"
	SkipFromCountry = "country"
)

// SetSeriesSkip stores intro/outro markers for one series
func (s *Store) SetSeriesSkip(seriesKey string, st models.SkipTimes) error {
	if err := s.ready(); err != nil {
		return err
	}
	if seriesKey == "" {
		return fmt.Errorf("series key must not be empty")
	}
	return s.upsertSkip("skip_markers", "series_key", seriesKey, st)
}

// SeriesSkip returns the markers stored for a series, or nil
func (s *Store) SeriesSkip(seriesKey string) (*models.SkipTimes, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.getSkip("skip_markers", "series_key", seriesKey)
}

// DeleteSeriesSkip removes the markers of a series
func (s *Store) DeleteSeriesSkip(seriesKey string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM skip_markers WHERE series_key = ?`, seriesKey)
	return err
}

// SetCountryDefault stores default markers for every series of a country
func (s *Store) SetCountryDefault(country string, st models.SkipTimes) error {
	if err := s.ready(); err != nil {
		return err
	}
	country = normalizeCountry(country)
	if country == "" {
		return fmt.Errorf("country must not be empty")
	}
	return s.upsertSkip("country_skip_defaults", "country", country, st)
}

// CountryDefault returns the default markers of a country, or nil
func (s *Store) CountryDefault(country string) (*models.SkipTimes, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.getSkip("country_skip_defaults", "country", normalizeCountry(country))
}

// ResolveSkip looks up markers for a series, falling back to the default
// of its country. found is false when neither exists.
func (s *Store) ResolveSkip(seriesKey, country string) (st models.SkipTimes, from string, found bool, err error) {
	series, err := s.SeriesSkip(seriesKey)
	if err != nil {
		return st, "", false, err
	}
	if series != nil {
		return *series, SkipFromSeries, true, nil
	}

	if country == "" {
		return st, "", false, nil
	}
	def, err := s.CountryDefault(country)
	if err != nil {
		return st, "", false, err
	}
	if def != nil {
		return *def, SkipFromCountry, true, nil
	}
	return st, "", false, nil
}

func (s *Store) upsertSkip(table, keyCol, key string, st models.SkipTimes) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, intro_start, intro_end, outro_start, outro_end, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(%s) DO UPDATE SET
			intro_start = excluded.intro_start,
			intro_end = excluded.intro_end,
			outro_start = excluded.outro_start,
			outro_end = excluded.outro_end,
			updated_at = excluded.updated_at`, table, keyCol, keyCol)

	_, err := s.db.Exec(query, key,
		st.Intro.Start, st.Intro.End, st.Outro.Start, st.Outro.End, time.Now().UnixNano())
	return err
}

func (s *Store) getSkip(table, keyCol, key string) (*models.SkipTimes, error) {
	query := fmt.Sprintf(`SELECT intro_start, intro_end, outro_start, outro_end FROM %s WHERE %s = ?`, table, keyCol)

	var st models.SkipTimes
	err := s.db.QueryRow(query, key).Scan(&st.Intro.Start, &st.Intro.End, &st.Outro.Start, &st.Outro.End)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &st, nil
}

func normalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}
