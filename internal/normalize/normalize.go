// Package normalize converts raw provider records into canonical Job
// entities. Untyped provider data never leaks past this boundary.
package normalize

import (
	"crypto/sha256"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/jobatlas/internal/model"
	"github.com/sells-group/jobatlas/internal/source"
)

const (
	// SourceTag identifies the upstream provider on normalized jobs.
	SourceTag = "adzuna"

	// MaxDescriptionLen caps the stored description length in runes.
	MaxDescriptionLen = 2000

	// HashLen is the stored hex length of the dedup fingerprint.
	HashLen = 16

	placeholderTitle   = "Untitled"
	placeholderCompany = "Unknown company"
	placeholderCity    = "Unknown location"
)

var (
	tagPattern = regexp.MustCompile(`<[^>]*>`)
	lowercaser = cases.Lower(language.Und)
)

// Normalize maps one raw provider record to a canonical Job. Every field is
// defaulted independently; a missing field never fails the record. It
// returns nil only when the record's shape is broken enough to panic during
// derivation, in which case the record is dropped and the pipeline moves on.
func Normalize(raw source.RawJob) (job *model.Job) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("normalize: dropping malformed record", zap.Any("panic", r), zap.String("raw_id", raw.ID))
			job = nil
		}
	}()

	j := &model.Job{
		ID:       raw.ID,
		SourceID: raw.ID,
		Source:   SourceTag,
		Title:    firstNonEmpty(strings.TrimSpace(raw.Title), placeholderTitle),
		Company:  deriveCompany(raw),
		City:     deriveCity(raw),
		URL:      firstNonEmpty(raw.RedirectURL, raw.URL),
		Remote:   deriveRemote(raw),
	}
	if j.ID == "" {
		j.ID = uuid.New().String()
	}

	j.Description = StripHTML(raw.Description)
	j.PostedAt = parsePostedAt(firstNonEmpty(raw.Created, raw.CreatedAt))
	j.SalaryMin = toSalary(raw.SalaryMin)
	j.SalaryMax = toSalary(raw.SalaryMax)

	// Coordinates are taken only as a pair; a lone latitude or longitude is
	// treated as absent and left for the geocoder to fill.
	if lat, lon, ok := rawCoordinates(raw); ok {
		j.SetCoordinates(model.Coordinates{Lat: lat, Lon: lon})
	}

	j.UniqHash = UniqHash(j.Title, j.Company, j.City, j.PostedAt)
	return j
}

// UniqHash returns the stable dedup fingerprint of a posting: sha256 of the
// lowercase-normalized title|company|city|postedAt tuple, truncated for
// storage compactness. Case-only differences in any component hash equal.
func UniqHash(title, company, city string, postedAt *time.Time) string {
	posted := ""
	if postedAt != nil {
		posted = postedAt.UTC().Format(time.RFC3339)
	}
	tuple := fmt.Sprintf("%s|%s|%s|%s",
		lowercaser.String(strings.TrimSpace(title)),
		lowercaser.String(strings.TrimSpace(company)),
		lowercaser.String(strings.TrimSpace(city)),
		lowercaser.String(posted),
	)
	h := sha256.Sum256([]byte(tuple))
	return fmt.Sprintf("%x", h)[:HashLen]
}

// StripHTML removes markup via tag matching, unescapes entities, collapses
// surrounding whitespace and caps the length.
func StripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > MaxDescriptionLen {
		return string(runes[:MaxDescriptionLen])
	}
	return s
}

func deriveCompany(raw source.RawJob) string {
	for _, candidate := range []string{raw.Company.DisplayName, raw.CompanyName} {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return placeholderCompany
}

func deriveCity(raw source.RawJob) string {
	candidates := []string{raw.Location.DisplayName}
	if n := len(raw.Location.Area); n > 0 {
		// Area runs country-first; the last element is the locality.
		candidates = append(candidates, raw.Location.Area[n-1])
	}
	candidates = append(candidates, raw.City)

	for _, candidate := range candidates {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return placeholderCity
}

func deriveRemote(raw source.RawJob) bool {
	if raw.RemoteFlag != nil && *raw.RemoteFlag {
		return true
	}
	contract := lowercaser.String(raw.ContractTime + " " + raw.ContractType)
	return strings.Contains(contract, "remote")
}

func rawCoordinates(raw source.RawJob) (lat, lon float64, ok bool) {
	if raw.Latitude != nil && raw.Longitude != nil {
		return *raw.Latitude, *raw.Longitude, true
	}
	if raw.Location.Latitude != nil && raw.Location.Longitude != nil {
		return *raw.Location.Latitude, *raw.Location.Longitude, true
	}
	return 0, 0, false
}

// parsePostedAt tries the timestamp layouts seen across feeds; an
// unparsable value yields a nil PostedAt rather than an error.
func parsePostedAt(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	zap.L().Debug("normalize: unparsable posted_at", zap.String("value", s))
	return nil
}

func toSalary(v *float64) *int {
	if v == nil || *v < 0 {
		return nil
	}
	n := int(*v + 0.5)
	return &n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
