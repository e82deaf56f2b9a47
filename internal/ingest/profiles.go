package ingest

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile is one named search an import run executes.
type Profile struct {
	What    string `yaml:"what"`
	Where   string `yaml:"where"`
	Pages   int    `yaml:"pages"`
	PerPage int    `yaml:"per_page"`
}

// LoadProfiles reads an import profiles file: a YAML list of searches to
// run back to back.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read profiles %s", path)
	}
	var profiles []Profile
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse profiles %s", path)
	}
	return profiles, nil
}

// RunProfiles executes each profile as its own pipeline run and sums the
// imported counts. The first failing profile aborts the rest.
func (im *Importer) RunProfiles(ctx context.Context, profiles []Profile) (Summary, error) {
	var total Summary
	for _, p := range profiles {
		pages := p.Pages
		if pages <= 0 {
			pages = 1
		}
		perPage := p.PerPage
		if perPage <= 0 {
			perPage = 50
		}

		run := &Importer{
			src:      im.src,
			resolver: im.resolver,
			store:    im.store,
			what:     p.What,
			where:    p.Where,
		}
		summary, err := run.Run(ctx, pageRange(pages), perPage)
		if err != nil {
			return total, eris.Wrapf(err, "ingest: profile %q", p.What)
		}
		total.Imported += summary.Imported
	}
	return total, nil
}

func pageRange(n int) []int {
	pages := make([]int, n)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}
