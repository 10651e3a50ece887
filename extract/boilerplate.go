package extract

import (
	"context"

	"github.com/use-agent/prodex/cleaner"
	"github.com/use-agent/prodex/models"
)

// Boilerplate is the terminal stage: it recovers narrative content, never
// commerce fields, and always returns a record.
type Boilerplate struct {
	minMainText int
}

// NewBoilerplate creates the boilerplate stage. minMainText is the
// shortest readability article accepted before the pruning fallback.
func NewBoilerplate(minMainText int) *Boilerplate {
	return &Boilerplate{minMainText: minMainText}
}

func (b *Boilerplate) Name() string { return string(TierBoilerplate) }

func (b *Boilerplate) Extract(_ context.Context, in *Input) (Outcome, error) {
	main := cleaner.MainText(in.HTML, in.URL, b.minMainText)

	rec := &models.ProductRecord{
		Name:        firstNonEmpty(in.Hints.Name, in.Title(), main.Title),
		Description: main.Text,
		Images:      cleaner.AbsoluteImages(in.Doc),
	}
	if len(rec.Images) == 0 && len(in.Hints.Images) > 0 {
		rec.Images = append([]string{}, in.Hints.Images...)
	}
	source := "readability"
	if main.Pruned {
		source = "pruning"
	}
	return Outcome{Record: rec, Tier: TierBoilerplate, Source: source}, nil
}
