package digest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/deusflow/newsdigest/internal/news"
	"github.com/deusflow/newsdigest/internal/rss"
)

// DefaultTitles are section headings per category.
var DefaultTitles = map[news.Category]string{
	news.CategoryLocal:  "🇩🇰 Local news",
	news.CategoryGlobal: "🌍 World news",
	news.CategoryTech:   "💻 Tech",
	news.CategorySports: "⚽ Sports",
	news.CategoryCrypto: "🪙 Crypto",
}

// CategorySources is the configured feed list for one category.
type CategorySources struct {
	Category news.Category
	Title    string
	Sources  []rss.Source
}

func (c CategorySources) title() string {
	if c.Title != "" {
		return c.Title
	}
	if t, ok := DefaultTitles[c.Category]; ok {
		return t
	}
	return string(c.Category)
}

// Digest builds the full multi-category message.
type Digest struct {
	Engine         *Engine
	Categories     []CategorySources
	PerSourceLimit int
	Location       *time.Location
}

// Result is one built digest.
type Result struct {
	ID       string
	BuiltAt  time.Time
	Sections []Section
	Text     string
}

// Headlines returns the titles of every selected entry, in section order.
func (r Result) Headlines() []string {
	var out []string
	for _, s := range r.Sections {
		for _, e := range s.Entries {
			out = append(out, e.Title)
		}
	}
	return out
}

// Build runs every category in configured order and renders the message.
func (d *Digest) Build(ctx context.Context) Result {
	start := time.Now()
	id := uuid.NewString()
	logger := log.With().Str("build_id", id).Logger()
	ctx = logger.WithContext(ctx)

	res := Result{ID: id, BuiltAt: d.Engine.now()}
	limit := d.Engine.Options.withDefaults().TargetCount

	var b strings.Builder
	b.WriteString(header(res.BuiltAt, d.Location))
	for _, cat := range d.Categories {
		sec := d.Engine.Build(ctx, cat.Category, cat.Sources, d.PerSourceLimit)
		res.Sections = append(res.Sections, sec)

		b.WriteString("\n")
		b.WriteString(Render(cat.title(), sec.Entries, limit))
	}
	res.Text = b.String()

	elapsed := time.Since(start)
	d.Engine.metrics().RecordBuild(elapsed)
	logger.Info().
		Int("sections", len(res.Sections)).
		Int("headlines", len(res.Headlines())).
		Dur("took", elapsed).
		Msg("Digest built")
	return res
}

func header(at time.Time, loc *time.Location) string {
	if loc != nil {
		at = at.In(loc)
	}
	return "<b>📰 News digest</b>\n<i>" + at.Format("Mon, 02 Jan 2006 15:04") + "</i>\n"
}
