package demo

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/askframe/askframe/internal/table"
)

// Config shapes the synthetic storefront event log used for demos and
// smoke tests. The same seed always yields the same table.
type Config struct {
	Rows            int
	Seed            int64
	UserCardinality int
	Start           time.Time
	// Spacing is the mean gap between consecutive events.
	Spacing time.Duration
}

func DefaultConfig() Config {
	return Config{
		Rows:            500,
		Seed:            1,
		UserCardinality: 50,
		Start:           time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Spacing:         37 * time.Minute,
	}
}

type generator struct {
	rnd *rand.Rand
	cfg Config
	at  time.Time
}

// Events builds the event table: one row per event with ids, a category
// mix skewed toward page views, monetary amounts only on commerce events,
// and a monotonically increasing timestamp.
func Events(cfg Config) *table.Table {
	defaults := DefaultConfig()
	if cfg.Rows < 0 {
		cfg.Rows = 0
	}
	if cfg.UserCardinality <= 0 {
		cfg.UserCardinality = defaults.UserCardinality
	}
	if cfg.Start.IsZero() {
		cfg.Start = defaults.Start
	}
	if cfg.Spacing <= 0 {
		cfg.Spacing = defaults.Spacing
	}
	g := &generator{rnd: rand.New(rand.NewSource(cfg.Seed)), cfg: cfg, at: cfg.Start}

	columns := []table.Column{
		{Name: "event_id", Type: table.TypeInt},
		{Name: "user_id", Type: table.TypeString},
		{Name: "event_type", Type: table.TypeString},
		{Name: "amount", Type: table.TypeFloat},
		{Name: "country", Type: table.TypeString},
		{Name: "device", Type: table.TypeString},
		{Name: "converted", Type: table.TypeBool},
		{Name: "occurred_at", Type: table.TypeTime},
	}
	for i := range columns {
		columns[i].Values = make([]any, 0, cfg.Rows)
	}
	for i := 0; i < cfg.Rows; i++ {
		eventType := g.pickEventType()
		var amount any
		if value := g.pickAmount(eventType); value > 0 {
			amount = value
		}
		row := []any{
			int64(i + 1),
			fmt.Sprintf("user-%04d", g.rnd.Intn(cfg.UserCardinality)+1),
			eventType,
			amount,
			pickOne(g.rnd, []string{"US", "DE", "GB", "IN", "JP", "BR"}),
			pickOne(g.rnd, []string{"desktop", "mobile", "tablet"}),
			eventType == "purchase",
			g.next(),
		}
		for c := range columns {
			columns[c].Values = append(columns[c].Values, row[c])
		}
	}
	return &table.Table{Columns: columns}
}

func (g *generator) next() time.Time {
	jitter := time.Duration(g.rnd.Int63n(int64(g.cfg.Spacing)))
	g.at = g.at.Add(g.cfg.Spacing/2 + jitter)
	return g.at
}

func (g *generator) pickEventType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 55:
		return "page_view"
	case p < 75:
		return "search"
	case p < 88:
		return "add_to_cart"
	case p < 97:
		return "checkout"
	default:
		return "purchase"
	}
}

// pickAmount returns zero for events that carry no money.
func (g *generator) pickAmount(eventType string) float64 {
	switch eventType {
	case "purchase":
		return round2(20 + g.rnd.Float64()*280)
	case "checkout":
		return round2(15 + g.rnd.Float64()*240)
	case "add_to_cart":
		return round2(5 + g.rnd.Float64()*120)
	default:
		return 0
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
