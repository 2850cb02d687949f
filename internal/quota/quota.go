// Package quota holds the part-wise question quotas and the viva/practical
// marks caps, keyed by trade. The tables are loaded from the config file so
// operators can change them without a rebuild; compiled defaults cover the
// deployment this service was built for.
package quota

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/examdesk/examdesk/internal/model"
)

// Quota maps part codes (A–F) to the number of questions required per part.
type Quota map[string]int

// Validate checks every key is a valid part code and every count is
// non-negative. A violation is a structural error and must abort the
// operation before anything is persisted.
func (q Quota) Validate() error {
	for part, count := range q {
		if !model.ValidPart(part) {
			return fmt.Errorf("%w: invalid part %q", ErrInvalidQuota, part)
		}
		if count < 0 {
			return fmt.Errorf("%w: count for part %s must be non-negative, got %d", ErrInvalidQuota, part, count)
		}
	}
	return nil
}

// Total returns the number of questions the quota demands.
func (q Quota) Total() int {
	total := 0
	for _, count := range q {
		total += count
	}
	return total
}

// Parts returns the quota's part codes sorted in code order, so iteration
// over a quota is stable.
func (q Quota) Parts() []string {
	parts := make([]string, 0, len(q))
	for p := range q {
		parts = append(parts, p)
	}
	sort.Strings(parts)
	return parts
}

func (q Quota) clone() Quota {
	out := make(Quota, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// canonical uppercases the part keys. Viper lowercases config keys, so a
// quota read from the config file arrives as {"a": 15, ...} and must be
// folded back before validation.
func (q Quota) canonical() Quota {
	out := make(Quota, len(q))
	for k, v := range q {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

// ErrInvalidQuota marks a structurally invalid quota mapping.
var ErrInvalidQuota = fmt.Errorf("invalid quota")

// MarkCaps bounds the admin-entered marks for one exam category. A nil field
// means no cap applies.
type MarkCaps struct {
	Practical *int `mapstructure:"practical"`
	Viva      *int `mapstructure:"viva"`
}

// TradeLimits holds the marks caps for both exam categories of a trade.
type TradeLimits struct {
	Primary   MarkCaps `mapstructure:"primary"`
	Secondary MarkCaps `mapstructure:"secondary"`
}

// Config is the full quota/limits table. Trade keys are normalized
// (uppercase, whitespace collapsed) at load time.
type Config struct {
	Common        Quota                  `mapstructure:"common"`
	Trades        map[string]Quota       `mapstructure:"trades"`
	Limits        map[string]TradeLimits `mapstructure:"limits"`
	DefaultLimits TradeLimits            `mapstructure:"default_limits"`
}

var wsRe = regexp.MustCompile(`\s+`)

// NormalizeTrade uppercases a trade name and collapses internal whitespace,
// the canonical key form for all table lookups.
func NormalizeTrade(name string) string {
	return wsRe.ReplaceAllString(strings.TrimSpace(strings.ToUpper(name)), " ")
}

func intPtr(v int) *int { return &v }

// Default returns the compiled-in tables: the common quota (43 questions)
// and the seventeen trades carried over from the original deployment.
func Default() *Config {
	standard := Quota{"A": 15, "B": 0, "C": 5, "D": 10, "E": 3, "F": 10}
	extended := Quota{"A": 20, "B": 0, "C": 5, "D": 15, "E": 4, "F": 10}

	trades := map[string]Quota{
		"OCC": extended.clone(),
		"DMV": extended.clone(),
	}
	for _, name := range []string{
		"TTC", "DTMN", "EFS", "LMN", "CLK SD", "STEWARD", "WASHERMAN",
		"HOUSE KEEPER", "CHEFCOM", "MESS KEEPER", "SKT", "MUSICIAN",
		"ARTSN WW", "HAIR DRESSER", "SP STAFF",
	} {
		trades[name] = standard.clone()
	}

	defaultCaps := MarkCaps{Practical: intPtr(30), Viva: intPtr(10)}
	reducedCaps := MarkCaps{Practical: intPtr(20), Viva: intPtr(5)}

	limits := map[string]TradeLimits{
		"OCC": {Primary: reducedCaps, Secondary: defaultCaps},
		"DMV": {Primary: reducedCaps, Secondary: defaultCaps},
		// Secondary-only trades: no primary caps apply.
		"HAIR DRESSER": {Secondary: defaultCaps},
		"SP STAFF":     {Secondary: defaultCaps},
	}

	return &Config{
		Common:        standard.clone(),
		Trades:        trades,
		Limits:        limits,
		DefaultLimits: TradeLimits{Primary: defaultCaps, Secondary: defaultCaps},
	}
}

// Load reads the "quotas" section of the given viper instance. When the
// section is absent the compiled defaults are returned. Trade keys are
// normalized and every quota is validated.
func Load(v *viper.Viper) (*Config, error) {
	if !v.IsSet("quotas") {
		return Default(), nil
	}
	var cfg Config
	if err := v.UnmarshalKey("quotas", &cfg); err != nil {
		return nil, fmt.Errorf("parse quotas config: %w", err)
	}

	defaults := Default()
	if cfg.Common == nil {
		cfg.Common = defaults.Common
	}
	cfg.Common = cfg.Common.canonical()
	if err := cfg.Common.Validate(); err != nil {
		return nil, fmt.Errorf("common quota: %w", err)
	}

	trades := make(map[string]Quota, len(cfg.Trades))
	for name, q := range cfg.Trades {
		q = q.canonical()
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("trade %s quota: %w", name, err)
		}
		trades[NormalizeTrade(name)] = q
	}
	cfg.Trades = trades

	limits := make(map[string]TradeLimits, len(cfg.Limits))
	for name, l := range cfg.Limits {
		limits[NormalizeTrade(name)] = l
	}
	cfg.Limits = limits

	if cfg.DefaultLimits == (TradeLimits{}) {
		cfg.DefaultLimits = defaults.DefaultLimits
	}
	return &cfg, nil
}

// ForTrade returns the quota table for a trade, falling back to the common
// quota when the trade is empty or unrecognized. Lookup also tries the key
// with spaces removed, matching how trade codes show up in imports.
func (c *Config) ForTrade(trade string) Quota {
	key := NormalizeTrade(trade)
	if key == "" {
		return c.Common.clone()
	}
	if q, ok := c.Trades[key]; ok {
		return q.clone()
	}
	if q, ok := c.Trades[strings.ReplaceAll(key, " ", "")]; ok {
		return q.clone()
	}
	return c.Common.clone()
}

// Resolve picks the effective quota for a generation: the paper's explicit
// override when non-empty, the common quota for common papers, otherwise the
// trade table. The result is validated before use.
func (c *Config) Resolve(override map[string]int, isCommon bool, trade string) (Quota, error) {
	var q Quota
	switch {
	case len(override) > 0:
		q = Quota(override).clone()
	case isCommon:
		q = c.Common.clone()
	default:
		q = c.ForTrade(trade)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// LimitsFor returns the marks caps for a trade, falling back to the default
// limits when the trade has no entry.
func (c *Config) LimitsFor(trade string) TradeLimits {
	if l, ok := c.Limits[NormalizeTrade(trade)]; ok {
		return l
	}
	return c.DefaultLimits
}

// ValidateCandidateMarks checks the four admin-entered components against
// the trade's caps. Negative marks are always rejected.
func (c *Config) ValidateCandidateMarks(trade string, viva1, viva2, practical1, practical2 int) error {
	for name, v := range map[string]int{
		"viva_1": viva1, "viva_2": viva2,
		"practical_1": practical1, "practical_2": practical2,
	} {
		if v < 0 {
			return fmt.Errorf("%s: marks cannot be negative", name)
		}
	}

	l := c.LimitsFor(trade)
	check := func(name string, v int, limit *int) error {
		if limit != nil && v > *limit {
			return fmt.Errorf("%s cannot exceed %d for trade %s", name, *limit, NormalizeTrade(trade))
		}
		return nil
	}
	if err := check("viva_1", viva1, l.Primary.Viva); err != nil {
		return err
	}
	if err := check("practical_1", practical1, l.Primary.Practical); err != nil {
		return err
	}
	if err := check("viva_2", viva2, l.Secondary.Viva); err != nil {
		return err
	}
	return check("practical_2", practical2, l.Secondary.Practical)
}
