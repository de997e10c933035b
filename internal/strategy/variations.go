package strategy

import (
	"fmt"
	"sort"
)

// Variation tags name complete parameter presets
type Variation string

const (
	VariationOB60            Variation = "OB60"
	VariationOB70            Variation = "OB70"
	VariationOB70KZ          Variation = "OB70_KZ"
	VariationOB70KZDD5       Variation = "OB70_KZ_DD5"
	VariationOB70KZDD5Strong Variation = "OB70_KZ_DD5_STRONG"
	VariationOB65Close       Variation = "OB65_CLOSE"
	VariationOB60Engulf      Variation = "OB60_ENGULF"
	VariationSweepOB65       Variation = "SWEEP_OB65"
	VariationBOSOB65         Variation = "BOS_OB65"
	VariationPDOB70          Variation = "PD_OB70"
)

var variations = map[Variation]func(p *Params){
	VariationOB60: func(p *Params) {},
	VariationOB70: func(p *Params) {
		p.MinOBScore = 70
	},
	VariationOB70KZ: func(p *Params) {
		p.MinOBScore = 70
		p.UseKillZones = true
	},
	VariationOB70KZDD5: func(p *Params) {
		p.MinOBScore = 70
		p.UseKillZones = true
		p.MaxDailyDD = 5
	},
	VariationOB70KZDD5Strong: func(p *Params) {
		p.MinOBScore = 70
		p.UseKillZones = true
		p.MaxDailyDD = 5
		p.Confirmation = ConfirmStrong
	},
	VariationOB65Close: func(p *Params) {
		p.MinOBScore = 65
		p.Confirmation = ConfirmClose
	},
	VariationOB60Engulf: func(p *Params) {
		p.Confirmation = ConfirmEngulf
	},
	VariationSweepOB65: func(p *Params) {
		p.Strategy = StrategyLiquiditySweep
		p.MinOBScore = 65
	},
	VariationBOSOB65: func(p *Params) {
		p.Strategy = StrategyBOS
		p.MinOBScore = 65
	},
	VariationPDOB70: func(p *Params) {
		p.MinOBScore = 70
		p.RequirePremiumDiscount = true
	},
}

// LookupVariation returns the parameters for a preset tag
func LookupVariation(tag Variation) (Params, error) {
	apply, ok := variations[tag]
	if !ok {
		return Params{}, fmt.Errorf("%w: unknown variation %q", ErrInvalidParams, tag)
	}
	p := DefaultParams()
	p.Name = string(tag)
	apply(&p)
	return p, nil
}

// Variations lists every preset, sorted by tag
func Variations() []Params {
	tags := make([]string, 0, len(variations))
	for tag := range variations {
		tags = append(tags, string(tag))
	}
	sort.Strings(tags)

	out := make([]Params, 0, len(tags))
	for _, tag := range tags {
		p, _ := LookupVariation(Variation(tag))
		out = append(out, p)
	}
	return out
}
