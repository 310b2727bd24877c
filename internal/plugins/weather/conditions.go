package weather

import "strings"

// Canonical condition states.
const (
	ConditionClearNight     = "clear-night"
	ConditionCloudy         = "cloudy"
	ConditionExceptional    = "exceptional"
	ConditionFog            = "fog"
	ConditionHail           = "hail"
	ConditionLightning      = "lightning"
	ConditionLightningRainy = "lightning-rainy"
	ConditionPartlyCloudy   = "partlycloudy"
	ConditionPouring        = "pouring"
	ConditionRainy          = "rainy"
	ConditionSnowy          = "snowy"
	ConditionSnowyRainy     = "snowy-rainy"
	ConditionSunny          = "sunny"
	ConditionWindy          = "windy"
	ConditionWindyVariant   = "windy-variant"
)

// symbolConditions maps upstream symbol codes (suffix-stripped) to canonical
// conditions.
var symbolConditions = map[string]string{
	"clearsky":                     ConditionSunny,
	"fair":                         ConditionPartlyCloudy,
	"partlycloudy":                 ConditionPartlyCloudy,
	"cloudy":                       ConditionCloudy,
	"fog":                          ConditionFog,
	"lightrain":                    ConditionRainy,
	"lightrainshowers":             ConditionRainy,
	"rain":                         ConditionRainy,
	"rainshowers":                  ConditionRainy,
	"heavyrain":                    ConditionPouring,
	"heavyrainshowers":             ConditionPouring,
	"lightrainandthunder":          ConditionLightningRainy,
	"rainandthunder":               ConditionLightningRainy,
	"heavyrainandthunder":          ConditionLightningRainy,
	"lightrainshowersandthunder":   ConditionLightningRainy,
	"rainshowersandthunder":        ConditionLightningRainy,
	"heavyrainshowersandthunder":   ConditionLightningRainy,
	"lightsleet":                   ConditionSnowyRainy,
	"lightsleetshowers":            ConditionSnowyRainy,
	"sleet":                        ConditionSnowyRainy,
	"sleetshowers":                 ConditionSnowyRainy,
	"heavysleet":                   ConditionSnowyRainy,
	"heavysleetshowers":            ConditionSnowyRainy,
	"lightsleetandthunder":         ConditionSnowyRainy,
	"sleetandthunder":              ConditionSnowyRainy,
	"heavysleetandthunder":         ConditionSnowyRainy,
	"lightssleetshowersandthunder": ConditionSnowyRainy,
	"sleetshowersandthunder":       ConditionSnowyRainy,
	"heavysleetshowersandthunder":  ConditionSnowyRainy,
	"lightsnow":                    ConditionSnowy,
	"lightsnowshowers":             ConditionSnowy,
	"snow":                         ConditionSnowy,
	"snowshowers":                  ConditionSnowy,
	"heavysnow":                    ConditionSnowy,
	"heavysnowshowers":             ConditionSnowy,
	"lightsnowandthunder":          ConditionLightning,
	"snowandthunder":               ConditionLightning,
	"heavysnowandthunder":          ConditionLightning,
	"lightssnowshowersandthunder":  ConditionLightning,
	"snowshowersandthunder":        ConditionLightning,
	"heavysnowshowersandthunder":   ConditionLightning,
}

// conditionFromSymbol maps an upstream symbol code like "rainshowers_day"
// to a canonical condition. A clear sky at night is its own condition.
// Unknown codes map to exceptional so they surface instead of vanishing.
func conditionFromSymbol(code string) string {
	if code == "" {
		return ""
	}
	base, variant, _ := strings.Cut(code, "_")
	if base == "clearsky" && (variant == "night" || variant == "polartwilight") {
		return ConditionClearNight
	}
	if cond, ok := symbolConditions[base]; ok {
		return cond
	}
	return ConditionExceptional
}
