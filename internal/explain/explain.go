// Package explain renders a markdown walkthrough of a strategy.
package explain

import (
	"bytes"
	"strings"
	"text/template"
)

// Allocation is one asset's share of a strategy.
type Allocation struct {
	Asset      string
	Percentage string
}

// Strategy is the subset of a recommendation the walkthrough uses.
type Strategy struct {
	Name        string
	Description string
	Risk        string
	ExpectedAPY string
	Platforms   []string
	Allocation  []Allocation
	Steps       []string
}

var platformAdvice = map[string]string{
	"aave":     "**Aave**: Deposit your assets to earn interest and potentially use them as collateral",
	"compound": "**Compound**: Supply assets to the protocol to earn COMP tokens on top of the base interest rate",
	"curve":    "**Curve**: Provide liquidity to stable pairs for low-risk yields enhanced by CRV rewards",
	"uniswap":  "**Uniswap**: Create or join liquidity pools to earn trading fees",
	"lido":     "**Lido**: Stake ETH to receive stETH while maintaining liquidity",
	"yearn":    "**Yearn Finance**: Deposit into Yearn vaults for automated yield optimization",
	"convex":   "**Convex**: Boost your Curve yields by staking LP tokens",
	"gmx":      "**GMX**: Provide liquidity to earn fees from leveraged trading",
	"dydx":     "**dYdX**: Participate in the liquidity mining program while trading perpetuals",
}

var riskAdvice = map[string]string{
	"low":    "This low-risk strategy focuses on capital preservation. Monitor your positions weekly, but drastic adjustments should rarely be needed.",
	"medium": "This medium-risk strategy balances growth and safety. Review your positions at least weekly and be prepared to adjust allocations if market conditions change significantly.",
	"high":   "This high-risk strategy aims for maximum growth. Daily monitoring is recommended, and you should be prepared to exit positions quickly if market conditions deteriorate.",
}

const defaultRiskAdvice = "Monitor your positions regularly and adjust based on changing market conditions."

const walkthrough = `## Implementation of {{.Name}}

This strategy focuses on {{.Focus}} It's designed to generate approximately {{.APY}} APY with a {{.RiskLower}} risk profile.

### Key Platforms
{{range .Platforms}}- {{.}}
{{end}}
### Steps to Implement
{{range $i, $s := .Steps}}{{inc $i}}. {{$s}}
{{end}}{{if .Allocation}}
### Recommended Allocation
{{range .Allocation}}- **{{.Asset}}**: {{.Percentage}}
{{end}}{{end}}
### Risk Management
{{.RiskAdvice}}

### Benefits and Risks
- **Benefits**: Potential for {{.APY}} APY, diversification across reputable protocols, exposure to {{.Ecosystem}}
- **Risks**: {{.Risk}} risk profile, potential for smart contract vulnerabilities, market volatility, and impermanent loss in liquidity positions

### How This Fits Your Portfolio
This strategy is well-suited for {{.Assets}}, providing a {{.RiskLower}}-risk approach to generating yield in the current market conditions.
`

var tmpl = template.Must(template.New("walkthrough").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(walkthrough))

type view struct {
	Name       string
	Focus      string
	APY        string
	Risk       string
	RiskLower  string
	RiskAdvice string
	Platforms  []string
	Steps      []string
	Allocation []Allocation
	Ecosystem  string
	Assets     string
}

// Generate renders the walkthrough of s for a holder of assetSymbols.
func Generate(s Strategy, assetSymbols []string) string {
	v := view{
		Name:       orDefault(s.Name, "this strategy"),
		Focus:      focus(s.Description),
		APY:        orDefault(s.ExpectedAPY, "the quoted"),
		Risk:       orDefault(s.Risk, "Unrated"),
		RiskLower:  strings.ToLower(orDefault(s.Risk, "unrated")),
		Allocation: s.Allocation,
		Steps:      s.Steps,
		Ecosystem:  "a major DeFi ecosystem",
		Assets:     "your assets",
	}

	if advice, ok := riskAdvice[v.RiskLower]; ok {
		v.RiskAdvice = advice
	} else {
		v.RiskAdvice = defaultRiskAdvice
	}

	for _, p := range s.Platforms {
		v.Platforms = append(v.Platforms, adviceFor(p))
	}
	if len(s.Platforms) > 1 {
		v.Ecosystem = "multiple DeFi ecosystems"
	}

	if len(v.Steps) == 0 {
		v.Steps = []string{
			"Research and connect your wallet to these platforms: " + strings.Join(s.Platforms, ", "),
			"Allocate your assets according to the recommended percentages",
			"Set up regular monitoring and rebalancing intervals",
			"Stay informed about protocol updates and governance proposals",
		}
	}

	if len(assetSymbols) > 0 {
		v.Assets = strings.Join(assetSymbols, ", ")
	}

	var buf bytes.Buffer
	// the template is parsed at init and only reads plain fields
	_ = tmpl.Execute(&buf, v)
	return buf.String()
}

func adviceFor(platform string) string {
	if advice, ok := platformAdvice[strings.ToLower(strings.TrimSpace(platform))]; ok {
		return advice
	}
	return "**" + platform + "**: Integrate this platform into your strategy for diversification"
}

// focus lower-cases the description so it reads as a sentence fragment.
func focus(description string) string {
	d := strings.TrimSpace(description)
	if d == "" {
		return "generating yield from your current holdings."
	}
	d = strings.ToLower(d)
	if !strings.HasSuffix(d, ".") {
		d += "."
	}
	return d
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
