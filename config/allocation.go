package config

import (
	"encoding/json"
	"log"
	"os"

	"github.com/shopspring/decimal"
)

// Allocation business configuration.
//
// Branch-share tables, forced allocations, confidence rules and the review
// threshold are customer policy, not code. Defaults below mirror the current
// billing setup; ALLOCATION_CONFIG may point at a JSON file that overrides
// any of them.

type BranchShare struct {
	Branch string          `json:"branch"`
	Amount decimal.Decimal `json:"amount"`
}

type HexnodeConfig struct {
	PerDeviceCost  decimal.Decimal   `json:"per_device_cost"`
	DefaultLicense string            `json:"default_license"`
	BranchAliases  map[string]string `json:"branch_aliases"`
}

// ProductPattern maps free-text product names onto a canonical license when
// no exact alias matched. Evaluated in order; all Contains tokens must be
// present and no Excludes token may be.
type ProductPattern struct {
	Contains  []string `json:"contains"`
	Excludes  []string `json:"excludes"`
	Canonical string   `json:"canonical"`
}

type AdobeConfig struct {
	AdjustmentLicense string            `json:"adjustment_license"`
	ProductAliases    map[string]string `json:"product_aliases"`
	ProductPatterns   []ProductPattern  `json:"product_patterns"`
}

type IntegricomConfig struct {
	AdjustmentLicense        string `json:"adjustment_license"`
	SupportAdjustmentLicense string `json:"support_adjustment_license"`

	// Office values in exports that really mean Home Office.
	BranchAliases map[string]string `json:"branch_aliases"`

	DistrictBranches []string `json:"district_branches"`
	ExtraBranches    []string `json:"extra_branches"`

	// Canonical invoice-line names charged to Home Office regardless of
	// quantity or user data.
	ForcedHomeOffice []string `json:"forced_home_office"`

	// Canonical line name -> ordered branch sequence; one invoice unit is
	// assigned per branch in order (fixed-template allocation).
	TemplateSequences map[string][]string `json:"template_sequences"`

	// Canonical line name -> fixed dollar shares; the remainder goes to
	// Home Office.
	FixedSplits map[string][]BranchShare `json:"fixed_splits"`

	// Canonical line name -> single branch that takes the whole amount.
	SingleBranch map[string]string `json:"single_branch"`

	// Canonical line name -> license tokens that make an export user a
	// per-user consumer of that line (dynamic allocation).
	DynamicLicenses map[string][]string `json:"dynamic_licenses"`

	// Free-text invoice-line canonicalization, evaluated in order.
	LinePatterns []ProductPattern `json:"line_patterns"`
}

// ConfidenceRule assigns a branch guess when Keyword appears in a charge
// summary (case-insensitive). Rules are evaluated in order; first match wins.
type ConfidenceRule struct {
	Keyword    string `json:"keyword"`
	Branch     string `json:"branch"`
	Confidence string `json:"confidence"`
	Reason     string `json:"reason,omitempty"`
}

type ConfidenceConfig struct {
	// Blocks whose confidence ranks below this level default to Home Office
	// and are flagged for review.
	ReviewBelow string           `json:"review_below"`
	Rules       []ConfidenceRule `json:"rules"`
}

type AllocationConfig struct {
	HomeOffice    string              `json:"home_office"`
	HeaderAliases map[string][]string `json:"header_aliases"`
	Hexnode       HexnodeConfig       `json:"hexnode"`
	Adobe         AdobeConfig         `json:"adobe"`
	Integricom    IntegricomConfig    `json:"integricom"`
	Confidence    ConfidenceConfig    `json:"confidence"`
}

// KnownBranches returns every valid allocation target: Home Office first,
// then district branches, then the extra (non-district) sites.
func (c IntegricomConfig) KnownBranches(homeOffice string) []string {
	branches := make([]string, 0, 1+len(c.DistrictBranches)+len(c.ExtraBranches))
	branches = append(branches, homeOffice)
	branches = append(branches, c.DistrictBranches...)
	branches = append(branches, c.ExtraBranches...)
	return branches
}

var allocationConfig *AllocationConfig

func GetAllocationConfig() *AllocationConfig {
	return allocationConfig
}

func init() {
	cfg := DefaultAllocationConfig()
	if path := os.Getenv("ALLOCATION_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("could not read ALLOCATION_CONFIG %s: %v; using defaults", path, err)
		} else if err := json.Unmarshal(raw, cfg); err != nil {
			log.Printf("could not parse ALLOCATION_CONFIG %s: %v; using defaults", path, err)
			cfg = DefaultAllocationConfig()
		}
	}
	allocationConfig = cfg
}

func DefaultAllocationConfig() *AllocationConfig {
	districtBranches := []string{
		"Acworth",
		"Canton",
		"Charleston",
		"Cobb",
		"Color Burst",
		"Doraville",
		"Destin",
		"Fort Walton",
		"Pensacola",
		"Nashville",
		"Savannah",
		"St. Pete",
		"Tampa",
	}

	return &AllocationConfig{
		HomeOffice: "Home Office",
		HeaderAliases: map[string][]string{
			"branch":     {"branch", "branch_name", "location", "site", "office", "store", "entity", "branch_code"},
			"license":    {"license", "licence", "product", "product_name", "subscription", "service", "sku", "plan", "item", "name"},
			"amount":     {"amount", "charge", "cost", "extended_cost", "line_total", "total", "price", "net_amount", "subtotal"},
			"quantity":   {"qty", "quantity", "seats", "licenses", "units", "count"},
			"unit_price": {"unit_price", "price_per_unit", "rate", "unit_cost", "cost_per_license"},
		},
		Hexnode: HexnodeConfig{
			PerDeviceCost:  decimal.NewFromFloat(2.00),
			DefaultLicense: "Hexnode UEM Cloud Pro Edition",
			BranchAliases: map[string]string{
				"Default User": "Home Office",
			},
		},
		Adobe: AdobeConfig{
			AdjustmentLicense: "Adobe Invoice Adjustment",
			ProductAliases: map[string]string{
				"acrobat pro":                           "Acrobat Pro",
				"acrobat pro dc":                        "Acrobat Pro",
				"creative cloud pro":                    "Creative Cloud Pro",
				"creative cloud all apps":               "Creative Cloud Pro",
				"creative cloud all apps - pro edition": "Creative Cloud Pro",
				"indesign":                              "InDesign",
				"indesign - pro edition":                "InDesign",
				"illustrator":                           "Illustrator",
				"lightroom":                             "Lightroom",
				"lightroom single app plan with 1tb":    "Lightroom",
				"photoshop":                             "Photoshop",
				"photoshop - pro edition":               "Photoshop",
				"adobe stock - 40 assets a month":       "Adobe Stock - 40 assets a month",
				"ai assistant for acrobat":              "AI Assistant for Acrobat",
			},
			ProductPatterns: []ProductPattern{
				{Contains: []string{"acrobat"}, Excludes: []string{"assistant"}, Canonical: "Acrobat Pro"},
				{Contains: []string{"creative cloud"}, Canonical: "Creative Cloud Pro"},
				{Contains: []string{"indesign"}, Canonical: "InDesign"},
				{Contains: []string{"illustrator"}, Canonical: "Illustrator"},
				{Contains: []string{"lightroom"}, Canonical: "Lightroom"},
				{Contains: []string{"photoshop"}, Canonical: "Photoshop"},
				{Contains: []string{"adobe stock", "40 assets"}, Canonical: "Adobe Stock - 40 assets a month"},
				{Contains: []string{"ai assistant for acrobat"}, Canonical: "AI Assistant for Acrobat"},
			},
		},
		Integricom: IntegricomConfig{
			AdjustmentLicense:        "Integricom Invoice Adjustment",
			SupportAdjustmentLicense: "Integricom Support Invoice Adjustment",
			BranchAliases: map[string]string{
				"":              "Home Office",
				"Corporate":     "Home Office",
				"Process Smart": "Home Office",
			},
			DistrictBranches: districtBranches,
			ExtraBranches:    []string{"Sugar Hill", "Grayson"},
			ForcedHomeOffice: []string{
				"Ticketing System User License",
				"Documentation System License",
				"Monthly Block Hours",
				"Dark Web Monitoring",
				"IT Automation Tool",
				"Teams Rooms Pro",
				"NetWatch360 MAC",
				"NetWatch360 Managed Server",
				"NetWatch360 Managed Network Device",
				"Dropbox Business Standard",
				"DP Server Image Backup Cloud",
				"Power BI Pro",
				"Microsoft Teams Essentials NCE Annual",
				"M365 Microsoft E5",
				"M365 Intune",
				"Prorated M365",
				"AWS Cloud Server",
				"Keeper Enterprise Password Manager",
				"Teams Audio Conferencing",
			},
			TemplateSequences: map[string][]string{
				"NetWatch360 Managed Firewall": districtBranches,
				"NetWatch360 Managed Internet": append([]string{"Home Office"}, districtBranches...),
				"Firewall Security Subscription District Office": {
					"Canton", "Cobb", "Doraville", "Destin", "Fort Walton", "Tampa",
					"Savannah", "Charleston", "Nashville", "Color Burst", "Acworth",
				},
			},
			FixedSplits: map[string][]BranchShare{
				"Firewall Security Subscription Main Office": {
					{Branch: "Sugar Hill", Amount: decimal.NewFromFloat(97.00)},
				},
			},
			SingleBranch: map[string]string{
				"Firewall Security Subscription Latest 2025": "St. Pete",
				"Project Plan 3": "Sugar Hill",
			},
			DynamicLicenses: map[string][]string{
				"Workstation": {
					"Microsoft 365 Business Premium",
					"Exchange Online (Plan 1)",
					"Exchange Online (Plan 2)",
					"Microsoft 365 F3",
					"Microsoft Teams Essentials",
				},
				"Office 365 Cloud Backup":           {"Microsoft 365 Business Premium", "Exchange Online (Plan 1)"},
				"Microsoft Business Premium Annual": {"Microsoft 365 Business Premium"},
				"Exchange Online P1 Annual":         {"Exchange Online (Plan 1)"},
				"Microsoft F3 Annual":               {"Microsoft 365 F3"},
				"Exchange Online P2 Annual":         {"Exchange Online (Plan 2)"},
			},
			LinePatterns: []ProductPattern{
				{Contains: []string{"managed user/workstation"}, Canonical: "Workstation"},
				{Contains: []string{"managed firewall"}, Excludes: []string{"security subscription"}, Canonical: "NetWatch360 Managed Firewall"},
				{Contains: []string{"managed network device"}, Canonical: "NetWatch360 Managed Network Device"},
				{Contains: []string{"managed internet"}, Canonical: "NetWatch360 Managed Internet"},
				{Contains: []string{"firewall security subscription, main office"}, Canonical: "Firewall Security Subscription Main Office"},
				{Contains: []string{"firewall security subscription, district office"}, Canonical: "Firewall Security Subscription District Office"},
				{Contains: []string{"fw bought in 2025"}, Canonical: "Firewall Security Subscription Latest 2025"},
				{Contains: []string{"ticketing system user license"}, Canonical: "Ticketing System User License"},
				{Contains: []string{"documentation system"}, Canonical: "Documentation System License"},
				{Contains: []string{"monthly recurring block"}, Canonical: "Monthly Block Hours"},
				{Contains: []string{"monthly block hours"}, Canonical: "Monthly Block Hours"},
				{Contains: []string{"dark web monitoring"}, Canonical: "Dark Web Monitoring"},
				{Contains: []string{"it automation tool"}, Canonical: "IT Automation Tool"},
				{Contains: []string{"teams rooms pro"}, Canonical: "Teams Rooms Pro"},
				{Contains: []string{"netwatch360 mac"}, Canonical: "NetWatch360 MAC"},
				{Contains: []string{"managed server", "netwatch360"}, Canonical: "NetWatch360 Managed Server"},
				{Contains: []string{"dropbox business standard"}, Canonical: "Dropbox Business Standard"},
				{Contains: []string{"office 365 cloud backup"}, Canonical: "Office 365 Cloud Backup"},
				{Contains: []string{"server image backup, cloud"}, Canonical: "DP Server Image Backup Cloud"},
				{Contains: []string{"business premium", "microsoft 365"}, Canonical: "Microsoft Business Premium Annual"},
				{Contains: []string{"power bi pro"}, Canonical: "Power BI Pro"},
				{Contains: []string{"project plan 3"}, Canonical: "Project Plan 3"},
				{Contains: []string{"exchange online p1"}, Canonical: "Exchange Online P1 Annual"},
				{Contains: []string{"microsoft f3"}, Canonical: "Microsoft F3 Annual"},
				{Contains: []string{"exchange online plan 2"}, Canonical: "Exchange Online P2 Annual"},
				{Contains: []string{"exchange online p2"}, Canonical: "Exchange Online P2 Annual"},
				{Contains: []string{"teams essentials"}, Canonical: "Microsoft Teams Essentials NCE Annual"},
				{Contains: []string{"microsoft e5"}, Canonical: "M365 Microsoft E5"},
				{Contains: []string{"intune"}, Canonical: "M365 Intune"},
				{Contains: []string{"prorated m365"}, Canonical: "Prorated M365"},
				{Contains: []string{"teams audio conferencing"}, Canonical: "Teams Audio Conferencing"},
				{Contains: []string{"aws cloud server"}, Canonical: "AWS Cloud Server"},
				{Contains: []string{"keeper"}, Canonical: "Keeper Enterprise Password Manager"},
			},
		},
		Confidence: ConfidenceConfig{
			ReviewBelow: "medium",
			Rules:       defaultConfidenceRules(districtBranches, []string{"Sugar Hill", "Grayson"}),
		},
	}
}

// defaultConfidenceRules builds the ordered scorer rule list: an exact
// branch-name hit is high confidence; a known informal site spelling is
// medium.
func defaultConfidenceRules(districts, extras []string) []ConfidenceRule {
	rules := make([]ConfidenceRule, 0, len(districts)+len(extras)+2)
	for _, branch := range districts {
		rules = append(rules, ConfidenceRule{Keyword: branch, Branch: branch, Confidence: "high"})
	}
	for _, branch := range extras {
		rules = append(rules, ConfidenceRule{Keyword: branch, Branch: branch, Confidence: "high"})
	}
	rules = append(rules,
		ConfidenceRule{Keyword: "st pete", Branch: "St. Pete", Confidence: "medium", Reason: "Known site spelling for St. Pete."},
		ConfidenceRule{Keyword: "ft walton", Branch: "Fort Walton", Confidence: "medium", Reason: "Known site spelling for Fort Walton."},
	)
	return rules
}
