package command

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

// Limits bounds the size of a generated command list.
type Limits struct {
	Min              int
	Max              int
	TruncateOverflow bool // trim oversized blocks instead of returning them whole
}

// DefaultLimits is the 50..100 window used by the intake wizard.
var DefaultLimits = Limits{Min: 50, Max: 100}

// Options configures a Generator.
type Options struct {
	Seed             int64 // 0 derives a seed from the clock
	Limits           Limits
	MaxRetries       int
	RandomIndustries bool
}

// Profile is the synthetic business a single attempt builds.
type Profile struct {
	Industry      Industry `json:"industry"`
	Template      Template `json:"template"`
	BusinessName  string   `json:"business_name"`
	Locale        string   `json:"locale"`
	BaseURL       string   `json:"base_url"`
	UseRealImages bool     `json:"use_real_images"`
}

const (
	defaultTimeout  = 10 * time.Second
	navigateTimeout = 30 * time.Second
	submitTimeout   = 120 * time.Second
	nameRedraws     = 5
	nameMinDistance = 3
)

// Generator produces bounded command lists for website attempts.
type Generator struct {
	rng      *rand.Rand
	opts     Options
	nextID   int
	progress io.Writer

	usedIndustries map[string]bool
	usedTemplates  map[string]bool
	usedNames      []string
	industryCursor int
	templateCursor int
}

// NewGenerator creates a Generator. The same non-zero seed always yields the
// same sequence of profiles and command lists.
func NewGenerator(opts Options) *Generator {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.Limits.Min <= 0 && opts.Limits.Max <= 0 {
		opts.Limits = DefaultLimits
	}
	return &Generator{
		rng:            rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1)),
		opts:           opts,
		usedIndustries: make(map[string]bool),
		usedTemplates:  make(map[string]bool),
	}
}

// SetProgress sets a writer for live progress output.
func (g *Generator) SetProgress(w io.Writer) {
	g.progress = w
}

func (g *Generator) logf(format string, args ...interface{}) {
	if g.progress != nil {
		fmt.Fprintf(g.progress, "  → "+format+"\n", args...)
	}
}

// Reset clears the command id counter and the per-session used sets.
func (g *Generator) Reset() {
	g.nextID = 0
	g.usedIndustries = make(map[string]bool)
	g.usedTemplates = make(map[string]bool)
	g.usedNames = nil
	g.industryCursor = 0
	g.templateCursor = 0
}

// SelectIndustry prefers industries not yet used this session; once the pool
// is exhausted it draws uniformly from the full pool.
func (g *Generator) SelectIndustry() Industry {
	if !g.opts.RandomIndustries {
		ind := Industries[g.industryCursor%len(Industries)]
		g.industryCursor++
		g.usedIndustries[ind.ID] = true
		return ind
	}
	var unused []Industry
	for _, ind := range Industries {
		if !g.usedIndustries[ind.ID] {
			unused = append(unused, ind)
		}
	}
	pool := unused
	if len(pool) == 0 {
		pool = Industries
	}
	ind := pool[g.rng.IntN(len(pool))]
	g.usedIndustries[ind.ID] = true
	return ind
}

// SelectTemplate prefers templates not yet used this session.
func (g *Generator) SelectTemplate() Template {
	if !g.opts.RandomIndustries {
		tpl := Templates[g.templateCursor%len(Templates)]
		g.templateCursor++
		g.usedTemplates[tpl.ID] = true
		return tpl
	}
	var unused []Template
	for _, tpl := range Templates {
		if !g.usedTemplates[tpl.ID] {
			unused = append(unused, tpl)
		}
	}
	pool := unused
	if len(pool) == 0 {
		pool = Templates
	}
	tpl := pool[g.rng.IntN(len(pool))]
	g.usedTemplates[tpl.ID] = true
	return tpl
}

// BusinessName composes optional prefix + optional locale + industry name +
// optional suffix. Names too close to one already used this session are redrawn.
func (g *Generator) BusinessName(ind Industry, locale string) string {
	var name string
	for try := 0; try < nameRedraws; try++ {
		name = g.drawName(ind, locale)
		if !g.tooSimilar(name) {
			break
		}
	}
	g.usedNames = append(g.usedNames, name)
	return name
}

func (g *Generator) drawName(ind Industry, locale string) string {
	var parts []string
	if g.rng.Float64() < 0.5 {
		parts = append(parts, namePrefixes[g.rng.IntN(len(namePrefixes))])
	}
	if g.rng.Float64() < 0.5 && locale != "" {
		parts = append(parts, locale)
	}
	parts = append(parts, ind.Name)
	if g.rng.Float64() < 0.5 {
		parts = append(parts, nameSuffixes[g.rng.IntN(len(nameSuffixes))])
	}
	return strings.Join(parts, " ")
}

func (g *Generator) tooSimilar(name string) bool {
	lower := strings.ToLower(name)
	for _, used := range g.usedNames {
		if levenshtein.ComputeDistance(lower, strings.ToLower(used)) < nameMinDistance {
			return true
		}
	}
	return false
}

// NewProfile selects industry, template, locale and business name for the next attempt.
func (g *Generator) NewProfile(baseURL string, useRealImages bool) Profile {
	ind := g.SelectIndustry()
	tpl := g.SelectTemplate()
	locale := Locales[g.rng.IntN(len(Locales))]
	return Profile{
		Industry:      ind,
		Template:      tpl,
		BusinessName:  g.BusinessName(ind, locale),
		Locale:        locale,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		UseRealImages: useRealImages,
	}
}

// Generate produces the five fixed blocks for a profile, padded to the
// minimum and never padded beyond the maximum.
func (g *Generator) Generate(p Profile) []Command {
	blocks := [][]Command{
		g.navigationBlock(p),
		g.formFillBlock(p),
		g.verificationBlock(p),
		g.interactionBlock(p),
		g.qualityCheckBlock(p),
	}

	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	if total > g.opts.Limits.Max {
		if g.opts.Limits.TruncateOverflow {
			blocks = truncateBlocks(blocks, g.opts.Limits.Max)
		} else {
			g.logf("blocks total %d commands, above max %d; keeping all", total, g.opts.Limits.Max)
		}
	}

	var cmds []Command
	for _, b := range blocks {
		cmds = append(cmds, b...)
	}
	for len(cmds) < g.opts.Limits.Min && len(cmds) < g.opts.Limits.Max {
		cmds = append(cmds, g.padding())
	}

	for i := range cmds {
		g.nextID++
		cmds[i].ID = fmt.Sprintf("cmd-%04d", g.nextID)
	}
	g.logf("generated %d commands for %q (%s/%s)", len(cmds), p.BusinessName, p.Industry.ID, p.Template.ID)
	return cmds
}

// truncateBlocks trims the longest block from its tail, one command at a
// time, until the total fits limit. No block drops below one command.
func truncateBlocks(blocks [][]Command, limit int) [][]Command {
	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	for total > limit {
		longest := -1
		for i, b := range blocks {
			if len(b) > 1 && (longest == -1 || len(b) > len(blocks[longest])) {
				longest = i
			}
		}
		if longest == -1 {
			break
		}
		blocks[longest] = blocks[longest][:len(blocks[longest])-1]
		total--
	}
	return blocks
}

func (g *Generator) retriesFor(c Category) int {
	switch c {
	case CategoryNavigation, CategoryFormFill, CategoryInteraction:
		return min(1, g.opts.MaxRetries)
	default:
		return 0
	}
}

func (g *Generator) cmd(c Category, a Action, target, value, desc string) Command {
	return Command{
		Category:    c,
		Action:      a,
		Target:      target,
		Value:       value,
		Timeout:     defaultTimeout,
		Retries:     g.retriesFor(c),
		Description: desc,
	}
}

func (g *Generator) navigationBlock(p Profile) []Command {
	home := g.cmd(CategoryNavigation, ActionNavigate, "", p.BaseURL, "open generator home")
	home.Timeout = navigateTimeout
	home.Critical = true

	builder := g.cmd(CategoryNavigation, ActionNavigate, "", p.BaseURL+"/builder", "open intake wizard")
	builder.Timeout = navigateTimeout

	return []Command{
		home,
		g.cmd(CategoryNavigation, ActionWaitForLoad, "", "", "wait for home to load"),
		builder,
		g.cmd(CategoryNavigation, ActionWaitForLoad, "wizard-root", "", "wait for wizard"),
		g.waitCmd(500*time.Millisecond, "settle wizard"),
	}
}

func (g *Generator) waitCmd(d time.Duration, desc string) Command {
	c := g.cmd(CategoryNavigation, ActionWait, "", d.String(), desc)
	c.Timeout = d + 5*time.Second
	return c
}

// formFillBlock drives the fixed seven-step intake wizard.
func (g *Generator) formFillBlock(p Profile) []Command {
	next := func(step int) Command {
		return g.cmd(CategoryFormFill, ActionClick, "next-step-btn", "", fmt.Sprintf("finish step %d", step))
	}
	slug := strings.ToLower(strings.ReplaceAll(p.BusinessName, " ", ""))
	images := "false"
	if p.UseRealImages {
		images = "true"
	}

	generate := g.cmd(CategoryFormFill, ActionSubmit, "generate-btn", "", "generate website")
	generate.Timeout = submitTimeout

	return []Command{
		// 1. business
		g.cmd(CategoryFormFill, ActionType, "business-name", p.BusinessName, "business name"),
		g.cmd(CategoryFormFill, ActionSelect, "industry-select", p.Industry.ID, "industry"),
		g.cmd(CategoryFormFill, ActionType, "business-tagline", fmt.Sprintf("Trusted %s in %s", strings.ToLower(p.Industry.Name), p.Locale), "tagline"),
		next(1),
		// 2. location
		g.cmd(CategoryFormFill, ActionSelect, "locale-select", p.Locale, "locale"),
		g.cmd(CategoryFormFill, ActionType, "city-input", p.Locale, "city"),
		g.cmd(CategoryFormFill, ActionType, "address-input", fmt.Sprintf("%d Main Street", 100+g.rng.IntN(900)), "address"),
		next(2),
		// 3. contact
		g.cmd(CategoryFormFill, ActionType, "email-input", fmt.Sprintf("hello@%s.example", slug), "email"),
		g.cmd(CategoryFormFill, ActionType, "phone-input", fmt.Sprintf("555-%04d", g.rng.IntN(10000)), "phone"),
		next(3),
		// 4. template
		g.cmd(CategoryFormFill, ActionClick, "template-card-"+p.Template.ID, "", "template"),
		next(4),
		// 5. style
		g.cmd(CategoryFormFill, ActionSelect, "color-scheme", colorSchemes[g.rng.IntN(len(colorSchemes))], "color scheme"),
		g.cmd(CategoryFormFill, ActionSelect, "font-pair", fontPairs[g.rng.IntN(len(fontPairs))], "font pair"),
		next(5),
		// 6. content
		g.cmd(CategoryFormFill, ActionType, "about-input", fmt.Sprintf("%s serves %s with care.", p.BusinessName, p.Locale), "about"),
		g.cmd(CategoryFormFill, ActionType, "services-input", fmt.Sprintf("%s consultations, packages, support", p.Industry.Name), "services"),
		g.cmd(CategoryFormFill, ActionToggle, "use-real-images", images, "image source"),
		next(6),
		// 7. review
		g.cmd(CategoryFormFill, ActionClick, "review-confirm", "", "confirm review"),
		generate,
	}
}

func (g *Generator) verificationBlock(p Profile) []Command {
	cmds := []Command{
		g.cmd(CategoryVerification, ActionVerifyURL, "", "/preview", "preview url"),
		g.cmd(CategoryVerification, ActionVerifyTitle, "", p.BusinessName, "page title"),
	}
	for _, section := range p.Template.Sections {
		cmds = append(cmds, g.cmd(CategoryVerification, ActionVerifyVisible, "section-"+section, "", section+" section"))
	}
	cmds = append(cmds, g.cmd(CategoryVerification, ActionVerifyText, "hero-heading", p.BusinessName, "hero heading"))
	return cmds
}

// interactionBlock draws 4..10 interactions against the generated preview.
func (g *Generator) interactionBlock(p Profile) []Command {
	n := 4 + g.rng.IntN(7)
	cmds := make([]Command, 0, n)
	for i := 0; i < n; i++ {
		switch g.rng.IntN(5) {
		case 0:
			dir := "bottom"
			if i%2 == 1 {
				dir = "top"
			}
			cmds = append(cmds, g.cmd(CategoryInteraction, ActionScroll, "", dir, "scroll "+dir))
		case 1:
			section := p.Template.Sections[g.rng.IntN(len(p.Template.Sections))]
			cmds = append(cmds, g.cmd(CategoryInteraction, ActionClick, "nav-link-"+section, "", "jump to "+section))
		case 2:
			cmds = append(cmds, g.cmd(CategoryInteraction, ActionHover, "cta-button", "", "hover call to action"))
		case 3:
			cmds = append(cmds, g.cmd(CategoryInteraction, ActionPressKey, "", "Tab", "keyboard focus"))
		default:
			size := "375x812"
			if g.rng.IntN(2) == 0 {
				size = "1440x900"
			}
			cmds = append(cmds, g.cmd(CategoryInteraction, ActionResize, "", size, "viewport "+size))
		}
	}
	return cmds
}

func (g *Generator) qualityCheckBlock(p Profile) []Command {
	return []Command{
		g.cmd(CategoryQualityCheck, ActionSnapshot, "", "", "dom snapshot"),
		g.cmd(CategoryQualityCheck, ActionScreenshot, "", p.Template.ID, "full page screenshot"),
		g.cmd(CategoryQualityCheck, ActionConsoleErrors, "", "", "console errors"),
		g.cmd(CategoryQualityCheck, ActionNetworkErrors, "", "", "failed requests"),
		g.cmd(CategoryQualityCheck, ActionAccessibilityAudit, "", "", "accessibility audit"),
		g.cmd(CategoryQualityCheck, ActionPerformanceMetrics, "", "", "performance metrics"),
	}
}

// padding draws one filler command from the fixed padding pool.
func (g *Generator) padding() Command {
	switch g.rng.IntN(3) {
	case 0:
		return g.waitCmd(250*time.Millisecond, "padding wait")
	case 1:
		return g.cmd(CategoryQualityCheck, ActionSnapshot, "", "", "padding snapshot")
	default:
		return g.cmd(CategoryInteraction, ActionScroll, "", "bottom", "padding scroll")
	}
}
