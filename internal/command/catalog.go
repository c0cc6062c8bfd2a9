package command

// Industry is one business vertical the website generator can build.
type Industry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Template is one site layout offered by the intake wizard.
type Template struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Sections []string `json:"sections"`
}

// Industries is the full industry pool.
var Industries = []Industry{
	{ID: "bakery", Name: "Bakery"},
	{ID: "law-firm", Name: "Law Firm"},
	{ID: "dental-clinic", Name: "Dental Clinic"},
	{ID: "yoga-studio", Name: "Yoga Studio"},
	{ID: "auto-repair", Name: "Auto Repair"},
	{ID: "coffee-shop", Name: "Coffee Shop"},
	{ID: "real-estate", Name: "Real Estate"},
	{ID: "landscaping", Name: "Landscaping"},
	{ID: "photography", Name: "Photography"},
	{ID: "fitness-gym", Name: "Fitness Gym"},
	{ID: "veterinary", Name: "Veterinary Clinic"},
	{ID: "accounting", Name: "Accounting"},
}

// Templates is the full template pool.
var Templates = []Template{
	{ID: "modern-minimal", Name: "Modern Minimal", Sections: []string{"hero", "about", "services", "contact"}},
	{ID: "bold-showcase", Name: "Bold Showcase", Sections: []string{"hero", "gallery", "services", "testimonials", "contact"}},
	{ID: "classic-business", Name: "Classic Business", Sections: []string{"hero", "about", "services", "team", "contact", "footer"}},
	{ID: "local-storefront", Name: "Local Storefront", Sections: []string{"hero", "menu", "hours", "location", "contact"}},
	{ID: "portfolio-grid", Name: "Portfolio Grid", Sections: []string{"hero", "gallery", "about", "contact"}},
	{ID: "service-pro", Name: "Service Pro", Sections: []string{"hero", "services", "pricing", "faq", "testimonials", "team", "contact"}},
}

var namePrefixes = []string{"The", "Urban", "Golden", "Blue Ridge", "Evergreen", "Summit", "Little", "Modern"}

// Locales doubles as the location step's city list and the business-name locale token pool.
var Locales = []string{"Austin", "Brooklyn", "Portland", "Denver", "Savannah", "Tacoma", "Boulder", "Asheville"}

var nameSuffixes = []string{"Co.", "Studio", "Collective", "& Sons", "Group", "Works", "House"}

var colorSchemes = []string{"ocean", "sunset", "forest", "monochrome", "pastel"}

var fontPairs = []string{"inter-merriweather", "poppins-lora", "roboto-playfair"}

// FindIndustry looks up an industry by id.
func FindIndustry(id string) (Industry, bool) {
	for _, i := range Industries {
		if i.ID == id {
			return i, true
		}
	}
	return Industry{}, false
}

// FindTemplate looks up a template by id.
func FindTemplate(id string) (Template, bool) {
	for _, t := range Templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
