//Package languages is the catalogue of languages text can be translated to.
package languages

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

//DefaultTarget is the language translations go to when none is chosen.
const DefaultTarget = "es"

//Unknown is the name reported for a language that is not in the catalogue.
const Unknown = "Unknown"

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var supportedCodes = []string{
	"af", "sq", "am", "ar", "hy", "as", "ay", "az", "bm", "eu", "be", "bn",
	"bho", "bs", "bg", "ca", "ceb", "ny", "zh-CN", "zh-TW", "co", "hr", "cs",
	"da", "dv", "nl", "en", "eo", "et", "ee", "tl", "fi", "fr", "fy", "gl",
	"ka", "de", "el", "gn", "gu", "ht", "ha", "haw", "he", "hi", "hmn", "hu",
	"is", "ig", "ilo", "id", "ga", "it", "ja", "jv", "kn", "kk", "km", "rw",
	"ko", "kri", "ku", "ky", "lo", "la", "lv", "ln", "lt", "lg", "lb", "mk",
	"mai", "mg", "ms", "ml", "mt", "mi", "mr", "mn", "my", "ne", "no", "or",
	"om", "ps", "fa", "pl", "pt", "pa", "qu", "ro", "ru", "sm", "sa", "gd",
	"sr", "st", "sn", "sd", "si", "sk", "sl", "so", "es", "su", "sw", "sv",
	"tg", "ta", "tt", "te", "th", "ti", "ts", "tr", "tk", "ak", "uk", "ur",
	"ug", "uz", "vi", "cy", "xh", "yi", "yo", "zu",
}

//popular languages are listed first, in this order.
var popular = []string{"en", "es", "fr", "de", "zh-CN", "ja", "ar", "hi", "pt", "ru"}

var nameOverrides = map[string]string{
	"zh-CN": "chinese (simplified)",
	"zh-TW": "chinese (traditional)",
	"tl":    "filipino",
	"ny":    "chichewa",
}

var aliases = map[string]string{
	"zh":      "zh-CN",
	"zh-hans": "zh-CN",
	"zh-hant": "zh-TW",
	"iw":      "he",
	"jw":      "jv",
	"nb":      "no",
	"fil":     "tl",
}

type Catalogue struct {
	byCode map[string]Language
	byName map[string]Language
	sorted []Language
}

var defaultCatalogue = New(supportedCodes)

//Default returns the catalogue of every supported language.
func Default() *Catalogue {
	return defaultCatalogue
}

func New(codes []string) *Catalogue {
	c := &Catalogue{
		byCode: make(map[string]Language, len(codes)),
		byName: make(map[string]Language, len(codes)),
	}
	namer := display.English.Languages()
	for _, code := range codes {
		l := Language{Code: code, Name: displayName(namer, code)}
		c.byCode[strings.ToLower(code)] = l
		c.byName[l.Name] = l
	}

	rank := make(map[string]int, len(popular))
	for i, code := range popular {
		rank[code] = i
	}
	for _, l := range c.byCode {
		c.sorted = append(c.sorted, l)
	}
	sort.Slice(c.sorted, func(i, j int) bool {
		ri, iPopular := rank[c.sorted[i].Code]
		rj, jPopular := rank[c.sorted[j].Code]
		switch {
		case iPopular && jPopular:
			return ri < rj
		case iPopular != jPopular:
			return iPopular
		}
		return c.sorted[i].Name < c.sorted[j].Name
	})
	return c
}

func displayName(namer display.Namer, code string) string {
	if name, ok := nameOverrides[code]; ok {
		return name
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := namer.Name(tag)
	if name == "" {
		return code
	}
	return strings.ToLower(name)
}

//Lookup finds a language by code or by name, case-insensitively. Region and
//script variants fall back to their base language.
func (c *Catalogue) Lookup(s string) (Language, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return Language{}, false
	}
	if l, ok := c.byCode[key]; ok {
		return l, true
	}
	if l, ok := c.byName[key]; ok {
		return l, true
	}
	if code, ok := aliases[key]; ok {
		return c.Lookup(code)
	}
	tag, err := language.Parse(key)
	if err != nil {
		return Language{}, false
	}
	base, _ := tag.Base()
	if b := base.String(); b != key {
		if l, ok := c.byCode[b]; ok {
			return l, true
		}
		if code, ok := aliases[b]; ok {
			return c.Lookup(code)
		}
	}
	return Language{}, false
}

//Name returns the display name of code, or Unknown.
func (c *Catalogue) Name(code string) string {
	if l, ok := c.Lookup(code); ok {
		return l.Name
	}
	return Unknown
}

//Sorted returns every language, popular ones first and the rest by name.
func (c *Catalogue) Sorted() []Language {
	out := make([]Language, len(c.sorted))
	copy(out, c.sorted)
	return out
}
