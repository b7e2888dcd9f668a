// Package extract derives structured fields from free-text message bodies.
// Everything here is deterministic and side-effect free: no I/O, no clock,
// no external calls. The worker merges the result additively into lead data
// and feeds it to the conversation flow machine.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Fields is the partial structure extracted from one message body. Empty
// string / zero values mean "not found"; nothing here is ever a guess.
// Low-confidence signals are carried as hints, never as values.
type Fields struct {
	ServiceIntent string
	Name          string
	Nationality   string
	Email         string

	// ExpiryDate and EntryDate are exact ISO dates (2006-01-02) found next
	// to expiry/arrival context words. Date holds an exact date with no
	// recognizable context.
	ExpiryDate string
	EntryDate  string
	Date       string

	// ExpiryHint is set when the body talks about expiry in relative terms
	// ("soon", "next month"). It must never be promoted to ExpiryDate.
	ExpiryHint bool

	PartySize         int
	DiscountRequested bool
}

// IsEmpty reports whether nothing at all was extracted.
func (f Fields) IsEmpty() bool {
	return f == Fields{}
}

// intentTaxonomy maps service intents to their keyword synonyms. Order of
// intents is fixed so extraction is deterministic when multiple match; the
// first hit in this slice wins.
var intentTaxonomy = []struct {
	intent   string
	keywords []string
}{
	{"visa_overstay", []string{"overstay", "overstayed", "fine for staying"}},
	{"legal_dispute", []string{"court case", "lawsuit", "legal case", "police case"}},
	{"citizenship", []string{"citizenship", "naturalization", "naturalisation"}},
	{"family_visa", []string{"family visa", "wife visa", "husband visa", "spouse visa", "dependent visa", "visa for my family", "visa for my wife", "visa for my husband", "kids visa", "children visa"}},
	{"employment_visa", []string{"employment visa", "work visa", "work permit", "labour card", "labor card", "job visa"}},
	{"visit_visa", []string{"visit visa", "tourist visa", "visiting visa", "tourism visa"}},
	{"visa_renewal", []string{"renew", "renewal", "extend my visa", "extension"}},
}

// demonyms maps adjectival nationalities to the country name stored on the
// contact and lead. Fixed order: when a body mentions several demonyms the
// earliest occurrence wins, ties broken by position in this list.
var demonyms = []struct {
	demonym string
	country string
}{
	{"egyptian", "Egypt"},
	{"indian", "India"},
	{"pakistani", "Pakistan"},
	{"filipino", "Philippines"},
	{"filipina", "Philippines"},
	{"bangladeshi", "Bangladesh"},
	{"nepali", "Nepal"},
	{"sri lankan", "Sri Lanka"},
	{"jordanian", "Jordan"},
	{"lebanese", "Lebanon"},
	{"syrian", "Syria"},
	{"sudanese", "Sudan"},
	{"moroccan", "Morocco"},
	{"tunisian", "Tunisia"},
	{"algerian", "Algeria"},
	{"nigerian", "Nigeria"},
	{"kenyan", "Kenya"},
	{"ethiopian", "Ethiopia"},
	{"british", "United Kingdom"},
	{"american", "United States"},
	{"canadian", "Canada"},
	{"australian", "Australia"},
	{"chinese", "China"},
	{"indonesian", "Indonesia"},
	{"iranian", "Iran"},
	{"iraqi", "Iraq"},
	{"yemeni", "Yemen"},
	{"turkish", "Turkey"},
	{"russian", "Russia"},
	{"ukrainian", "Ukraine"},
	{"french", "France"},
	{"german", "Germany"},
	{"south african", "South Africa"},
}

// countries recognized after "from ..." phrasing.
var countries = map[string]string{
	"egypt": "Egypt", "india": "India", "pakistan": "Pakistan",
	"philippines": "Philippines", "the philippines": "Philippines",
	"bangladesh": "Bangladesh", "nepal": "Nepal", "sri lanka": "Sri Lanka",
	"jordan": "Jordan", "lebanon": "Lebanon", "syria": "Syria",
	"sudan": "Sudan", "morocco": "Morocco", "tunisia": "Tunisia",
	"algeria": "Algeria", "nigeria": "Nigeria", "kenya": "Kenya",
	"ethiopia": "Ethiopia", "uk": "United Kingdom", "england": "United Kingdom",
	"usa": "United States", "canada": "Canada", "australia": "Australia",
	"china": "China", "indonesia": "Indonesia", "iran": "Iran",
	"iraq": "Iraq", "yemen": "Yemen", "turkey": "Turkey",
	"russia": "Russia", "ukraine": "Ukraine", "france": "France",
	"germany": "Germany", "south africa": "South Africa",
}

var (
	nameRe  = regexp.MustCompile(`(?:[Ii]['’]?m|[Ii] am|[Mm]y name is|[Tt]his is)\s+([A-Z][A-Za-z]+(?:\s[A-Z][A-Za-z]+){0,2})`)
	fromRe  = regexp.MustCompile(`(?i)\bfrom\s+((?:the\s+)?[a-z]+(?:\s[a-z]+)?)`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	longDateRe  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	usDateRe    = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)

	countRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:people|persons?|members?|visitors?|pax|kids|children|dependents?|family members?)\b`)

	expiryContext = []string{"expire", "expiry", "expiring", "valid until", "valid till", "validity"}
	entryContext  = []string{"arrive", "arrival", "coming", "entry", "travel", "landing", "visit on"}
	hintPhrases   = []string{"soon", "shortly", "next month", "next week", "few weeks", "couple of weeks", "couple of months", "end of the month"}

	discountPhrases = []string{"discount", "cheaper", "best price", "lower price", "any offer", "special price", "reduce the price"}

	months = map[string]time.Month{
		"january": time.January, "february": time.February, "march": time.March,
		"april": time.April, "may": time.May, "june": time.June,
		"july": time.July, "august": time.August, "september": time.September,
		"october": time.October, "november": time.November, "december": time.December,
	}

	numberWords = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	}

	wordCountRe = regexp.MustCompile(`(?i)\b(one|two|three|four|five|six|seven|eight|nine|ten)\s+(?:people|persons?|members?|visitors?|kids|children|dependents?|family members?)\b`)
)

// Extract derives structured fields from a message body.
func Extract(body string) Fields {
	var f Fields
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return f
	}
	lower := strings.ToLower(trimmed)

	f.ServiceIntent = detectIntent(lower)
	f.Name = detectName(trimmed)
	f.Nationality = detectNationality(trimmed, lower)
	f.Email = emailRe.FindString(trimmed)
	f.PartySize = detectCount(trimmed, lower)
	f.DiscountRequested = containsAny(lower, discountPhrases)

	date, ok := detectExactDate(trimmed)
	if ok {
		switch {
		case containsAny(lower, expiryContext):
			f.ExpiryDate = date
		case containsAny(lower, entryContext):
			f.EntryDate = date
		default:
			f.Date = date
		}
	} else if containsAny(lower, expiryContext) && containsAny(lower, hintPhrases) {
		f.ExpiryHint = true
	}

	return f
}

func detectIntent(lower string) string {
	for _, entry := range intentTaxonomy {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.intent
			}
		}
	}
	return ""
}

func detectName(body string) string {
	match := nameRe.FindStringSubmatch(body)
	if match == nil {
		return ""
	}
	return match[1]
}

func detectNationality(body, lower string) string {
	best := ""
	bestPos := -1
	for _, d := range demonyms {
		pos, ok := indexWord(lower, d.demonym)
		if !ok {
			continue
		}
		if bestPos < 0 || pos < bestPos {
			best = d.country
			bestPos = pos
		}
	}
	if best != "" {
		return best
	}
	if match := fromRe.FindStringSubmatch(body); match != nil {
		candidate := strings.ToLower(strings.TrimSpace(match[1]))
		if country, ok := countries[candidate]; ok {
			return country
		}
		// "from the Philippines" style: retry with the article stripped
		candidate = strings.TrimPrefix(candidate, "the ")
		if country, ok := countries[candidate]; ok {
			return country
		}
		// two-word capture where only the first word is the country
		if first, _, found := strings.Cut(candidate, " "); found {
			if country, ok := countries[first]; ok {
				return country
			}
		}
	}
	return ""
}

// indexWord returns the position of the first whole-word occurrence of word,
// so "iranian" does not fire inside unrelated words.
func indexWord(haystack, word string) (int, bool) {
	idx := 0
	for {
		pos := strings.Index(haystack[idx:], word)
		if pos < 0 {
			return 0, false
		}
		start := idx + pos
		end := start + len(word)
		beforeOK := start == 0 || !isLetter(haystack[start-1])
		afterOK := end == len(haystack) || !isLetter(haystack[end])
		if beforeOK && afterOK {
			return start, true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// detectExactDate returns the first exact, unambiguous calendar date in the
// body as an ISO string. Slash dates are read day-first; a slash date that
// is valid both day-first and month-first with different results is treated
// as ambiguous and skipped.
func detectExactDate(body string) (string, bool) {
	if m := isoDateRe.FindStringSubmatch(body); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return formatDate(year, month, day)
	}
	if m := longDateRe.FindStringSubmatch(body); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		return formatDate(year, int(months[strings.ToLower(m[2])]), day)
	}
	if m := usDateRe.FindStringSubmatch(body); m != nil {
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return formatDate(year, int(months[strings.ToLower(m[1])]), day)
	}
	if m := slashDateRe.FindStringSubmatch(body); m != nil {
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if first <= 12 && second <= 12 && first != second {
			return "", false // ambiguous between day-first and month-first
		}
		return formatDate(year, second, first)
	}
	return "", false
}

func formatDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// reject overflows like February 30 that time.Date silently normalizes
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func detectCount(body, lower string) int {
	if m := countRe.FindStringSubmatch(body); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := wordCountRe.FindStringSubmatch(lower); m != nil {
		return numberWords[strings.ToLower(m[1])]
	}
	return 0
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
