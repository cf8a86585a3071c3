package language

import "strings"

type entry struct {
	code    string   // ISO 639-1, the form whisper reports
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "English", []string{"english"}},
	{"es", "Spanish", []string{"spanish"}},
	{"fr", "French", []string{"french"}},
	{"de", "German", []string{"german"}},
	{"it", "Italian", []string{"italian"}},
	{"pt", "Portuguese", []string{"portuguese"}},
	{"ja", "Japanese", []string{"japanese"}},
	{"ko", "Korean", []string{"korean"}},
	{"zh", "Chinese", []string{"chinese"}},
	{"ru", "Russian", []string{"russian"}},
	{"ar", "Arabic", []string{"arabic"}},
	{"hi", "Hindi", []string{"hindi"}},
	{"nl", "Dutch", []string{"dutch"}},
	{"pl", "Polish", []string{"polish"}},
	{"sv", "Swedish", []string{"swedish"}},
	{"da", "Danish", []string{"danish"}},
	{"no", "Norwegian", []string{"norwegian"}},
	{"fi", "Finnish", []string{"finnish"}},
	{"tr", "Turkish", []string{"turkish"}},
	{"uk", "Ukrainian", []string{"ukrainian"}},
	{"cs", "Czech", []string{"czech"}},
	{"el", "Greek", []string{"greek"}},
	{"he", "Hebrew", []string{"hebrew"}},
	{"th", "Thai", []string{"thai"}},
	{"vi", "Vietnamese", []string{"vietnamese"}},
	{"id", "Indonesian", []string{"indonesian"}},
}

var (
	byCode map[string]*entry
	byWord map[string]*entry
)

func init() {
	byCode = make(map[string]*entry, len(languages))
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode[e.code] = e
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(value string) *entry {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return nil
	}
	if e, ok := byCode[value]; ok {
		return e
	}
	if e, ok := byWord[value]; ok {
		return e
	}
	return nil
}

// DisplayName returns a human-readable language name for a recognized code or
// word. Returns "Unknown" for empty input, or the uppercased code for
// unrecognized input.
func DisplayName(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Unknown"
	}
	if e := lookup(value); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(value))
}

// Normalize converts a language code or full word into the ISO 639-1 code
// whisper expects. Unknown 2-letter codes pass through; anything else
// unrecognized returns empty.
func Normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if e := lookup(value); e != nil {
		return e.code
	}
	if len(value) == 2 {
		return value
	}
	return ""
}
