package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// countryEntry maps a canonical country name to the variants seen across the
// listing sites: English, French, and Arabic spellings.
type countryEntry struct {
	Canonical string
	Variants  []string
}

// countryTable is ordered: more specific names come before names they
// contain ("South Sudan" before "Sudan", "Nigeria" before "Niger") so the
// first-match-wins scan never picks a prefix of the real country.
var countryTable = []countryEntry{
	{"South Sudan", []string{"south sudan", "soudan du sud", "جنوب السودان"}},
	{"Sudan", []string{"sudan", "soudan", "السودان"}},
	{"Nigeria", []string{"nigeria", "نيجيريا"}},
	{"Niger", []string{"niger", "النيجر"}},
	{"Equatorial Guinea", []string{"equatorial guinea", "guinee equatoriale", "غينيا الاستوائية"}},
	{"Guinea-Bissau", []string{"guinea-bissau", "guinee-bissau", "غينيا بيساو"}},
	{"Guinea", []string{"guinea", "guinee", "غينيا"}},
	{"DR Congo", []string{"democratic republic of the congo", "dr congo", "drc", "republique democratique du congo", "جمهورية الكونغو الديمقراطية"}},
	{"Congo", []string{"congo", "الكونغو"}},
	{"Ghana", []string{"ghana", "غانا"}},
	{"Kenya", []string{"kenya", "كينيا"}},
	{"Ethiopia", []string{"ethiopia", "ethiopie", "إثيوبيا"}},
	{"Tanzania", []string{"tanzania", "tanzanie", "تنزانيا"}},
	{"Uganda", []string{"uganda", "ouganda", "أوغندا"}},
	{"Rwanda", []string{"rwanda", "رواندا"}},
	{"Senegal", []string{"senegal", "السنغال"}},
	{"Cote d'Ivoire", []string{"cote d'ivoire", "ivory coast", "كوت ديفوار", "ساحل العاج"}},
	{"Burkina Faso", []string{"burkina faso", "بوركينا فاسو"}},
	{"Somalia", []string{"somalia", "somalie", "الصومال"}},
	{"Mali", []string{"mali", "مالي"}},
	{"Cameroon", []string{"cameroon", "cameroun", "الكاميرون"}},
	{"Benin", []string{"benin", "بنين"}},
	{"Togo", []string{"togo", "توغو"}},
	{"Sierra Leone", []string{"sierra leone", "سيراليون"}},
	{"Liberia", []string{"liberia", "ليبيريا"}},
	{"Gambia", []string{"gambia", "gambie", "غامبيا"}},
	{"Zambia", []string{"zambia", "zambie", "زامبيا"}},
	{"Zimbabwe", []string{"zimbabwe", "زيمبابوي"}},
	{"Malawi", []string{"malawi", "ملاوي"}},
	{"Mozambique", []string{"mozambique", "موزمبيق"}},
	{"South Africa", []string{"south africa", "afrique du sud", "جنوب أفريقيا"}},
	{"Botswana", []string{"botswana", "بوتسوانا"}},
	{"Namibia", []string{"namibia", "namibie", "ناميبيا"}},
	{"Egypt", []string{"egypt", "egypte", "مصر"}},
	{"Morocco", []string{"morocco", "maroc", "المغرب"}},
	{"Algeria", []string{"algeria", "algerie", "الجزائر"}},
	{"Tunisia", []string{"tunisia", "tunisie", "تونس"}},
	{"Libya", []string{"libya", "libye", "ليبيا"}},
	{"Mauritania", []string{"mauritania", "mauritanie", "موريتانيا"}},
	{"Chad", []string{"chad", "tchad", "تشاد"}},
	{"Djibouti", []string{"djibouti", "جيبوتي"}},
	{"Madagascar", []string{"madagascar", "مدغشقر"}},
	{"Jordan", []string{"jordan", "jordanie", "الأردن"}},
	{"Lebanon", []string{"lebanon", "liban", "لبنان"}},
	{"Iraq", []string{"iraq", "irak", "العراق"}},
	{"Yemen", []string{"yemen", "اليمن"}},
	{"Saudi Arabia", []string{"saudi arabia", "arabie saoudite", "السعودية"}},
	{"United Arab Emirates", []string{"united arab emirates", "emirats arabes unis", "الإمارات"}},
	{"Afghanistan", []string{"afghanistan", "أفغانستان"}},
	{"Pakistan", []string{"pakistan", "باكستان"}},
	{"Bangladesh", []string{"bangladesh", "بنغلاديش"}},
	{"India", []string{"india", "inde", "الهند"}},
	{"Indonesia", []string{"indonesia", "indonesie", "إندونيسيا"}},
	{"Philippines", []string{"philippines", "الفلبين"}},
	{"Haiti", []string{"haiti", "هايتي"}},
}

// foldTransformer strips combining marks after NFD decomposition, so
// "Sénégal" and "Côte d'Ivoire" match their unaccented variants.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and removes diacritics. Arabic variants carry no case and
// survive the transform unchanged apart from harakat, which sites rarely use.
func fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// DetectCountry scans the given text fields in order and returns the
// canonical name of the first country variant found, case-insensitively and
// accent-insensitively. Earlier fields outrank later ones, so an explicit
// country column beats a mention buried in the description. No match returns
// the empty string.
func DetectCountry(fields ...string) string {
	for _, f := range fields {
		folded := fold(f)
		if strings.TrimSpace(folded) == "" {
			continue
		}
		for _, entry := range countryTable {
			for _, v := range entry.Variants {
				if strings.Contains(folded, fold(v)) {
					return entry.Canonical
				}
			}
		}
	}
	return ""
}
