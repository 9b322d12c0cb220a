package region

import (
	"strings"
	"unicode"
)

// DefaultRegion is returned for empty input.
const DefaultRegion = "Lima"

type Region struct {
	Code string `json:"codigo"`
	Name string `json:"nombre"`
}

// Regions is the static departamento table, ordered by code.
var Regions = []Region{
	{"01", "Amazonas"},
	{"02", "Áncash"},
	{"03", "Apurímac"},
	{"04", "Arequipa"},
	{"05", "Ayacucho"},
	{"06", "Cajamarca"},
	{"07", "Callao"},
	{"08", "Cusco"},
	{"09", "Huancavelica"},
	{"10", "Huánuco"},
	{"11", "Ica"},
	{"12", "Junín"},
	{"13", "La Libertad"},
	{"14", "Lambayeque"},
	{"15", "Lima"},
	{"16", "Loreto"},
	{"17", "Madre de Dios"},
	{"18", "Moquegua"},
	{"19", "Pasco"},
	{"20", "Piura"},
	{"21", "Puno"},
	{"22", "San Martín"},
	{"23", "Tacna"},
	{"24", "Tumbes"},
	{"25", "Ucayali"},
}

// ISO 3166-2:PE subdivision codes as sent by some storefronts.
var abbreviations = map[string]string{
	"AMA": "Amazonas",
	"ANC": "Áncash",
	"APU": "Apurímac",
	"ARE": "Arequipa",
	"AYA": "Ayacucho",
	"CAJ": "Cajamarca",
	"CAL": "Callao",
	"CUS": "Cusco",
	"HUV": "Huancavelica",
	"HUC": "Huánuco",
	"ICA": "Ica",
	"JUN": "Junín",
	"LAL": "La Libertad",
	"LAM": "Lambayeque",
	"LIM": "Lima",
	"LMA": "Lima",
	"LOR": "Loreto",
	"MDD": "Madre de Dios",
	"MOQ": "Moquegua",
	"PAS": "Pasco",
	"PIU": "Piura",
	"PUN": "Puno",
	"SAM": "San Martín",
	"TAC": "Tacna",
	"TUM": "Tumbes",
	"UCA": "Ucayali",
}

var cityToRegion = map[string]string{
	"lima":             "Lima",
	"callao":           "Callao",
	"arequipa":         "Arequipa",
	"cusco":            "Cusco",
	"cuzco":            "Cusco",
	"trujillo":         "La Libertad",
	"chiclayo":         "Lambayeque",
	"piura":            "Piura",
	"iquitos":          "Loreto",
	"huancayo":         "Junín",
	"pucallpa":         "Ucayali",
	"tacna":            "Tacna",
	"ica":              "Ica",
	"huánuco":          "Huánuco",
	"huanuco":          "Huánuco",
	"ayacucho":         "Ayacucho",
	"cajamarca":        "Cajamarca",
	"puno":             "Puno",
	"tumbes":           "Tumbes",
	"moquegua":         "Moquegua",
	"abancay":          "Apurímac",
	"huaraz":           "Áncash",
	"chachapoyas":      "Amazonas",
	"huancavelica":     "Huancavelica",
	"cerro de pasco":   "Pasco",
	"pasco":            "Pasco",
	"moyobamba":        "San Martín",
	"tarapoto":         "San Martín",
	"puerto maldonado": "Madre de Dios",
}

type Resolver struct {
	byCode      map[string]string
	defaultName string
}

func NewResolver() *Resolver {
	byCode := make(map[string]string, len(Regions))
	for _, r := range Regions {
		byCode[r.Code] = r.Name
	}
	return &Resolver{byCode: byCode, defaultName: DefaultRegion}
}

// Resolve maps a region code to its display name. Names pass through
// unchanged, unknown codes come back as given and empty input resolves to
// DefaultRegion.
func (r *Resolver) Resolve(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return r.defaultName
	}
	if name, ok := abbreviations[trimmed]; ok {
		return name
	}
	if hasLetter(trimmed) {
		return code
	}
	if name, ok := r.byCode[zeroPad(trimmed)]; ok {
		return name
	}
	return code
}

// RegionForCity guesses the region from a city name.
func RegionForCity(city string) (string, bool) {
	name, ok := cityToRegion[strings.ToLower(strings.TrimSpace(city))]
	return name, ok
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func zeroPad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
