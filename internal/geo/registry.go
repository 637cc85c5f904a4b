// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package geo

import "github.com/cartelera-project/cartelera/internal/parse"

// provinceToRegion maps every Spanish province (plus the autonomous
// cities) to its autonomous community. Keys are folded; values are
// display names.
var provinceToRegion = map[string]string{
	"almeria":                "Andalucía",
	"cadiz":                  "Andalucía",
	"cordoba":                "Andalucía",
	"granada":                "Andalucía",
	"huelva":                 "Andalucía",
	"jaen":                   "Andalucía",
	"malaga":                 "Andalucía",
	"sevilla":                "Andalucía",
	"huesca":                 "Aragón",
	"teruel":                 "Aragón",
	"zaragoza":               "Aragón",
	"asturias":               "Principado de Asturias",
	"illes balears":          "Illes Balears",
	"las palmas":             "Canarias",
	"santa cruz de tenerife": "Canarias",
	"cantabria":              "Cantabria",
	"albacete":               "Castilla-La Mancha",
	"ciudad real":            "Castilla-La Mancha",
	"cuenca":                 "Castilla-La Mancha",
	"guadalajara":            "Castilla-La Mancha",
	"toledo":                 "Castilla-La Mancha",
	"avila":                  "Castilla y León",
	"burgos":                 "Castilla y León",
	"leon":                   "Castilla y León",
	"palencia":               "Castilla y León",
	"salamanca":              "Castilla y León",
	"segovia":                "Castilla y León",
	"soria":                  "Castilla y León",
	"valladolid":             "Castilla y León",
	"zamora":                 "Castilla y León",
	"barcelona":              "Cataluña",
	"girona":                 "Cataluña",
	"lleida":                 "Cataluña",
	"tarragona":              "Cataluña",
	"alicante":               "Comunitat Valenciana",
	"castellon":              "Comunitat Valenciana",
	"valencia":               "Comunitat Valenciana",
	"badajoz":                "Extremadura",
	"caceres":                "Extremadura",
	"a coruna":               "Galicia",
	"lugo":                   "Galicia",
	"ourense":                "Galicia",
	"pontevedra":             "Galicia",
	"madrid":                 "Comunidad de Madrid",
	"murcia":                 "Región de Murcia",
	"navarra":                "Comunidad Foral de Navarra",
	"alava":                  "País Vasco",
	"bizkaia":                "País Vasco",
	"gipuzkoa":               "País Vasco",
	"la rioja":               "La Rioja",
	"ceuta":                  "Ceuta",
	"melilla":                "Melilla",
}

// cityToProvince covers provincial capitals and the larger
// municipalities the catalog's sources publish for. Keys folded,
// values display province names matching provinceToRegion.
var cityToProvince = map[string]string{
	"madrid":                     "Madrid",
	"alcala de henares":          "Madrid",
	"getafe":                     "Madrid",
	"mostoles":                   "Madrid",
	"barcelona":                  "Barcelona",
	"l'hospitalet de llobregat":  "Barcelona",
	"badalona":                   "Barcelona",
	"terrassa":                   "Barcelona",
	"sabadell":                   "Barcelona",
	"valencia":                   "Valencia",
	"alicante":                   "Alicante",
	"elche":                      "Alicante",
	"castellon de la plana":      "Castellón",
	"sevilla":                    "Sevilla",
	"malaga":                     "Málaga",
	"marbella":                   "Málaga",
	"granada":                    "Granada",
	"cordoba":                    "Córdoba",
	"cadiz":                      "Cádiz",
	"jerez de la frontera":       "Cádiz",
	"huelva":                     "Huelva",
	"jaen":                       "Jaén",
	"almeria":                    "Almería",
	"bilbao":                     "Bizkaia",
	"donostia":                   "Gipuzkoa",
	"san sebastian":              "Gipuzkoa",
	"vitoria-gasteiz":            "Álava",
	"vitoria":                    "Álava",
	"pamplona":                   "Navarra",
	"logrono":                    "La Rioja",
	"zaragoza":                   "Zaragoza",
	"huesca":                     "Huesca",
	"teruel":                     "Teruel",
	"vigo":                       "Pontevedra",
	"pontevedra":                 "Pontevedra",
	"a coruna":                   "A Coruña",
	"santiago de compostela":     "A Coruña",
	"lugo":                       "Lugo",
	"ourense":                    "Ourense",
	"oviedo":                     "Asturias",
	"gijon":                      "Asturias",
	"santander":                  "Cantabria",
	"murcia":                     "Murcia",
	"cartagena":                  "Murcia",
	"valladolid":                 "Valladolid",
	"salamanca":                  "Salamanca",
	"burgos":                     "Burgos",
	"leon":                       "León",
	"zamora":                     "Zamora",
	"palencia":                   "Palencia",
	"segovia":                    "Segovia",
	"soria":                      "Soria",
	"avila":                      "Ávila",
	"toledo":                     "Toledo",
	"albacete":                   "Albacete",
	"ciudad real":                "Ciudad Real",
	"cuenca":                     "Cuenca",
	"guadalajara":                "Guadalajara",
	"badajoz":                    "Badajoz",
	"merida":                     "Badajoz",
	"caceres":                    "Cáceres",
	"tarragona":                  "Tarragona",
	"girona":                     "Girona",
	"lleida":                     "Lleida",
	"palma":                      "Illes Balears",
	"las palmas de gran canaria": "Las Palmas",
	"santa cruz de tenerife":     "Santa Cruz de Tenerife",
	"ceuta":                      "Ceuta",
	"melilla":                    "Melilla",
}

// RegionForProvince returns the autonomous community for a province
// name, tolerant of case and diacritics.
func RegionForProvince(province string) (string, bool) {
	region, ok := provinceToRegion[parse.Fold(province)]
	return region, ok
}

// ProvinceForCity returns the province of a known municipality.
func ProvinceForCity(city string) (string, bool) {
	province, ok := cityToProvince[parse.Fold(city)]
	return province, ok
}

// RegionForCity resolves a municipality to its autonomous community.
func RegionForCity(city string) (string, bool) {
	province, ok := ProvinceForCity(city)
	if !ok {
		return "", false
	}
	return RegionForProvince(province)
}
