// Package rules holds the fixed game configuration tables and the derived
// stat calculator. The tables are data, not an authoring surface.
package rules

// Clan determines the base HP pool before refinement.
type Clan struct {
	ID     string
	Name   string
	BaseHP int
}

// DefaultBaseHP applies when a character has no (or an unknown) clan.
const DefaultBaseHP = 5

var Clans = map[string]Clan{
	"nuvem_branca": {ID: "nuvem_branca", Name: "Seita da Nuvem Branca", BaseHP: 5},
	"rocha_negra":  {ID: "rocha_negra", Name: "Clã da Rocha Negra", BaseHP: 7},
	"lotus_jade":   {ID: "lotus_jade", Name: "Palácio do Lótus de Jade", BaseHP: 5},
	"punho_ferro":  {ID: "punho_ferro", Name: "Escola do Punho de Ferro", BaseHP: 8},
	"vento_sul":    {ID: "vento_sul", Name: "Vagantes do Vento Sul", BaseHP: 6},
}

// InnateBody is a birth constitution granting passive combat bonuses.
type InnateBody struct {
	ID                        string
	Name                      string
	BaseHPBonus               int
	RefinementMultiplierBonus float64
}

var InnateBodies = map[string]InnateBody{
	"nenhum":          {ID: "nenhum", Name: "Nenhum"},
	"corpo_jade":      {ID: "corpo_jade", Name: "Corpo de Jade", BaseHPBonus: 2},
	"osso_dragao":     {ID: "osso_dragao", Name: "Osso de Dragão", RefinementMultiplierBonus: 0.2},
	"veias_celestiais": {ID: "veias_celestiais", Name: "Veias Celestiais", BaseHPBonus: 1, RefinementMultiplierBonus: 0.1},
}

// RefinementLevel scales the HP pool as the body is tempered.
type RefinementLevel struct {
	ID         int
	Name       string
	Multiplier float64
}

var BodyRefinementLevels = []RefinementLevel{
	{0, "Corpo Mortal", 1.0},
	{1, "Pele de Bronze", 1.2},
	{2, "Tendões de Aço", 1.5},
	{3, "Ossos de Ferro", 1.8},
	{4, "Medula Purificada", 2.2},
	{5, "Corpo Imortal", 2.6},
}

// CultivationStage scales the Chi pool.
type CultivationStage struct {
	ID         int
	Name       string
	Multiplier float64
}

var CultivationStages = []CultivationStage{
	{0, "Condensação de Chi", 1.0},
	{1, "Fundação Estabelecida", 1.5},
	{2, "Núcleo Dourado", 2.0},
	{3, "Alma Nascente", 2.5},
	{4, "Transcendência", 3.0},
}

// MasteryLevel grants a flat Chi bonus on top of cultivation.
type MasteryLevel struct {
	ID    int
	Name  string
	Bonus int
}

var MasteryLevels = []MasteryLevel{
	{0, "Iniciado", 0},
	{1, "Discípulo", 2},
	{2, "Adepto", 4},
	{3, "Mestre", 7},
	{4, "Grão-Mestre", 10},
}

// ArmorType defines the armor slot options. BaseAC 0 means the armor sets
// no base and AC stays 10 + agility; heavier armor sets a higher base and
// subtracts from the agility term via AgilityPenalty.
type ArmorType struct {
	ID             string
	Name           string
	BaseAC         int
	AgilityPenalty int
}

var ArmorTypes = map[string]ArmorType{
	"none":   {ID: "none", Name: "Nenhuma"},
	"medium": {ID: "medium", Name: "Média", BaseAC: 14, AgilityPenalty: -2},
	"heavy":  {ID: "heavy", Name: "Pesada", BaseAC: 16, AgilityPenalty: -4},
}

// WeaponCategory ids. "pesada" triples dice on a critical hit, every other
// category doubles.
const (
	CategoryLight  = "leve"
	CategoryMedium = "media"
	CategoryHeavy  = "pesada"
	CategoryReach  = "alcance"
	CategoryExotic = "exotica"
)

// WeaponDef is one entry of the fixed weapon list.
type WeaponDef struct {
	ID                string
	Name              string
	Category          string
	Damage            string
	AllowedAttributes []string
}

var Weapons = []WeaponDef{
	{"jian", "Jian (Espada Reta)", CategoryLight, "1d6", []string{"agility"}},
	{"dao_curto", "Dao Curto", CategoryLight, "1d6", []string{"agility"}},
	{"fio_aco", "Fio de Aço", CategoryLight, "1d4", []string{"agility", "comprehension"}},
	{"punhais_duplos", "Punhais Duplos", CategoryLight, "1d4", []string{"agility"}},
	{"ganchos_tigre", "Ganchos de Tigre", CategoryLight, "1d6", []string{"agility"}},
	{"dao", "Dao (Sabre Chinês)", CategoryMedium, "1d8", []string{"vigor", "agility"}},
	{"bastao_curto", "Bastão Curto", CategoryMedium, "1d6", []string{"vigor", "agility"}},
	{"tonfa", "Tonfa", CategoryMedium, "1d6", []string{"vigor", "agility"}},
	{"guandao", "Guandao", CategoryHeavy, "1d12", []string{"vigor"}},
	{"qiang_pesada", "Qiang Pesada", CategoryHeavy, "1d10", []string{"vigor"}},
	{"martelo_guerra", "Martelo de Guerra Oriental", CategoryHeavy, "2d6", []string{"vigor"}},
	{"mangual", "Mangual Oriental", CategoryHeavy, "1d10", []string{"vigor"}},
	{"qiang", "Qiang (Lança Clássica)", CategoryReach, "1d8", []string{"vigor", "agility"}},
	{"bastao_longo", "Bastão Longo", CategoryReach, "1d8", []string{"vigor", "agility"}},
	{"cajado_cerimonial", "Cajado Cerimonial", CategoryReach, "1d6", []string{"discipline", "vigor"}},
	{"leque_ferro", "Leque de Ferro", CategoryExotic, "1d4", []string{"agility", "presence"}},
	{"corrente_secoes", "Corrente de Seções Múltiplas", CategoryExotic, "1d8", []string{"agility"}},
	{"kusarigama", "Kusarigama", CategoryExotic, "1d8", []string{"agility"}},
}

// WeaponByID looks up a weapon definition, nil when unknown.
func WeaponByID(id string) *WeaponDef {
	for i := range Weapons {
		if Weapons[i].ID == id {
			return &Weapons[i]
		}
	}
	return nil
}

// refinementByID returns the tier entry, clamped to table bounds.
func refinementByID(id int) RefinementLevel {
	return clampTier(BodyRefinementLevels, id)
}

func cultivationByID(id int) CultivationStage {
	return clampTier(CultivationStages, id)
}

func masteryByID(id int) MasteryLevel {
	return clampTier(MasteryLevels, id)
}

func clampTier[T any](table []T, id int) T {
	if id < 0 {
		id = 0
	}
	if id >= len(table) {
		id = len(table) - 1
	}
	return table[id]
}

// MaxRefinementLevel is the highest valid body refinement tier index.
func MaxRefinementLevel() int { return len(BodyRefinementLevels) - 1 }

// MaxCultivationStage is the highest valid cultivation tier index.
func MaxCultivationStage() int { return len(CultivationStages) - 1 }

// MaxMasteryLevel is the highest valid mastery tier index.
func MaxMasteryLevel() int { return len(MasteryLevels) - 1 }
