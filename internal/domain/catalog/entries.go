package catalog

// defaultEntries is the builtin ingredient registry. Updated out-of-band;
// never mutated at request-handling time.
var defaultEntries = []Entry{
	// System supports: fixed-dose composite blends.
	{Name: "Adrenal Support", Class: ClassSystemSupport, DoseMg: 420, Description: "Adaptogenic blend for HPA-axis and stress resilience"},
	{Name: "Cardio Support", Class: ClassSystemSupport, DoseMg: 450, Description: "Cardiovascular blend supporting healthy lipids and circulation"},
	{Name: "Cognitive Support", Class: ClassSystemSupport, DoseMg: 400, Description: "Nootropic blend for focus and memory"},
	{Name: "Digestive Support", Class: ClassSystemSupport, DoseMg: 380, Description: "Enzyme and botanical blend for gut comfort"},
	{Name: "Immune Support", Class: ClassSystemSupport, DoseMg: 440, Description: "Seasonal immune defense blend"},
	{Name: "Joint Support", Class: ClassSystemSupport, DoseMg: 500, Description: "Collagen-cofactor blend for joint mobility"},
	{Name: "Liver Support", Class: ClassSystemSupport, DoseMg: 420, Description: "Hepatic detoxification blend"},
	{Name: "Sleep Support", Class: ClassSystemSupport, DoseMg: 360, Description: "Non-habit-forming sleep onset blend"},
	{Name: "Stress Support", Class: ClassSystemSupport, DoseMg: 400, Description: "Daytime calm blend without drowsiness"},
	{Name: "Thyroid Support", Class: ClassSystemSupport, DoseMg: 350, Description: "Iodine and mineral blend for thyroid function"},
	{Name: "C Boost", Class: ClassSystemSupport, DoseMg: 320, Description: "Buffered vitamin C with citrus bioflavonoids"},
	{Name: "Algae Omega", Class: ClassSystemSupport, DoseMg: 500, Description: "Plant-sourced EPA/DHA omega-3 concentrate"},

	// Individual ingredients: fixed dose.
	{Name: "Zinc Picolinate", Class: ClassIndividual, DoseMg: 30, Description: "Highly absorbable zinc for immune and skin health"},
	{Name: "Selenium", Class: ClassIndividual, DoseMg: 55, Description: "Selenomethionine for antioxidant enzyme support"},
	{Name: "Vitamin D3", Class: ClassIndividual, DoseMg: 25, Description: "Cholecalciferol for bone and immune health"},
	{Name: "Methylfolate", Class: ClassIndividual, DoseMg: 15, Description: "Bioactive folate for methylation support"},
	{Name: "Phosphatidylcholine", Class: ClassIndividual, DoseMg: 420, Description: "Phospholipid for cell membrane and liver support"},
	{Name: "Lutein", Class: ClassIndividual, DoseMg: 20, Description: "Carotenoid for macular health"},
	{Name: "Astaxanthin", Class: ClassIndividual, DoseMg: 12, Description: "Marine carotenoid antioxidant"},

	// Individual ingredients: dose range.
	{Name: "Ashwagandha", Class: ClassIndividual, DoseRangeMinMg: 250, DoseRangeMaxMg: 600, Description: "Adaptogen for stress and cortisol balance"},
	{Name: "Hawthorn Berry", Class: ClassIndividual, DoseRangeMinMg: 160, DoseRangeMaxMg: 900, Description: "Botanical for cardiovascular tone"},
	{Name: "Rhodiola", Class: ClassIndividual, DoseRangeMinMg: 100, DoseRangeMaxMg: 400, Description: "Adaptogen for fatigue and endurance"},
	{Name: "Curcumin", Class: ClassIndividual, DoseRangeMinMg: 250, DoseRangeMaxMg: 1000, Description: "Turmeric-derived anti-inflammatory compound"},
	{Name: "Berberine", Class: ClassIndividual, DoseRangeMinMg: 300, DoseRangeMaxMg: 500, Description: "Botanical alkaloid for metabolic health"},
	{Name: "Quercetin", Class: ClassIndividual, DoseRangeMinMg: 250, DoseRangeMaxMg: 500, Description: "Flavonoid for histamine and immune balance"},
	{Name: "Resveratrol", Class: ClassIndividual, DoseRangeMinMg: 100, DoseRangeMaxMg: 500, Description: "Polyphenol for healthy aging"},
	{Name: "Magnesium Glycinate", Class: ClassIndividual, DoseRangeMinMg: 100, DoseRangeMaxMg: 400, Description: "Gentle magnesium for muscle and sleep"},
	{Name: "L-Theanine", Class: ClassIndividual, DoseRangeMinMg: 100, DoseRangeMaxMg: 400, Description: "Amino acid for calm focus"},
	{Name: "CoQ10", Class: ClassIndividual, DoseRangeMinMg: 100, DoseRangeMaxMg: 300, Description: "Ubiquinone for mitochondrial energy"},
	{Name: "Milk Thistle", Class: ClassIndividual, DoseRangeMinMg: 150, DoseRangeMaxMg: 600, Description: "Silymarin source for liver protection"},
	{Name: "Elderberry", Class: ClassIndividual, DoseRangeMinMg: 150, DoseRangeMaxMg: 600, Description: "Anthocyanin-rich immune botanical"},
	{Name: "Ginger", Class: ClassIndividual, DoseRangeMinMg: 250, DoseRangeMaxMg: 1000, Description: "Digestive and anti-nausea botanical"},
	{Name: "Bacopa", Class: ClassIndividual, DoseRangeMinMg: 300, DoseRangeMaxMg: 600, Description: "Nootropic botanical for memory"},
	{Name: "Saffron", Class: ClassIndividual, DoseRangeMinMg: 15, DoseRangeMaxMg: 30, Description: "Mood-supportive spice concentrate"},
	{Name: "Valerian", Class: ClassIndividual, DoseRangeMinMg: 300, DoseRangeMaxMg: 600, Description: "Botanical for sleep onset"},
	{Name: "Melatonin", Class: ClassIndividual, DoseRangeMinMg: 10, DoseRangeMaxMg: 50, Description: "Low-dose circadian rhythm support"},
	{Name: "NAC", Class: ClassIndividual, DoseRangeMinMg: 300, DoseRangeMaxMg: 900, Description: "N-acetylcysteine for glutathione production"},
	{Name: "Alpha Lipoic Acid", Class: ClassIndividual, DoseRangeMinMg: 100, DoseRangeMaxMg: 600, Description: "Universal antioxidant for metabolic support"},
	{Name: "Lions Mane", Class: ClassIndividual, DoseRangeMinMg: 250, DoseRangeMaxMg: 1000, Description: "Mushroom for nerve growth factor support"},
	{Name: "Reishi", Class: ClassIndividual, DoseRangeMinMg: 250, DoseRangeMaxMg: 1000, Description: "Mushroom for immune modulation"},
}

// defaultAliases maps common model and user spellings to canonical names.
// Keys are matched against the lowercase of the cleaned input string.
var defaultAliases = map[string]string{
	"cboost":               "C Boost",
	"c-boost":              "C Boost",
	"vitamin c boost":      "C Boost",
	"omega 3":              "Algae Omega",
	"omega-3":              "Algae Omega",
	"omega 3s":             "Algae Omega",
	"fish oil":             "Algae Omega",
	"epa/dha":              "Algae Omega",
	"hawthorn":             "Hawthorn Berry",
	"turmeric":             "Curcumin",
	"n-acetylcysteine":     "NAC",
	"n-acetyl cysteine":    "NAC",
	"coenzyme q10":         "CoQ10",
	"ubiquinone":           "CoQ10",
	"theanine":             "L-Theanine",
	"l theanine":           "L-Theanine",
	"magnesium":            "Magnesium Glycinate",
	"vitamin d":            "Vitamin D3",
	"cholecalciferol":      "Vitamin D3",
	"zinc":                 "Zinc Picolinate",
	"folate":               "Methylfolate",
	"5-mthf":               "Methylfolate",
	"lion's mane":          "Lions Mane",
	"ala":                  "Alpha Lipoic Acid",
	"withania somnifera":   "Ashwagandha",
	"rhodiola rosea":       "Rhodiola",
	"bacopa monnieri":      "Bacopa",
	"silymarin":            "Milk Thistle",
	"valerian officinalis": "Valerian",
}
