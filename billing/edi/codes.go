// Package edi builds ANSI X12 837P professional-claim documents. The
// generator is a pure transformation; it performs no network or disk I/O.
package edi

import (
	"strconv"
	"strings"

	"github.com/vitalpath/billing-app/billing/models"
)

// CPT codes for biomarkers we can bill directly when a report carries no
// explicit claim lines.
var biomarkerCPTCodes = map[string]string{
	"glucose":       "82947",
	"cholesterol":   "82465",
	"hba1c":         "83036",
	"hemoglobin":    "85018",
	"triglycerides": "84478",
	"hdl":           "83718",
	"ldl":           "83721",
	"tsh":           "84443",
	"vitamin d":     "82306",
	"creatinine":    "82565",
}

// Standard lab fee schedule used for synthesized lines.
var biomarkerCharges = map[string]float64{
	"82947": 10.82, // glucose
	"82465": 11.86, // cholesterol
	"83036": 26.55, // hba1c
	"85018": 6.63,  // hemoglobin
	"84478": 15.68, // triglycerides
	"83718": 22.48, // hdl
	"83721": 26.13, // ldl
	"84443": 46.10, // tsh
	"82306": 80.61, // vitamin d
	"82565": 14.08, // creatinine
}

var biomarkerCategories = map[string]string{
	"glucose":       "metabolic",
	"hba1c":         "metabolic",
	"creatinine":    "metabolic",
	"cholesterol":   "lipid",
	"triglycerides": "lipid",
	"hdl":           "lipid",
	"ldl":           "lipid",
	"hemoglobin":    "hematology",
	"tsh":           "endocrine",
	"vitamin d":     "nutritional",
}

var categoryICD10Codes = map[string]string{
	"metabolic":   "E88.9",
	"lipid":       "E78.9",
	"hematology":  "D75.9",
	"endocrine":   "E34.9",
	"nutritional": "E63.9",
}

// Diagnosis codes for specific abnormal findings, keyed by biomarker name
// and direction.
var abnormalHighICD10 = map[string]string{
	"glucose":       "R73.9", // hyperglycemia
	"cholesterol":   "E78.00",
	"triglycerides": "E78.1",
	"hba1c":         "R73.09",
	"tsh":           "E03.9", // elevated TSH suggests hypothyroidism
}

var abnormalLowICD10 = map[string]string{
	"hemoglobin": "D64.9", // anemia
	"vitamin d":  "E55.9",
	"hdl":        "E78.6",
	"tsh":        "E05.90",
}

// Routine-exam code attached when a biomarker shows no abnormal finding.
const icd10RoutineExam = "Z00.00"

type referenceRange struct {
	low, high float64
}

// Built-in ranges used when a report does not supply one.
var defaultRanges = map[string]referenceRange{
	"glucose":       {70, 99},
	"cholesterol":   {125, 200},
	"hba1c":         {4.0, 5.6},
	"hemoglobin":    {12.0, 17.5},
	"triglycerides": {0, 150},
	"hdl":           {40, 100},
	"ldl":           {0, 100},
	"tsh":           {0.4, 4.0},
	"vitamin d":     {30, 100},
	"creatinine":    {0.6, 1.3},
}

// parseRange parses a "low-high" reference-range string.
func parseRange(s string) (referenceRange, bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return referenceRange{}, false
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return referenceRange{}, false
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return referenceRange{}, false
	}
	return referenceRange{low, high}, true
}

// classify compares a biomarker value against its reference range (supplied
// or built-in) and returns the matching abnormal diagnosis code, if any.
func classify(b models.Biomarker) (code string, abnormal bool) {
	name := strings.ToLower(b.Name)

	r, ok := parseRange(b.ReferenceRange)
	if !ok {
		if r, ok = defaultRanges[name]; !ok {
			return "", false
		}
	}

	switch {
	case b.Value > r.high:
		return abnormalHighICD10[name], true
	case b.Value < r.low:
		return abnormalLowICD10[name], true
	default:
		return "", false
	}
}

// diagnosisCodes builds the ordered ICD-10 list for one biomarker: the
// category code, then either the abnormal-finding code or the routine-exam
// code.
func diagnosisCodes(b models.Biomarker) []string {
	name := strings.ToLower(b.Name)
	var codes []string
	if c, ok := categoryICD10Codes[biomarkerCategories[name]]; ok {
		codes = append(codes, c)
	}

	if abnormalCode, abnormal := classify(b); abnormal {
		if abnormalCode != "" {
			codes = append(codes, abnormalCode)
		}
	} else {
		codes = append(codes, icd10RoutineExam)
	}

	if len(codes) == 0 {
		codes = []string{icd10RoutineExam}
	}
	return codes
}
