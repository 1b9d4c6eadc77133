// Package vocabulary holds the static medical term dictionaries, the
// misrecognition-correction table, and the weighted SOAP keyword lists used
// by the text enhancer.
//
// The data is deliberately plain Go literals rather than an external file:
// the lists change rarely, reviews happen in code review, and the enhancer
// needs zero I/O on the hot path. Deployments can extend the built-in lists
// through functional options fed from the configuration.
//
// Note that the category dictionaries intentionally contain common
// misrecognised spellings ("hypertention", "newmonia") alongside the correct
// terms: detection finds the misspelling, the correction table then maps it
// to the canonical form.
package vocabulary

import (
	"sort"
	"strings"

	"github.com/clinscribe/clinscribe/pkg/types"
)

// Vocabulary is an immutable lookup structure. All methods are safe for
// concurrent use — the Vocabulary is read-only after construction.
type Vocabulary struct {
	terms       map[types.TermCategory][]string
	corrections map[string]string
	keywords    map[types.Section][]string
	indicators  map[types.Section][]string
}

// Option is a functional option for extending the built-in vocabulary.
type Option func(*Vocabulary)

// WithExtraTerms appends deployment-specific terms to a category dictionary
// (e.g., local formulary drug names).
func WithExtraTerms(cat types.TermCategory, terms ...string) Option {
	return func(v *Vocabulary) {
		v.terms[cat] = append(v.terms[cat], terms...)
	}
}

// WithExtraCorrections merges deployment-specific misrecognition corrections.
// Keys are matched case-insensitively against detected terms.
func WithExtraCorrections(corrections map[string]string) Option {
	return func(v *Vocabulary) {
		for k, val := range corrections {
			v.corrections[strings.ToLower(k)] = val
		}
	}
}

// New returns a Vocabulary populated with the built-in clinical dictionaries,
// extended by the supplied options. Term lists are sorted longest-first so
// that multi-word entries take precedence during detection.
func New(opts ...Option) *Vocabulary {
	v := &Vocabulary{
		terms:       builtinTerms(),
		corrections: builtinCorrections(),
		keywords:    builtinKeywords(),
		indicators:  builtinIndicators(),
	}
	for _, o := range opts {
		o(v)
	}
	for cat, list := range v.terms {
		sorted := make([]string, len(list))
		copy(sorted, list)
		sort.SliceStable(sorted, func(i, j int) bool {
			return len(sorted[i]) > len(sorted[j])
		})
		v.terms[cat] = sorted
	}
	return v
}

// Terms returns the dictionary for cat, longest entry first. The returned
// slice must not be modified.
func (v *Vocabulary) Terms(cat types.TermCategory) []string {
	return v.terms[cat]
}

// Correction returns the canonical replacement for a detected term, matched
// case-insensitively. The second return value reports whether a correction
// exists.
func (v *Vocabulary) Correction(term string) (string, bool) {
	c, ok := v.corrections[strings.ToLower(term)]
	return c, ok
}

// SectionKeywords returns the primary keyword list for sec (weight 2 during
// classification).
func (v *Vocabulary) SectionKeywords(sec types.Section) []string {
	return v.keywords[sec]
}

// SectionIndicators returns the secondary heuristic-indicator list for sec
// (weight 1 during classification).
func (v *Vocabulary) SectionIndicators(sec types.Section) []string {
	return v.indicators[sec]
}

// CanonicalTerms returns every correctly-spelled dictionary entry across all
// categories, deduplicated. Used for phonetic matching and engine keyword
// boosting; misrecognised spellings are excluded so they are never suggested
// as corrections.
func (v *Vocabulary) CanonicalTerms() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, cat := range types.TermCategories {
		for _, term := range v.terms[cat] {
			lower := strings.ToLower(term)
			if _, miss := v.corrections[lower]; miss {
				continue
			}
			if _, dup := seen[lower]; dup {
				continue
			}
			seen[lower] = struct{}{}
			out = append(out, term)
		}
	}
	return out
}

// CategoryOf returns the category a canonical term belongs to, matched
// case-insensitively. Returns false when the term is in no dictionary.
func (v *Vocabulary) CategoryOf(term string) (types.TermCategory, bool) {
	lower := strings.ToLower(term)
	for _, cat := range types.TermCategories {
		for _, t := range v.terms[cat] {
			if strings.ToLower(t) == lower {
				return cat, true
			}
		}
	}
	return "", false
}

// ---- built-in data ----------------------------------------------------------

func builtinTerms() map[types.TermCategory][]string {
	return map[types.TermCategory][]string{
		types.CategoryAnatomy: {
			"heart", "lungs", "liver", "kidney", "spleen", "abdomen",
			"thorax", "trachea", "esophagus", "spine", "shoulder", "knee",
			"ankle", "artery", "vein", "bladder", "pancreas", "thyroid",
			"tonsils", "sinus", "femur", "left ventricle", "right atrium",
			"carotid artery", "gallbladder",
		},
		types.CategorySymptoms: {
			"pain", "chest pain", "shortness of breath", "nausea",
			"vomiting", "dizziness", "headache", "fatigue", "fever",
			"cough", "palpitations", "wheezing", "swelling", "rash",
			"chills", "sore throat", "numbness", "blurred vision",
			"abdominal pain", "back pain", "night sweats", "diarrhea",
			"diarreah", "constipation", "loss of appetite",
		},
		types.CategoryMedications: {
			"aspirin", "asprin", "ibuprofen", "ibuprofin", "acetaminophen",
			"metformin", "lisinopril", "metoprolol", "metropolol",
			"atorvastatin", "amoxicillin", "omeprazole", "albuterol",
			"insulin", "warfarin", "prednisone", "amlodipine", "gabapentin",
			"hydrochlorothiazide", "levothyroxine", "clopidogrel",
			"furosemide", "sertraline",
		},
		types.CategoryProcedures: {
			"x-ray", "xray", "mri", "ct scan", "biopsy", "ekg",
			"echocardiogram", "colonoscopy", "endoscopy", "ultrasound",
			"blood test", "catheterization", "catheterisation",
			"intubation", "dialysis", "vaccination", "lumbar puncture",
			"stress test", "angiography",
		},
		types.CategoryConditions: {
			"hypertension", "hypertention", "diabetes", "diabetis",
			"asthma", "pneumonia", "newmonia", "bronchitis", "copd",
			"anemia", "arthritis", "arthritus", "migraine", "influenza",
			"sepsis", "stroke", "myocardial infarction",
			"atrial fibrillation", "hyperlipidemia", "gastritis",
			"depression", "anxiety", "angina", "angena", "pneumothorax",
			"embolism", "cellulitis",
		},
	}
}

func builtinCorrections() map[string]string {
	return map[string]string{
		"hypertention":    "hypertension",
		"diabetis":        "diabetes",
		"newmonia":        "pneumonia",
		"arthritus":       "arthritis",
		"angena":          "angina",
		"asprin":          "aspirin",
		"ibuprofin":       "ibuprofen",
		"metropolol":      "metoprolol",
		"diarreah":        "diarrhea",
		"xray":            "x-ray",
		"catheterisation": "catheterization",
	}
}

func builtinKeywords() map[types.Section][]string {
	return map[types.Section][]string{
		types.SectionSubjective: {
			"patient reports", "complains of", "states that", "describes",
			"denies", "patient says", "reports", "history of",
			"presents with", "woke up with",
		},
		types.SectionObjective: {
			"examination reveals", "on examination", "vital signs",
			"blood pressure", "heart rate", "temperature", "auscultation",
			"palpation", "lab results", "oxygen saturation",
			"respiratory rate", "physical exam",
		},
		types.SectionAssessment: {
			"diagnosis", "differential", "impression", "consistent with",
			"suggestive of", "assessment", "appears to be", "rule out",
			"most likely",
		},
		types.SectionPlan: {
			"plan", "prescribe", "prescribed", "follow up", "recommend",
			"order", "refer", "referral", "schedule", "discharge",
			"increase dose", "start on",
		},
	}
}

func builtinIndicators() map[types.Section][]string {
	return map[types.Section][]string{
		types.SectionSubjective: {
			"pain", "ache", "discomfort", "tired", "dizzy", "worried",
			"yesterday", "worse", "better",
		},
		types.SectionObjective: {
			"stable", "elevated", "normal", "afebrile", "alert",
			"bilateral", "regular", "tender",
		},
		types.SectionAssessment: {
			"probable", "possible", "chronic", "acute", "secondary to",
			"unlikely",
		},
		types.SectionPlan: {
			"mg", "daily", "twice", "weeks", "return", "monitor",
			"as needed",
		},
	}
}
