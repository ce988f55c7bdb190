package usecase

import (
	"regexp"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

type namedPattern struct {
	name    string
	pattern string
}

// universalSlang maps worker vocabulary to contract vocabulary for any grocery CBA.
var universalSlang = map[string]string{
	"ot":   "overtime",
	"pto":  "vacation personal holiday time off",
	"fmla": "family medical leave",
	"loa":  "leave of absence",

	"float":            "personal holiday",
	"float day":        "personal holiday",
	"float days":       "personal holidays",
	"floater":          "personal holiday",
	"floaters":         "personal holidays",
	"floating holiday": "personal holiday",

	"fired":      "discharge termination",
	"canned":     "discharge termination",
	"let go":     "discharge termination layoff",
	"pink slip":  "discharge termination layoff",
	"written up": "discipline warning",
	"write up":   "discipline warning",
	"writeup":    "discipline warning",

	"my schedule":     "work schedule hours",
	"when do i work":  "schedule hours",
	"shift change":    "schedule change",
	"called in":       "call in reporting pay",
	"call out":        "call in sick absence",
	"no call no show": "absence discipline",

	"health insurance": "health benefits health trust",
	"medical":          "health benefits",
	"dental":           "health benefits",
	"vision":           "health benefits",
	"retirement":       "pension",

	"raise":           "wage increase progression",
	"bump":            "wage increase step",
	"time and a half": "overtime premium",
	"double time":     "overtime premium",
	"sunday pay":      "sunday premium",
	"night pay":       "night premium",
	"holiday pay":     "holiday premium",

	"bereavement": "funeral leave",
	"maternity":   "family care leave",
	"paternity":   "family care leave",
	"jury duty":   "jury service",
	"sick time":   "sick leave",
	"sick days":   "sick leave",

	"cashier": "all purpose clerk",

	"steward":       "union steward union representative",
	"rep":           "union representative steward",
	"dues":          "union dues",
	"union meeting": "union business leave",

	"dress code":  "uniform appearance dress",
	"uniform":     "dress code appearance",
	"break":       "rest period",
	"lunch":       "meal period",
	"tardiness":   "attendance discipline",
	"late":        "attendance tardiness",
	"late policy": "attendance discipline",
}

// topicPriority lists specific topics ahead of generic ones.
var topicPriority = []string{
	"retirement_savings",
	"weingarten",
	"health_benefits",
	"drive_up_go",
	"personal_holiday",
	"promotion",
	"layoff",
	"sick_leave",
	"vacation",
	"overtime",
	"grievance",
	"discipline",
	"seniority",
	"premiums",
	"breaks",
	"scheduling",
}

var universalTopicPatterns = []namedPattern{
	{"overtime", `\bover\s*time|\bot\b|time\s*and\s*a\s*half`},
	{"scheduling", `\bschedul|\bshifts?\b|\bhours\b|when do i work`},
	{"seniority", `\bsenior|how long|years of service`},
	{"layoff", `\blay\s*offs?\b|\bbumping\b|\bdisplacement\b|\breduction\b`},
	{"personal_holiday", `personal\s*holiday|\bfloat(ing)?\b|\bfloat\s*days?\b|\bfloaters?\b|\bpto\b`},
	{"vacation", `\bvacation|time\s*off|\bholiday|personal day`},
	{"sick_leave", `sick\s*leave|sick\s*days?|\billness|call\s*in\s*sick`},
	{"discipline", `\bdisciplin|\bwarning|write\s*up|written up|\btard(y|iness)\b|\blate\b|\battendance\b`},
	{"grievance", `\bgrievance|\barbitration|file\s*a\s*complaint`},
	{"breaks", `\bbreaks?\b|\blunch\b|meal\s*period|\brelief\b|rest\s*period`},
	{"premiums", `\bpremium|night\s*pay|sunday\s*pay`},
	{"weingarten", `\bweingarten|right\s*to\s*representation|union\s*rep\b`},
	{"health_benefits", `health\s*(benefit|insurance|coverage|care)|medical\s*benefit|eligible.*(health|benefit)|benefit.*eligible`},
	{"promotion", `\bpromot|\badvance|move up|basket.*hours|credit.*hours`},
	{"drive_up_go", `drive\s*up|\bdug\b|personal\s*shopper|\bclicklist\b`},
	{"probation", `\bprobation|trial\s*period|new\s*employee.*hours`},
	{"term", `\bterm\s*of\b|contract\s*term|agreement\s*term|\bexpir|effective\s*date`},
	{"minimum_wage", `minimum\s*wage|colorado.*wage|\$15\b`},
	{"joint_committee", `joint.*committee|labor.*management\s*committee`},
}

// Generic "clerk" stays last so specific classifications win.
var universalClassificationPatterns = []namedPattern{
	{"courtesy_clerk", `courtesy\s*clerk|\bbaggers?\b`},
	{"head_clerk", `head\s*clerk`},
	{"produce_manager", `produce\s*(department\s*)?manager`},
	{"bakery_manager", `bakery\s*manager`},
	{"cake_decorator", `cake\s*decorator`},
	{"pharmacy_tech", `pharmacy\s*tech`},
	{"non_foods_clerk", `non.?foods?\b|\bgm\s*clerk|general\s*merchandise`},
	{"all_purpose_clerk", `all\s*purpose\s*clerk|\bclerks?\b`},
}

var wageKeywords = []string{
	"my pay", "my wage", "my rate", "my salary", "my hourly",
	"wage rate", "pay rate", "hourly rate", "rate of pay",
	"what do i make", "what's my pay", "what am i making",
	"how much do i make", "how much should i make", "how much will i make",
	"how much should i be making", "what should i be making", "what should i make",
	"compensation", "starting pay", "experience pay", "step", "progression",
	"appendix a",
}

// wageKeywordRes match wageKeywords as whole words, so "step" never fires on "steps" or "stepped".
var wageKeywordRes = wordPatterns(wageKeywords)

// wageExclusions mark pay-adjacent questions that are about leave, not rates.
var wageExclusions = []string{
	"vacation", "holiday", "sick", "time off", "pto", "personal day",
	"pay stub", "pay period", "pay check",
}

// Subjects are unconstrained: any worker, classification, or pronoun may sit between the verbs.
var wagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`how much (do|does|will|would|should|can) .+ (make|earn|get paid|be making|be earning)`),
	regexp.MustCompile(`what(?: is| are| should|'s) (my|the|a|an) (pay|wage|rate|salary)`),
	regexp.MustCompile(`what(?: is| are|'s) (the|a|an|my) .+ (rate of pay|pay rate|wage rate|hourly rate|wage|wages|pay)\b`),
	regexp.MustCompile(`what should .+ (make|earn|be making|be earning)\b`),
	regexp.MustCompile(`\$\d+.*hour`),
}

var activeHighStakesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(i'?m|i am|was|been|being|getting) (just\s+)?(fired|terminated|discharged)`),
	regexp.MustCompile(`(i'?m|i am|was|been|being|getting) (disciplined|written up|suspended)`),
	regexp.MustCompile(`(i'?m|i am|i'?ve been|i was) (being |getting )?(harass|discriminat|retaliat)`),
	regexp.MustCompile(`(harass\w*|discriminat\w*\s+against|retaliat\w*\s+against)\s+me\b`),
	regexp.MustCompile(`(my\s+)?(manager|boss|supervisor|coworker|co-worker).*(harass|discriminat|retaliat)`),
	regexp.MustCompile(`(called|summoned) (into|to) (a\s+)?(meeting|office)`),
	regexp.MustCompile(`just (got|been|was) (terminated|fired|discharged|written up|suspended)`),
	regexp.MustCompile(`(manager|boss|supervisor).*(wants|asked|told|called).*(meeting|office|talk)`),
}

// urgencyPattern marks an already high-stakes question as happening now.
var urgencyPattern = regexp.MustCompile(`\b(right now|today|yesterday|just happened)\b`)

var generalHighStakesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`harass`),
	regexp.MustCompile(`discriminat`),
	regexp.MustCompile(`\b(unsafe|dangerous|injury|injured)\b`),
	regexp.MustCompile(`\binvestigation`),
	regexp.MustCompile(`\bweingarten`),
	regexp.MustCompile(`(my rights|what rights).*(if|when|during).*(disciplin|fired|terminat)`),
}

var highStakesTopics = []string{
	"discharge", "termination", "fired", "discipline", "harassment",
	"discrimination", "retaliation", "safety", "injury", "immigration", "weingarten",
}

// highStakesCategories are checked in order; the first match names the category.
var highStakesCategories = []struct {
	category domain.HighStakesCategory
	re       *regexp.Regexp
}{
	{domain.CategoryHarassment, regexp.MustCompile(`harass`)},
	{domain.CategoryDiscrimination, regexp.MustCompile(`discriminat`)},
	{domain.CategoryRetaliation, regexp.MustCompile(`retaliat`)},
	{domain.CategorySafety, regexp.MustCompile(`\b(unsafe|dangerous|injur\w*|safety)\b`)},
	{domain.CategoryTermination, regexp.MustCompile(`\b(fired|terminat\w*|discharg\w*|let go|canned)\b`)},
	{domain.CategoryDiscipline, regexp.MustCompile(`\b(disciplin\w*|written up|write up|suspend\w*|warning|weingarten|investigation)\b`)},
}
