package classifier

// Keyword vocabularies for the rule-based classifier. Families are scanned
// in a fixed order so the same text always produces the same signal.

// symptomFamilies maps each family to its keyword list. The emergency
// family is kept separate (see emergencyPhrases) and is disjoint from these.
var symptomFamilies = []struct {
	name     string
	keywords []string
}{
	{"pain", []string{
		"pain", "ache", "aching", "sore", "cramp", "cramping",
		"burning sensation", "stabbing", "throbbing", "headache", "migraine",
	}},
	{"respiratory", []string{
		"cough", "coughing", "difficulty breathing", "shortness of breath",
		"breathing difficulty", "wheezing", "congestion", "sneezing",
		"phlegm", "sore throat",
	}},
	{"digestive", []string{
		"nausea", "nauseous", "vomiting", "vomit", "diarrhea", "diarrhoea",
		"constipation", "stomach upset", "indigestion", "bloating",
		"loss of appetite", "heartburn",
	}},
	{"neurological", []string{
		"dizzy", "dizziness", "numbness", "tingling", "confusion",
		"blurred vision", "fainting", "weakness", "tremor", "memory loss",
	}},
	{"cardiac", []string{
		"chest pain", "chest tightness", "chest pressure", "palpitations",
		"racing heart", "irregular heartbeat", "heart pounding",
	}},
}

// emergencyPhrases force an emergency severity hint the moment one matches.
// Disjoint from the symptom families above.
var emergencyPhrases = []string{
	"can't breathe", "cannot breathe", "not breathing",
	"struggling to breathe", "gasping for air",
	"unconscious", "loss of consciousness", "passed out", "unresponsive",
	"severe bleeding", "bleeding heavily", "won't stop bleeding",
	"crushing chest", "heart attack", "stroke",
	"seizure", "convulsions", "overdose", "choking",
	"suicidal", "want to die",
}

// bodyRegions is the fixed vocabulary scanned for substring hits.
var bodyRegions = []string{
	"head", "chest", "abdomen", "stomach", "back", "neck", "throat",
	"shoulder", "arm", "elbow", "wrist", "hand", "hip", "leg", "knee",
	"ankle", "foot", "eye", "ear", "skin",
}

// Sentiment keyword buckets, scanned with fixed precedence
// urgent > anxious > concerned > calm.
var sentimentBuckets = []struct {
	sentiment Sentiment
	keywords  []string
}{
	{SentimentUrgent, []string{
		"emergency", "immediately", "right away", "urgent",
		"unbearable", "can't take it", "help me now",
	}},
	{SentimentAnxious, []string{
		"scared", "terrified", "panicking", "panic", "anxious",
		"frightened", "worried sick",
	}},
	{SentimentConcerned, []string{
		"worried", "concerned", "bothering me", "not sure", "unusual",
	}},
}

// Intensity word families for the severity hint, scanned high before
// moderate before low. Emergency phrases win before any of these.
var intensityFamilies = []struct {
	hint     SeverityHint
	keywords []string
}{
	{SeverityHigh, []string{
		"severe", "intense", "excruciating", "extreme", "unbearable",
		"worst", "agonizing", "debilitating",
	}},
	{SeverityModerate, []string{
		"persistent", "moderate", "constant", "significant", "recurring",
		"worsening", "getting worse", "spreading", "frequent",
	}},
	{SeverityLow, []string{
		"mild", "slight", "minor", "occasional", "a little", "faint",
	}},
}

// triggerPhrases are contextual triggers collected from the complaint.
var triggerPhrases = []string{
	"after eating", "after exercise", "after exertion", "when breathing",
	"when moving", "when standing", "when lying down", "at night",
	"in the morning", "under stress", "after medication",
}
