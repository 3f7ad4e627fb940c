package config

// Defaults returns a fresh copy of the built-in configuration.
func Defaults() *ResolvedConfig {
	return &ResolvedConfig{
		Keywords: map[Severity][]string{
			SeverityCritical: {
				"suicide", "suicidal", "kill myself", "end my life", "want to die",
				"take my own life", "better off dead", "end it all", "no reason to live",
			},
			SeverityHigh: {
				"self harm", "self-harm", "hurt myself", "cutting myself", "overdose",
				"pills", "can't go on", "no way out", "want to disappear",
			},
			SeverityUrgency: {
				"plan", "tonight", "right now", "goodbye", "last time", "won't be around",
			},
			SeverityModerate: {
				"hopeless", "worthless", "trapped", "alone", "burden",
				"can't cope", "give up", "unbearable", "empty inside",
			},
		},
		Weights: map[Severity]float64{
			SeverityCritical: 10,
			SeverityHigh:     7,
			SeverityUrgency:  5,
			SeverityModerate: 3,
		},
		Combinations: []Combination{
			{"plan", "suicide"},
			{"plan", "kill myself"},
			{"plan", "end my life"},
			{"pills", "tonight"},
			{"hopeless", "plan"},
		},
		CombinationScore: 8,
		Thresholds: map[Tier]float64{
			TierCritical: 15,
			TierHigh:     10,
			TierModerate: 5,
			TierLow:      3,
		},
		Resources: map[string][]Resource{
			"US": {
				{ID: "us-911", Name: "Emergency Services", Number: "911", Description: "Immediate danger to life", Type: ResourceEmergency, Priority: 0, Country: "US"},
				{ID: "us-988", Name: "988 Suicide & Crisis Lifeline", Number: "988", Description: "24/7 free and confidential support", Type: ResourceVoice, Priority: 1, Country: "US"},
				{ID: "us-crisis-text", Name: "Crisis Text Line", Number: "741741", Keyword: "HOME", Description: "Text HOME to reach a crisis counselor", Type: ResourceText, Priority: 2, Country: "US"},
				{ID: "us-veterans", Name: "Veterans Crisis Line", Number: "988", Description: "Dial 988 then press 1", Type: ResourceVoice, Priority: 3, Country: "US", DemographicTags: []string{"veteran"}},
				{ID: "us-trevor", Name: "The Trevor Project", Number: "1-866-488-7386", Description: "Crisis support for LGBTQ+ young people", Type: ResourceVoice, Priority: 4, Country: "US", DemographicTags: []string{"lgbtq", "youth"}},
				{ID: "us-trans-lifeline", Name: "Trans Lifeline", Number: "877-565-8860", Description: "Peer support run by and for trans people", Type: ResourceVoice, Priority: 5, Country: "US", DemographicTags: []string{"lgbtq"}},
			},
			"GB": {
				{ID: "gb-999", Name: "Emergency Services", Number: "999", Description: "Immediate danger to life", Type: ResourceEmergency, Priority: 0, Country: "GB"},
				{ID: "gb-samaritans", Name: "Samaritans", Number: "116 123", Description: "24/7 listening service", Type: ResourceVoice, Priority: 1, Country: "GB"},
				{ID: "gb-shout", Name: "Shout", Number: "85258", Keyword: "SHOUT", Description: "Text SHOUT for crisis support", Type: ResourceText, Priority: 2, Country: "GB"},
				{ID: "gb-combat-stress", Name: "Combat Stress", Number: "0800 138 1619", Description: "Mental health support for veterans", Type: ResourceVoice, Priority: 3, Country: "GB", DemographicTags: []string{"veteran"}},
				{ID: "gb-switchboard", Name: "Switchboard LGBT+", Number: "0800 0119 100", Description: "Support for LGBTQ+ people", Type: ResourceVoice, Priority: 4, Country: "GB", DemographicTags: []string{"lgbtq"}},
			},
			"CA": {
				{ID: "ca-911", Name: "Emergency Services", Number: "911", Description: "Immediate danger to life", Type: ResourceEmergency, Priority: 0, Country: "CA"},
				{ID: "ca-988", Name: "9-8-8 Suicide Crisis Helpline", Number: "988", Description: "Call any time", Type: ResourceVoice, Priority: 1, Country: "CA"},
				{ID: "ca-988-text", Name: "9-8-8 Text", Number: "988", Description: "Text any time", Type: ResourceText, Priority: 2, Country: "CA"},
				{ID: "ca-veterans", Name: "VAC Assistance Service", Number: "1-800-268-7708", Description: "Support for veterans and families", Type: ResourceVoice, Priority: 3, Country: "CA", DemographicTags: []string{"veteran"}},
				{ID: "ca-trans-lifeline", Name: "Trans Lifeline", Number: "877-330-6366", Description: "Peer support run by and for trans people", Type: ResourceVoice, Priority: 4, Country: "CA", DemographicTags: []string{"lgbtq"}},
				{ID: "ca-kids-help", Name: "Kids Help Phone", Number: "1-800-668-6868", Description: "Support for young people", Type: ResourceVoice, Priority: 5, Country: "CA", DemographicTags: []string{"youth"}},
			},
		},
		SupportResources: map[string][]Resource{
			"US": {
				{ID: "us-samhsa", Name: "SAMHSA National Helpline", Number: "1-800-662-4357", URL: "https://www.samhsa.gov/find-help/national-helpline", Description: "Treatment referral and information", Type: ResourceLink, Priority: 1, Country: "US"},
				{ID: "us-nami", Name: "NAMI HelpLine", Number: "1-800-950-6264", URL: "https://www.nami.org/help", Description: "Mental health information and support", Type: ResourceLink, Priority: 2, Country: "US"},
				{ID: "intl-findahelpline", Name: "Find A Helpline", URL: "https://findahelpline.com", Description: "Directory of free helplines", Type: ResourceLink, Priority: 3, Country: "US"},
			},
			"GB": {
				{ID: "gb-nhs-111", Name: "NHS 111", Number: "111", URL: "https://111.nhs.uk", Description: "Urgent mental health help", Type: ResourceLink, Priority: 1, Country: "GB"},
				{ID: "gb-mind", Name: "Mind Infoline", Number: "0300 123 3393", URL: "https://www.mind.org.uk", Description: "Information and signposting", Type: ResourceLink, Priority: 2, Country: "GB"},
			},
			"CA": {
				{ID: "ca-cmha", Name: "Canadian Mental Health Association", URL: "https://cmha.ca", Description: "Local mental health services", Type: ResourceLink, Priority: 1, Country: "CA"},
				{ID: "intl-findahelpline", Name: "Find A Helpline", URL: "https://findahelpline.com", Description: "Directory of free helplines", Type: ResourceLink, Priority: 2, Country: "CA"},
			},
		},
		Confidence: ConfidenceModel{
			Specificity: map[Severity]float64{
				SeverityCritical: 0.9,
				SeverityHigh:     0.8,
				SeverityUrgency:  0.7,
				SeverityModerate: 0.6,
			},
			FramedFactor:      0.4,
			CorroborationStep: 0.05,
			Max:               0.99,
			FramedCap:         0.6,
			Window:            3,
			PrefixCues: []string{
				"prevention", "awareness", "hotline", "lifeline", "research", "statistics",
				"education", "article", "documentary", "movie", "book",
				// negation
				"not", "never", "don't", "dont", "do not", "wouldn't", "would not",
				"isn't", "no longer",
			},
			SuffixCues: []string{
				"prevention", "awareness", "hotline", "lifeline", "research", "statistics",
				"rates", "is important", "training", "education",
			},
		},
	}
}
