package flow

// intentFlows maps a detected service intent to the flow that handles it.
// Unknown intents fall back to the general flow, which opens by asking
// which service the contact needs.
var intentFlows = map[string]Key{
	"family_visa":     KeyFamilyVisa,
	"employment_visa": KeyEmploymentVisa,
	"visit_visa":      KeyVisitVisa,
	"visa_renewal":    KeyVisaRenewal,
}

// restrictedIntents are categories that must never be handled by the
// automated flow. Detecting one forces an immediate handover.
var restrictedIntents = map[string]bool{
	"citizenship":   true,
	"legal_dispute": true,
	"visa_overstay": true,
}

// definitions holds the scripted question order per flow. Order matters:
// the machine asks the first unanswered question in the slice.
var definitions = map[Key]Definition{
	KeyFamilyVisa: {
		Key: KeyFamilyVisa,
		Questions: []Question{
			{Key: QuestionName, Prompt: "May I have your full name, please?"},
			{Key: QuestionNationality, Prompt: "What is your nationality?"},
			{Key: QuestionPartySize, Prompt: "How many family members would the visa cover?"},
			{Key: QuestionSponsor, Prompt: "Are you currently on an employment or investor visa yourself?"},
			{Key: QuestionExpiryDate, Prompt: "When does your current residence visa expire?"},
		},
		WrapUp: "Thank you! We have everything we need for your family visa enquiry. A consultant will confirm the requirements and fees shortly.",
	},
	KeyEmploymentVisa: {
		Key: KeyEmploymentVisa,
		Questions: []Question{
			{Key: QuestionName, Prompt: "May I have your full name, please?"},
			{Key: QuestionNationality, Prompt: "What is your nationality?"},
			{Key: QuestionExpiryDate, Prompt: "If you hold a visa today, when does it expire?"},
		},
		WrapUp: "Thank you! We have what we need for your employment visa enquiry and will follow up with the next steps.",
	},
	KeyVisitVisa: {
		Key: KeyVisitVisa,
		Questions: []Question{
			{Key: QuestionName, Prompt: "May I have your full name, please?"},
			{Key: QuestionNationality, Prompt: "What nationality are the visitors?"},
			{Key: QuestionEntryDate, Prompt: "What is the planned arrival date?"},
			{Key: QuestionPartySize, Prompt: "How many visitors should the visa cover?"},
		},
		WrapUp: "Thank you! We have everything for your visit visa enquiry and will send the options shortly.",
	},
	KeyVisaRenewal: {
		Key: KeyVisaRenewal,
		Questions: []Question{
			{Key: QuestionName, Prompt: "May I have your full name, please?"},
			{Key: QuestionExpiryDate, Prompt: "When does the current visa expire?"},
			{Key: QuestionNationality, Prompt: "What is your nationality?"},
		},
		WrapUp: "Thank you! We will check the renewal requirements and get back to you with the timeline.",
	},
	KeyGeneral: {
		Key: KeyGeneral,
		Questions: []Question{
			{Key: QuestionService, Prompt: "Which service can we help you with today? For example family visa, employment visa, visit visa or renewal."},
			{Key: QuestionName, Prompt: "May I have your full name, please?"},
			{Key: QuestionNationality, Prompt: "What is your nationality?"},
		},
		WrapUp: "Thank you! A consultant will be in touch shortly with the details.",
	},
}

// DefinitionFor returns the flow definition for the key, falling back to the
// general flow for unknown keys.
func DefinitionFor(key Key) Definition {
	if def, ok := definitions[key]; ok {
		return def
	}
	return definitions[KeyGeneral]
}

// FlowForIntent resolves the flow key for a detected service intent.
func FlowForIntent(intent string) Key {
	if key, ok := intentFlows[intent]; ok {
		return key
	}
	return KeyGeneral
}

// IsRestrictedIntent reports whether the intent must bypass automation.
func IsRestrictedIntent(intent string) bool {
	return restrictedIntents[intent]
}
