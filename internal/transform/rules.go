package transform

import "regexp"

// The classification tables below are ordered data. Evaluation order is
// part of the pipeline contract: reordering entries changes published
// output, so entries must only be appended or changed deliberately.

// medicalKeywords flags a message as medical when any entry occurs in the
// lower-cased text. The test is a union, so order carries no meaning here.
var medicalKeywords = []string{
	"paracetamol",
	"ibuprofen",
	"amoxicillin",
	"ceftriaxone",
	"metformin",
	"insulin",
	"ventolin",
	"antibiotic",
	"vaccine",
	"antiviral",
	"tablet",
	"capsule",
	"syrup",
	"injection",
	"cream",
	"ointment",
	"dose",
	"pharma",
	"medicine",
}

// productAlternatives is the ordered product alternation. The first entry
// that occurs anywhere in the text wins, regardless of position in the
// text itself.
var productAlternatives = []string{
	"paracetamol",
	"ibuprofen",
	"amoxicillin",
	"ceftriaxone",
	"metformin",
	"insulin",
	"ventolin",
	"antibiotic",
	"vaccine",
	"antiviral",
}

// channelTypeRules classify a channel by name substring, first match wins.
var channelTypeRules = []struct {
	Substring string
	Type      string
}{
	{"pharm", "Pharmaceutical"},
	{"cosme", "Cosmetics"},
	{"med", "Medical"},
}

// defaultChannelType applies when no rule matches.
const defaultChannelType = "Other"

// displayNameRules map known channel usernames to human-readable names,
// checked in order before falling back to the raw channel name.
var displayNameRules = []struct {
	Substring string
	Display   string
}{
	{"chemed", "CheMed"},
	{"lobelia4cosmetics", "Lobelia Cosmetics"},
	{"tikvahpharma", "Tikvah Pharma"},
	{"ethiopharm", "Ethio Pharm"},
	{"addispharmacy", "Addis Pharmacy"},
	{"ethiomedical", "Ethio Medical"},
}

// priceKeywords and availabilityKeywords drive the content-signal flags
// on message facts. Both are unions over lower-cased text.
var priceKeywords = []string{"birr", "etb", "price", "cost"}

var availabilityKeywords = []string{"available", "in stock", "stock", "delivery"}

// priceAmountPattern extracts a leading amount followed by a currency
// token. The first match in the text is used.
var priceAmountPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:birr|etb|br)\b`)

// containerClasses and medicalToolClasses are the detection label sets
// behind has_container and has_medical_tool.
var containerClasses = []string{"bottle", "cup", "bowl"}

var medicalToolClasses = []string{"scissors", "knife"}

// imageClassRules assign the image classification from the three derived
// flags. First matching rule wins. The medical-tools rule is evaluated
// after the person/container rules; an image with both a person and a
// medical tool is classified by the earlier rule. This mirrors the
// detection collaborator's own categorization and must not be reordered.
var imageClassRules = []struct {
	Label string
	Match func(person, container, tool bool) bool
}{
	{"promotional", func(person, container, _ bool) bool { return person && container }},
	{"product_display", func(person, container, _ bool) bool { return container && !person }},
	{"lifestyle", func(person, container, _ bool) bool { return person && !container }},
	{"medical_tools", func(_, _, tool bool) bool { return tool }},
}

// defaultImageClass applies when no rule matches.
const defaultImageClass = "other"
