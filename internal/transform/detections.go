package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

// DetectionResult carries the enriched detection facts along with the
// count of records skipped for malformed payloads. Skips degrade the run,
// they never fail it.
type DetectionResult struct {
	Facts   []models.DetectionFact
	Skipped int
}

// EnrichDetections parses the detection arrays of qualifying raw
// detections, derives aggregate signals and the image classification, and
// left-joins each row to its message fact. Rows with a zero detection
// count or a null message id / channel name are filtered out; a record
// whose payload fails to parse is counted and excluded without affecting
// the rest of the batch.
func EnrichDetections(raw []models.RawDetection, facts []models.MessageFact) DetectionResult {
	factsByKey := make(map[string]*models.MessageFact, len(facts))
	for i := range facts {
		factsByKey[facts[i].MessageKey] = &facts[i]
	}

	result := DetectionResult{Facts: make([]models.DetectionFact, 0, len(raw))}
	for _, det := range raw {
		if det.DetectionCount <= 0 || det.MessageID == nil || det.ChannelName == nil {
			continue
		}

		fact, err := enrichDetection(det)
		if err != nil {
			result.Skipped++
			continue
		}

		if match, ok := factsByKey[MessageKey(fact.MessageID, fact.ChannelName)]; ok {
			fact.MessageKey = &match.MessageKey
			fact.ChannelKey = &match.ChannelKey
			fact.DateKey = match.DateKey
			fact.Views = &match.Views
			fact.Forwards = &match.Forwards
			rate := match.ForwardRate
			fact.ForwardRate = &rate
		}

		result.Facts = append(result.Facts, *fact)
	}

	return result
}

// enrichDetection parses and classifies a single detection record.
func enrichDetection(det models.RawDetection) (*models.DetectionFact, error) {
	var objects []models.DetectedObject
	if err := json.Unmarshal(det.DetectedObjects, &objects); err != nil {
		return nil, fmt.Errorf("parse detected_objects for message %d: %w", *det.MessageID, err)
	}

	channel := NormalizeChannelName(*det.ChannelName)
	id := strconv.FormatInt(*det.MessageID, 10)

	fact := &models.DetectionFact{
		DetectionKey:   SurrogateKey(&id, &channel, &det.ImagePath),
		MessageID:      *det.MessageID,
		ChannelName:    channel,
		ImagePath:      det.ImagePath,
		ObjectCount:    len(objects),
		ImageCategory:  det.ImageCategory,
		ProcessingDate: det.ProcessingDate,
	}

	var confidenceSum float64
	seen := make(map[string]struct{}, len(objects))
	classes := make([]string, 0, len(objects))
	for _, obj := range objects {
		confidenceSum += obj.Confidence
		if _, dup := seen[obj.ClassName]; !dup {
			seen[obj.ClassName] = struct{}{}
			classes = append(classes, obj.ClassName)
		}
	}
	if len(objects) > 0 {
		fact.AvgConfidence = round2(confidenceSum / float64(len(objects)))
	}
	fact.DetectedClasses = strings.Join(classes, ", ")

	fact.HasPerson = hasClass(seen, []string{"person"})
	fact.HasContainer = hasClass(seen, containerClasses)
	fact.HasMedicalTool = hasClass(seen, medicalToolClasses)
	fact.ImageClassification = classifyImage(fact.HasPerson, fact.HasContainer, fact.HasMedicalTool)

	return fact, nil
}

func hasClass(seen map[string]struct{}, classes []string) bool {
	for _, c := range classes {
		if _, ok := seen[c]; ok {
			return true
		}
	}
	return false
}

// classifyImage walks the ordered image classification rules and returns
// the first matching label.
func classifyImage(person, container, tool bool) string {
	for _, rule := range imageClassRules {
		if rule.Match(person, container, tool) {
			return rule.Label
		}
	}
	return defaultImageClass
}
