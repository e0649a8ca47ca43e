package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/logging"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

// Loader bulk-loads scraped message dumps and detection result files
// from the data lake into the raw layer. A file that fails to parse is
// logged and skipped so one bad dump does not abort the load.
type Loader struct {
	store  RawWriter
	logger logging.Logger
}

func NewLoader(store RawWriter, logger logging.Logger) *Loader {
	return &Loader{store: store, logger: logger}
}

// LoadMessageDir walks dir recursively, parses every *.json file as an
// array of scraped messages, and upserts them. Returns the number of
// messages loaded.
func (l *Loader) LoadMessageDir(ctx context.Context, dir string) (int, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk message dir %s: %w", dir, err)
	}
	l.logger.WithFields(logging.Fields{"dir": dir, "files": len(files)}).Info("Found message dump files")

	total := 0
	for _, path := range files {
		messages, err := readMessageFile(path)
		if err != nil {
			l.logger.WithError(err).WithField("file", path).Error("Skipping unreadable message dump")
			continue
		}
		if len(messages) == 0 {
			continue
		}
		if err := l.store.UpsertRawMessages(ctx, messages); err != nil {
			return total, fmt.Errorf("load %s: %w", path, err)
		}
		total += len(messages)
		l.logger.WithFields(logging.Fields{"file": path, "messages": len(messages)}).Debug("Loaded message dump")
	}

	l.logger.WithField("messages", total).Info("Message dump load complete")
	return total, nil
}

// LoadDetections parses a detection results file, CSV or JSON by
// extension, and upserts the records.
func (l *Loader) LoadDetections(ctx context.Context, path string) (int, error) {
	var (
		detections []models.RawDetection
		err        error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		detections, err = readDetectionCSV(path)
	case ".json":
		detections, err = readDetectionJSON(path)
	default:
		return 0, fmt.Errorf("unsupported detection file format: %s", path)
	}
	if err != nil {
		return 0, err
	}
	if len(detections) == 0 {
		l.logger.WithField("file", path).Warn("Detection file carried no records")
		return 0, nil
	}

	if err := l.store.UpsertRawDetections(ctx, detections); err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	l.logger.WithFields(logging.Fields{"file": path, "detections": len(detections)}).Info("Loaded detection results")
	return len(detections), nil
}

func readMessageFile(path string) ([]models.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var messages []models.RawMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Preserve the original payload of each message alongside the typed
	// columns, the way the scraper's own dumps are stored.
	var rawEntries []json.RawMessage
	if err := json.Unmarshal(data, &rawEntries); err == nil && len(rawEntries) == len(messages) {
		for i := range messages {
			messages[i].RawData = rawEntries[i]
		}
	}
	return messages, nil
}

// detectionJSONRecord is the detector's own JSON output shape; the
// detection array lives under "detections".
type detectionJSONRecord struct {
	MessageID      *int64          `json:"message_id"`
	ChannelName    *string         `json:"channel_name"`
	ImagePath      string          `json:"image_path"`
	Detections     json.RawMessage `json:"detections"`
	DetectionCount int             `json:"detection_count"`
	ImageCategory  string          `json:"image_category"`
	ProcessingTime time.Time       `json:"processing_time"`
}

func readDetectionJSON(path string) ([]models.RawDetection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var records []detectionJSONRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	detections := make([]models.RawDetection, 0, len(records))
	for _, r := range records {
		objects := r.Detections
		if len(objects) == 0 {
			objects = json.RawMessage("[]")
		}
		category := r.ImageCategory
		if category == "" {
			category = "other"
		}
		processed := r.ProcessingTime
		if processed.IsZero() {
			processed = time.Now().UTC()
		}
		detections = append(detections, models.RawDetection{
			MessageID:       r.MessageID,
			ChannelName:     r.ChannelName,
			ImagePath:       r.ImagePath,
			DetectedObjects: objects,
			DetectionCount:  r.DetectionCount,
			ImageCategory:   category,
			ProcessingDate:  processed,
		})
	}
	return detections, nil
}

// readDetectionCSV parses the detector's CSV export. Object names and
// confidence scores are parallel semicolon-joined columns that get
// re-zipped into the JSON array the raw table stores.
func readDetectionCSV(path string) ([]models.RawDetection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var detections []models.RawDetection
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row: %w", path, err)
		}

		objects, err := zipDetectedObjects(field(row, "detected_objects"), field(row, "confidence_scores"))
		if err != nil {
			return nil, fmt.Errorf("parse %s detections: %w", path, err)
		}

		messageID, _ := strconv.ParseInt(field(row, "message_id"), 10, 64)
		count, _ := strconv.Atoi(field(row, "detection_count"))
		channel := field(row, "channel_name")
		category := field(row, "image_category")
		if category == "" {
			category = "other"
		}
		processed := time.Now().UTC()
		if ts := field(row, "processing_time"); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				processed = parsed
			}
		}

		detections = append(detections, models.RawDetection{
			MessageID:       &messageID,
			ChannelName:     &channel,
			ImagePath:       field(row, "image_path"),
			DetectedObjects: objects,
			DetectionCount:  count,
			ImageCategory:   category,
			ProcessingDate:  processed,
		})
	}
	return detections, nil
}

func zipDetectedObjects(names, scores string) (json.RawMessage, error) {
	nameParts := strings.Split(names, ";")
	scoreParts := strings.Split(scores, ";")

	objects := make([]models.DetectedObject, 0, len(nameParts))
	for i := 0; i < len(nameParts) && i < len(scoreParts); i++ {
		name := strings.TrimSpace(nameParts[i])
		score := strings.TrimSpace(scoreParts[i])
		if name == "" || score == "" {
			continue
		}
		confidence, err := strconv.ParseFloat(score, 64)
		if err != nil {
			return nil, fmt.Errorf("confidence %q: %w", score, err)
		}
		objects = append(objects, models.DetectedObject{ClassName: name, Confidence: confidence})
	}
	return json.Marshal(objects)
}
