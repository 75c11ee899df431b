package configdb

import (
	"strconv"

	"gorm.io/gorm/clause"
)

// SettingKey is a key in the 'setting' table
type SettingKey string

const (
	KeyCameraWidth       SettingKey = "camera_width"
	KeyCameraHeight      SettingKey = "camera_height"
	KeyCameraFPS         SettingKey = "camera_fps"
	KeyDetectionInterval SettingKey = "detection_interval" // Run the detector on every Nth frame
	KeyNLPWeight         SettingKey = "nlp_weight"         // Read by the downstream score combiner
	KeyEmotionWeight     SettingKey = "emotion_weight"
)

// Fixed-hardware defaults. Monitoring must be able to start even when the
// settings table is unreachable, so every getter falls back to these.
const (
	DefaultCameraWidth       = 640
	DefaultCameraHeight      = 480
	DefaultCameraFPS         = 10
	DefaultDetectionInterval = 30
)

// The downstream pipeline combines the text-derived depression score and the
// visual emotion score into one wellness number. Equal weighting by default.
const (
	DefaultNLPWeight     = 0.5
	DefaultEmotionWeight = 0.5
)

// CameraSettings is the capture configuration handed to the camera and the
// monitoring loop at session start. It is not mutated mid-session.
type CameraSettings struct {
	Width             int `json:"width"`
	Height            int `json:"height"`
	FPS               int `json:"fps"`
	DetectionInterval int `json:"detectionInterval"`
}

func DefaultCameraSettings() CameraSettings {
	return CameraSettings{
		Width:             DefaultCameraWidth,
		Height:            DefaultCameraHeight,
		FPS:               DefaultCameraFPS,
		DetectionInterval: DefaultDetectionInterval,
	}
}

// GetCameraSettings returns the configured capture settings, falling back to
// the defaults for any key that is missing or unreadable. It never fails.
func (c *ConfigDB) GetCameraSettings() CameraSettings {
	s := DefaultCameraSettings()
	s.Width = c.getInt(KeyCameraWidth, s.Width)
	s.Height = c.getInt(KeyCameraHeight, s.Height)
	s.FPS = c.getInt(KeyCameraFPS, s.FPS)
	s.DetectionInterval = c.getInt(KeyDetectionInterval, s.DetectionInterval)
	return s
}

func (c *ConfigDB) SetCameraSettings(s CameraSettings) error {
	if err := c.setInt(KeyCameraWidth, s.Width); err != nil {
		return err
	}
	if err := c.setInt(KeyCameraHeight, s.Height); err != nil {
		return err
	}
	if err := c.setInt(KeyCameraFPS, s.FPS); err != nil {
		return err
	}
	return c.setInt(KeyDetectionInterval, s.DetectionInterval)
}

// ScoreWeights is how much the text and visual scores each contribute to the
// combined wellness score.
type ScoreWeights struct {
	NLPWeight     float64 `json:"nlpWeight"`
	EmotionWeight float64 `json:"emotionWeight"`
}

func (w ScoreWeights) IsValid() bool {
	return w.NLPWeight >= 0 && w.EmotionWeight >= 0 && w.NLPWeight+w.EmotionWeight > 0
}

// GetScoreWeights returns the configured score weights, falling back to the
// defaults for any key that is missing or unreadable. It never fails.
func (c *ConfigDB) GetScoreWeights() ScoreWeights {
	return ScoreWeights{
		NLPWeight:     c.getFloat(KeyNLPWeight, DefaultNLPWeight),
		EmotionWeight: c.getFloat(KeyEmotionWeight, DefaultEmotionWeight),
	}
}

func (c *ConfigDB) SetScoreWeights(w ScoreWeights) error {
	if err := c.setFloat(KeyNLPWeight, w.NLPWeight); err != nil {
		return err
	}
	return c.setFloat(KeyEmotionWeight, w.EmotionWeight)
}

// GetValue returns the raw setting value, or an empty string if the key is absent.
func (c *ConfigDB) GetValue(key SettingKey) string {
	setting := Setting{}
	if err := c.DB.First(&setting, "key = ?", string(key)).Error; err != nil {
		return ""
	}
	return setting.Value
}

func (c *ConfigDB) SetValue(key SettingKey, value string) error {
	return c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Setting{Key: string(key), Value: value}).Error
}

func (c *ConfigDB) getInt(key SettingKey, fallback int) int {
	raw := c.GetValue(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		c.Log.Warnf("Ignoring invalid value '%v' for setting %v", raw, key)
		return fallback
	}
	return v
}

func (c *ConfigDB) setInt(key SettingKey, value int) error {
	return c.SetValue(key, strconv.Itoa(value))
}

func (c *ConfigDB) getFloat(key SettingKey, fallback float64) float64 {
	raw := c.GetValue(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		c.Log.Warnf("Ignoring invalid value '%v' for setting %v", raw, key)
		return fallback
	}
	return v
}

func (c *ConfigDB) setFloat(key SettingKey, value float64) error {
	return c.SetValue(key, strconv.FormatFloat(value, 'g', -1, 64))
}
