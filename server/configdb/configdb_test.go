package configdb

import (
	"os"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func createTestDB(t *testing.T) *ConfigDB {
	filename := "test-configdb.sqlite"
	os.Remove(filename)
	t.Cleanup(func() { os.Remove(filename) })
	db, err := NewConfigDB(logs.NewTestingLog(t), filename)
	require.NoError(t, err)
	return db
}

func TestCameraSettingsDefaults(t *testing.T) {
	db := createTestDB(t)
	s := db.GetCameraSettings()
	require.Equal(t, DefaultCameraWidth, s.Width)
	require.Equal(t, DefaultCameraHeight, s.Height)
	require.Equal(t, DefaultCameraFPS, s.FPS)
	require.Equal(t, DefaultDetectionInterval, s.DetectionInterval)
}

func TestCameraSettingsRoundTrip(t *testing.T) {
	db := createTestDB(t)
	in := CameraSettings{Width: 1280, Height: 720, FPS: 15, DetectionInterval: 10}
	require.NoError(t, db.SetCameraSettings(in))
	require.Equal(t, in, db.GetCameraSettings())

	// Second write must overwrite, not duplicate
	in.Width = 1920
	require.NoError(t, db.SetCameraSettings(in))
	require.Equal(t, in, db.GetCameraSettings())
}

func TestInvalidSettingFallsBack(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, db.SetValue(KeyCameraWidth, "banana"))
	require.Equal(t, DefaultCameraWidth, db.GetCameraSettings().Width)
}

func TestScoreWeights(t *testing.T) {
	db := createTestDB(t)
	w := db.GetScoreWeights()
	require.Equal(t, DefaultNLPWeight, w.NLPWeight)
	require.Equal(t, DefaultEmotionWeight, w.EmotionWeight)

	in := ScoreWeights{NLPWeight: 0.3, EmotionWeight: 0.7}
	require.NoError(t, db.SetScoreWeights(in))
	require.Equal(t, in, db.GetScoreWeights())

	require.True(t, in.IsValid())
	require.False(t, ScoreWeights{NLPWeight: -1, EmotionWeight: 0.5}.IsValid())
	require.False(t, ScoreWeights{}.IsValid())
}
