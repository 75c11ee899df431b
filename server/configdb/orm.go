package configdb

// Setting is one key/value configuration entry
type Setting struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `json:"value"`
}
