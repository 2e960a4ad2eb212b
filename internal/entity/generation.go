package entity

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// GenerationType is the content kind of a generation request.
type GenerationType string

const (
	GenerationTypePhoto GenerationType = "photo"
	GenerationTypeVideo GenerationType = "video"
	GenerationTypeAudio GenerationType = "audio"
)

// GenerationStatus is the lifecycle state of a generation.
type GenerationStatus string

const (
	GenerationStatusQueued     GenerationStatus = "queued"
	GenerationStatusGenerating GenerationStatus = "generating"
	GenerationStatusSuccess    GenerationStatus = "success"
	GenerationStatusFailed     GenerationStatus = "failed"
	GenerationStatusCancelled  GenerationStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transition happens from s.
func (s GenerationStatus) IsTerminal() bool {
	switch s {
	case GenerationStatusSuccess, GenerationStatusFailed, GenerationStatusCancelled:
		return true
	default:
		return false
	}
}

// PreviewStatus tracks derived-asset generation independently of the job status.
type PreviewStatus string

const (
	PreviewStatusNone       PreviewStatus = "none"
	PreviewStatusProcessing PreviewStatus = "processing"
	PreviewStatusReady      PreviewStatus = "ready"
	PreviewStatusFailed     PreviewStatus = "failed"
)

// MetadataDeferredBilling marks audio jobs that are billed after the fact by duration.
const MetadataDeferredBilling = "deferredBilling"

// DbGeneration is one persisted generation request and its lifecycle.
type DbGeneration struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TaskID  string           `gorm:"column:task_id;type:varchar(255);index" json:"task_id"`
	Type    GenerationType   `gorm:"column:type;type:varchar(16);index" json:"type"`
	Status  GenerationStatus `gorm:"column:status;type:varchar(16);index" json:"status"`
	UserID  string           `gorm:"column:user_id;type:varchar(36);index" json:"user_id"`
	ModelID string           `gorm:"column:model_id;type:varchar(255)" json:"model_id"`
	Prompt  string           `gorm:"column:prompt;type:text" json:"prompt"`

	ResultURLs   StringArray `gorm:"column:result_urls;type:json" json:"result_urls"`
	AssetURL     string      `gorm:"column:asset_url;type:text" json:"asset_url"`
	OriginalPath *string     `gorm:"column:original_path;type:text" json:"original_path"`

	PreviewPath   *string       `gorm:"column:preview_path;type:text" json:"preview_path"`
	PosterPath    *string       `gorm:"column:poster_path;type:text" json:"poster_path"`
	PreviewStatus PreviewStatus `gorm:"column:preview_status;type:varchar(16);default:none" json:"preview_status"`

	DurationSec      *float64 `gorm:"column:duration_sec" json:"duration_sec,omitempty"`
	ActualStarsSpent *int     `gorm:"column:actual_stars_spent" json:"actual_stars_spent,omitempty"`

	// 轮询游标，不参与 updated_at，未成功的同步也会让行轮转到队尾
	PolledAt     *time.Time `gorm:"column:polled_at;index" json:"polled_at,omitempty"`
	PollAttempts int        `gorm:"column:poll_attempts;not null;default:0" json:"poll_attempts"`

	Error    *string           `gorm:"column:error;type:text" json:"error"`
	Metadata datatypes.JSONMap `gorm:"column:metadata;type:json" json:"metadata"`
}

// TableName 指定表名
func (DbGeneration) TableName() string {
	return "generations"
}

// DeferredBilling reports whether the job is billed after completion by actual duration.
func (g *DbGeneration) DeferredBilling() bool {
	if g == nil || g.Metadata == nil {
		return false
	}
	switch v := g.Metadata[MetadataDeferredBilling].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// MetadataFloat reads a numeric metadata value, accepting JSON numbers and numeric strings.
func (g *DbGeneration) MetadataFloat(key string) (float64, bool) {
	if g == nil || g.Metadata == nil {
		return 0, false
	}
	switch v := g.Metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// PrimaryAssetURL returns the best known URL of the primary result.
func (g *DbGeneration) PrimaryAssetURL() string {
	if g == nil {
		return ""
	}
	if url := strings.TrimSpace(g.AssetURL); url != "" {
		return url
	}
	return strings.TrimSpace(g.ResultURLs.First())
}

// NeedsPreview reports whether the content kind has a derived preview asset.
func (t GenerationType) NeedsPreview() bool {
	return t == GenerationTypePhoto || t == GenerationTypeVideo
}

// MediaKind maps the content kind onto the storage kind segment.
func (t GenerationType) MediaKind() string {
	switch t {
	case GenerationTypeVideo:
		return "video"
	case GenerationTypeAudio:
		return "audio"
	default:
		return "image"
	}
}

// HasPreview reports whether the preview asset the content kind relies on is present.
func (g *DbGeneration) HasPreview() bool {
	if g == nil {
		return false
	}
	switch g.Type {
	case GenerationTypeVideo:
		return g.PosterPath != nil && strings.TrimSpace(*g.PosterPath) != ""
	case GenerationTypePhoto:
		return g.PreviewPath != nil && strings.TrimSpace(*g.PreviewPath) != ""
	default:
		return true
	}
}
