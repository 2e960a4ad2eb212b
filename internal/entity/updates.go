package entity

// GenerationUpdates 生成记录更新字段
//
// nil 指针表示不修改该字段；Clear* 标记将对应列写为 NULL。
type GenerationUpdates struct {
	Status           *GenerationStatus
	ResultURLs       *StringArray
	AssetURL         *string
	OriginalPath     *string
	PreviewPath      *string
	PosterPath       *string
	PreviewStatus    *PreviewStatus
	DurationSec      *float64
	ActualStarsSpent *int
	Error            *string

	ClearOriginalPath bool
	ClearError        bool
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u GenerationUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Status != nil {
		updates["status"] = string(*u.Status)
	}
	if u.ResultURLs != nil {
		updates["result_urls"] = *u.ResultURLs
	}
	if u.AssetURL != nil {
		updates["asset_url"] = *u.AssetURL
	}
	if u.OriginalPath != nil {
		updates["original_path"] = *u.OriginalPath
	} else if u.ClearOriginalPath {
		updates["original_path"] = nil
	}
	if u.PreviewPath != nil {
		updates["preview_path"] = *u.PreviewPath
	}
	if u.PosterPath != nil {
		updates["poster_path"] = *u.PosterPath
	}
	if u.PreviewStatus != nil {
		updates["preview_status"] = string(*u.PreviewStatus)
	}
	if u.DurationSec != nil {
		updates["duration_sec"] = *u.DurationSec
	}
	if u.ActualStarsSpent != nil {
		updates["actual_stars_spent"] = *u.ActualStarsSpent
	}
	if u.Error != nil {
		updates["error"] = *u.Error
	} else if u.ClearError {
		updates["error"] = nil
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u GenerationUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// Ptr returns a pointer to v; handy when building update structs.
func Ptr[T any](v T) *T {
	return &v
}

// GenerationGuard 条件更新的前置条件，空字段不参与匹配
type GenerationGuard struct {
	StatusIn        []GenerationStatus
	PreviewStatusIn []PreviewStatus
}

// IsEmpty 检查是否没有任何条件
func (g GenerationGuard) IsEmpty() bool {
	return len(g.StatusIn) == 0 && len(g.PreviewStatusIn) == 0
}

// CreditAdjustment describes one ledger movement tied to a generation.
type CreditAdjustment struct {
	UserID       string
	GenerationID string
	Kind         CreditKind
	Delta        int
	Reason       string
	Context      string
}
