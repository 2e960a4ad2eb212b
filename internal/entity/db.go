package entity

import (
	"studio/internal/entity/common"
)

// StringArray is re-exported so callers only import entity.
type StringArray = common.StringArray
